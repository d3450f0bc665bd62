package shopping

import (
	"context"
	"errors"
	"testing"

	"shoplist/internal/docstore"
	"shoplist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapHydratesFromRemote(t *testing.T) {
	remote := docstore.NewMemory()
	remote.Put(models.DocumentPath, []byte(`{"shoppingList":[{"id":"a","item":"Milk","isCompleted":false}]}`))

	state, _ := newTestState(t, remote, 0)
	s := NewSync(remote, state, "", &recordingLogger{})

	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Equal(t, []models.Item{{ID: "a", Label: "Milk"}}, state.Items())
}

func TestBootstrapMissingDocumentKeepsEmptyList(t *testing.T) {
	remote := docstore.NewMemory()
	state, _ := newTestState(t, remote, 0)
	s := NewSync(remote, state, "", &recordingLogger{})

	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Empty(t, state.Items())
	assert.True(t, s.LastSnapshot().IsZero())
}

func TestBootstrapWithoutListFieldIsEmpty(t *testing.T) {
	remote := docstore.NewMemory()
	remote.Put(models.DocumentPath, []byte(`{}`))

	state, _ := newTestState(t, remote, 0)
	state.ReplaceAll([]models.Item{{ID: "old", Label: "Cheese"}})
	s := NewSync(remote, state, "", &recordingLogger{})

	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Empty(t, state.Items())
}

func TestSnapshotReplacesLocalStateEntirely(t *testing.T) {
	remote := docstore.NewMemory()
	state, _ := newTestState(t, remote, 0)
	s := NewSync(remote, state, "", &recordingLogger{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	milk, _ := models.NewItem("Milk")
	state.Add(milk)
	state.Flush()

	remote.Put(models.DocumentPath, []byte(`{"shoppingList":[{"id":"x","item":"Bread","isCompleted":true}]}`))

	assert.Equal(t, []models.Item{{ID: "x", Label: "Bread", IsCompleted: true}}, state.Items())
	assert.False(t, s.LastSnapshot().IsZero())
}

func TestOwnWriteComesBackThroughSubscription(t *testing.T) {
	remote := docstore.NewMemory()
	state, _ := newTestState(t, remote, 0)
	s := NewSync(remote, state, "", &recordingLogger{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	apples, _ := models.NewItem("Apples")
	state.Add(apples)
	state.Flush()

	assert.Equal(t, []models.Item{apples}, state.Items())
	assert.Len(t, remote.Writes(), 1, "the echoed snapshot must not write again")
}

func TestStartLogsFailedBootstrapAndStillSubscribes(t *testing.T) {
	remote := docstore.NewMemory()
	remote.FetchErr = errors.New("offline")

	state, _ := newTestState(t, remote, 0)
	logger := &recordingLogger{}
	s := NewSync(remote, state, "", logger)

	require.NoError(t, s.Start(context.Background()))
	defer s.Close()
	assert.Equal(t, 1, logger.count())

	remote.Put(models.DocumentPath, []byte(`{"shoppingList":[{"id":"x","item":"Bread","isCompleted":false}]}`))
	assert.Len(t, state.Items(), 1)
}

func TestStartReturnsSubscribeError(t *testing.T) {
	remote := docstore.NewMemory()
	remote.SubscribeErr = errors.New("refused")

	state, _ := newTestState(t, remote, 0)
	s := NewSync(remote, state, "", &recordingLogger{})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, remote.SubscribeErr)
	assert.NoError(t, s.Close())
}
