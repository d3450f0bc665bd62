package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shoplist/internal/docstore"
	"shoplist/internal/models"
	"shoplist/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hijackedConns remembers upgraded connections so a test can cut them.
type hijackedConns struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (h *hijackedConns) track(c net.Conn, state http.ConnState) {
	if state != http.StateHijacked {
		return
	}
	h.mu.Lock()
	h.conns = append(h.conns, c)
	h.mu.Unlock()
}

func (h *hijackedConns) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.Close()
	}
	h.conns = nil
}

func newTestServer(t *testing.T) (*httptest.Server, *docstore.Client) {
	ts, client, _ := newDroppableTestServer(t)
	return ts, client
}

func newDroppableTestServer(t *testing.T) (*httptest.Server, *docstore.Client, *hijackedConns) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conns := &hijackedConns{}
	ts := httptest.NewUnstartedServer(New(store, 0).Handler())
	ts.Config.ConnState = conns.track
	ts.Start()
	t.Cleanup(ts.Close)

	client := docstore.NewClient(ts.URL, 5*time.Second)
	client.SetReconnectDelay(20 * time.Millisecond)
	return ts, client, conns
}

func TestFetchMissingDocument(t *testing.T) {
	_, client := newTestServer(t)

	_, err := client.FetchOnce(context.Background(), models.DocumentPath)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestOverwriteThenFetch(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	doc := &models.Document{ShoppingList: []models.Item{
		{ID: "a", Label: "Milk"},
		{ID: "b", Label: "Eggs", IsCompleted: true},
	}}
	require.NoError(t, client.Overwrite(ctx, models.DocumentPath, doc))

	got, err := client.FetchOnce(ctx, models.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, doc.ShoppingList, got.ShoppingList)

	require.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{}))
	got, err = client.FetchOnce(ctx, models.DocumentPath)
	require.NoError(t, err)
	assert.Empty(t, got.ShoppingList)
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/v1/documents/globals/state", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvalidPathRejectedByClient(t *testing.T) {
	_, client := newTestServer(t)

	_, err := client.FetchOnce(context.Background(), "too/many/parts")
	assert.Error(t, err)

	var apiErr *docstore.APIError
	assert.False(t, errors.As(err, &apiErr), "path is rejected before any request is made")
}

func TestUnknownEndpointReturnsAPIError(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestListenDeliversCurrentAndSelfInducedChanges(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{
		ShoppingList: []models.Item{{ID: "a", Label: "Milk"}},
	}))

	received := make(chan *models.Document, 8)
	sub, err := client.Subscribe(ctx, models.DocumentPath, func(doc *models.Document) {
		received <- doc
	})
	require.NoError(t, err)
	defer sub.Close()

	first := waitForDocument(t, received)
	require.Len(t, first.ShoppingList, 1)
	assert.Equal(t, "Milk", first.ShoppingList[0].Label)

	require.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{
		ShoppingList: []models.Item{{ID: "a", Label: "Milk", IsCompleted: true}},
	}))

	second := waitForDocument(t, received)
	require.Len(t, second.ShoppingList, 1)
	assert.True(t, second.ShoppingList[0].IsCompleted)
}

func TestListenOnMissingDocumentWaitsForFirstWrite(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	received := make(chan *models.Document, 8)
	sub, err := client.Subscribe(ctx, models.DocumentPath, func(doc *models.Document) {
		received <- doc
	})
	require.NoError(t, err)
	defer sub.Close()

	// The stream has no initial message, so poll writes until one lands
	// after the listener has attached.
	deadline := time.After(5 * time.Second)
	for {
		require.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{
			ShoppingList: []models.Item{{ID: "x", Label: "Bread"}},
		}))
		select {
		case doc := <-received:
			require.Len(t, doc.ShoppingList, 1)
			assert.Equal(t, "Bread", doc.ShoppingList[0].Label)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no snapshot received")
		}
	}
}

func TestListenReconnectsAfterDrop(t *testing.T) {
	_, client, conns := newDroppableTestServer(t)
	ctx := context.Background()

	require.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{
		ShoppingList: []models.Item{{ID: "a", Label: "Milk"}},
	}))

	received := make(chan *models.Document, 8)
	sub, err := client.Subscribe(ctx, models.DocumentPath, func(doc *models.Document) {
		received <- doc
	})
	require.NoError(t, err)
	defer sub.Close()

	first := waitForDocument(t, received)
	require.Len(t, first.ShoppingList, 1)

	conns.dropAll()

	again := waitForDocument(t, received)
	require.Len(t, again.ShoppingList, 1, "re-attach delivers the current document")
	assert.Equal(t, "Milk", again.ShoppingList[0].Label)

	require.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{
		ShoppingList: []models.Item{{ID: "b", Label: "Bread"}},
	}))

	next := waitForDocument(t, received)
	require.Len(t, next.ShoppingList, 1)
	assert.Equal(t, "Bread", next.ShoppingList[0].Label)
}

func TestListenersEndOnStoredRevision(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{}))

	received := make(chan *models.Document, 128)
	sub, err := client.Subscribe(ctx, models.DocumentPath, func(doc *models.Document) {
		received <- doc
	})
	require.NoError(t, err)
	defer sub.Close()
	waitForDocument(t, received)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, client.Overwrite(ctx, models.DocumentPath, &models.Document{
				ShoppingList: []models.Item{{ID: fmt.Sprint(i), Label: "Item"}},
			}))
		}(i)
	}
	wg.Wait()

	stored, err := client.FetchOnce(ctx, models.DocumentPath)
	require.NoError(t, err)

	var last *models.Document
	for {
		select {
		case doc := <-received:
			last = doc
			continue
		case <-time.After(300 * time.Millisecond):
		}
		break
	}
	require.NotNil(t, last)
	assert.Equal(t, stored.ShoppingList, last.ShoppingList)
}

func waitForDocument(t *testing.T, ch <-chan *models.Document) *models.Document {
	t.Helper()

	select {
	case doc := <-ch:
		return doc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
