package shopping

import (
	"testing"

	"shoplist/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func item(id, label string, done bool) models.Item {
	return models.Item{ID: id, Label: label, IsCompleted: done}
}

func labels(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func TestReduceAddAppendsIncompleteItem(t *testing.T) {
	start := []models.Item{item("a", "Milk", false)}

	added, ok := models.NewItem("  Apples ")
	assert.True(t, ok)

	next, write := Reduce(start, AddItem(added))

	assert.True(t, write)
	assert.Len(t, next, len(start)+1)
	assert.Equal(t, "Apples", next[1].Label)
	assert.False(t, next[1].IsCompleted)
	assert.Len(t, start, 1, "input list must not change")
}

func TestReduceAddRejectsInvalidItems(t *testing.T) {
	start := []models.Item{item("a", "Milk", false)}

	cases := map[string]models.Item{
		"empty label":     item("b", "   ", false),
		"untrimmed label": item("b", " Eggs ", false),
		"empty id":        item("", "Eggs", false),
		"duplicate id":    item("a", "Eggs", false),
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			next, write := Reduce(start, AddItem(bad))
			assert.False(t, write)
			assert.Equal(t, start, next)
		})
	}
}

func TestReduceDelete(t *testing.T) {
	start := []models.Item{item("a", "Milk", false), item("b", "Eggs", true), item("c", "Bread", false)}

	next, write := Reduce(start, DeleteItem(item("b", "", false)))
	assert.True(t, write)
	assert.Equal(t, []string{"Milk", "Bread"}, labels(next))

	next, write = Reduce(start, DeleteItem(item("zzz", "", false)))
	assert.True(t, write, "missing id still writes the unchanged list")
	assert.Equal(t, start, next)
}

func TestReduceEditChangesOnlyPatchedFields(t *testing.T) {
	start := []models.Item{item("a", "Milk", false), item("b", "Eggs", false)}

	next, write := Reduce(start, EditItem(item("b", "", false), models.Completed()))
	assert.True(t, write)

	want := []models.Item{item("a", "Milk", false), item("b", "Eggs", true)}
	if diff := cmp.Diff(want, next); diff != "" {
		t.Errorf("edit mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, start[1].IsCompleted, "input list must not change")
}

func TestReduceEditMissingIsNoOp(t *testing.T) {
	start := []models.Item{item("a", "Milk", false)}

	next, write := Reduce(start, EditItem(item("nope", "", false), models.Completed()))
	assert.True(t, write)
	assert.Equal(t, start, next)
}

func TestReduceReplaceAllIsIdempotent(t *testing.T) {
	start := []models.Item{item("old", "Cheese", false)}
	snapshot := []models.Item{item("x", "Bread", true)}

	once, write := Reduce(start, ReplaceAll(snapshot))
	assert.False(t, write)
	twice, _ := Reduce(once, ReplaceAll(snapshot))

	assert.Equal(t, snapshot, once)
	assert.Equal(t, once, twice)
}

func TestReduceReplaceAllNilIsEmpty(t *testing.T) {
	next, _ := Reduce([]models.Item{item("a", "Milk", false)}, ReplaceAll(nil))
	assert.NotNil(t, next)
	assert.Empty(t, next)
}

func TestViewOrder(t *testing.T) {
	items := []models.Item{
		item("1", "Milk", false),
		item("2", "Eggs", true),
		item("3", "Bread", false),
	}

	assert.Equal(t, []string{"Bread", "Milk", "Eggs"}, labels(ViewOrder(items)))
	assert.Equal(t, "Milk", items[0].Label, "input order must not change")
}

func TestViewOrderIsTotal(t *testing.T) {
	a := []models.Item{item("2", "Tea", false), item("1", "Tea", false), item("3", "apple", true), item("4", "Zucchini", true)}
	b := []models.Item{a[3], a[1], a[2], a[0]}

	assert.Equal(t, ViewOrder(a), ViewOrder(b))
	assert.Equal(t, []string{"1", "2", "4", "3"}, []string{
		ViewOrder(a)[0].ID, ViewOrder(a)[1].ID, ViewOrder(a)[2].ID, ViewOrder(a)[3].ID,
	}, "byte-wise label order puts uppercase before lowercase")
}
