// Package shopping holds the in-memory shopping list and keeps it in step
// with the shared remote document.
package shopping

import (
	"sort"

	"shoplist/internal/models"
)

type ActionType int

const (
	ActionAdd ActionType = iota
	ActionDelete
	ActionEdit
	ActionReplaceAll
)

func (t ActionType) String() string {
	switch t {
	case ActionAdd:
		return "add"
	case ActionDelete:
		return "delete"
	case ActionEdit:
		return "edit"
	case ActionReplaceAll:
		return "replace_all"
	}
	return "unknown"
}

// Action is one dispatched change. Which fields matter depends on Type.
type Action struct {
	Type  ActionType
	Item  models.Item
	Patch models.Patch
	Items []models.Item
}

func AddItem(item models.Item) Action {
	return Action{Type: ActionAdd, Item: item}
}

func DeleteItem(item models.Item) Action {
	return Action{Type: ActionDelete, Item: item}
}

// EditItem merges patch into the entry with item's id.
func EditItem(item models.Item, patch models.Patch) Action {
	return Action{Type: ActionEdit, Item: item, Patch: patch}
}

func ReplaceAll(items []models.Item) Action {
	return Action{Type: ActionReplaceAll, Items: items}
}

// Reduce applies action to items and returns the new list plus whether the
// result must be written to the remote document. items is never modified.
//
// Delete and edit of an unknown id leave the list unchanged but still ask
// for a write. An invalid add (empty label, empty or duplicate id) is
// dropped without a write. ReplaceAll never writes.
func Reduce(items []models.Item, action Action) ([]models.Item, bool) {
	switch action.Type {
	case ActionAdd:
		if !action.Item.Valid() || indexOf(items, action.Item.ID) >= 0 {
			return items, false
		}
		next := make([]models.Item, 0, len(items)+1)
		next = append(next, items...)
		return append(next, action.Item), true

	case ActionDelete:
		i := indexOf(items, action.Item.ID)
		if i < 0 {
			return items, true
		}
		next := make([]models.Item, 0, len(items)-1)
		next = append(next, items[:i]...)
		return append(next, items[i+1:]...), true

	case ActionEdit:
		i := indexOf(items, action.Item.ID)
		if i < 0 {
			return items, true
		}
		next := models.CloneItems(items)
		next[i] = action.Patch.Apply(next[i])
		return next, true

	case ActionReplaceAll:
		if action.Items == nil {
			return []models.Item{}, false
		}
		return models.CloneItems(action.Items), false
	}

	return items, false
}

func indexOf(items []models.Item, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// ViewOrder is the presentation order: incomplete items, then completed
// ones, each sorted by label. Ties fall back to id so the order is total.
func ViewOrder(items []models.Item) []models.Item {
	out := models.CloneItems(items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsCompleted != b.IsCompleted {
			return !a.IsCompleted
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.ID < b.ID
	})
	return out
}
