package models

import (
	"strings"

	"github.com/google/uuid"
)

// DocumentPath is where the one shared list lives.
const DocumentPath = "globals/state"

// Item is a single entry on the shopping list. The label is serialized as
// "item" so documents written by older clients still decode.
type Item struct {
	ID          string `json:"id"`
	Label       string `json:"item"`
	IsCompleted bool   `json:"isCompleted"`
}

// NewItem trims the label and assigns a fresh id. ok is false when nothing
// is left after trimming.
func NewItem(label string) (item Item, ok bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Item{}, false
	}
	return Item{
		ID:    generateID(),
		Label: label,
	}, true
}

// Valid reports whether the item can be added to a list: it needs an id
// and a non-empty label with no surrounding whitespace.
func (i Item) Valid() bool {
	return i.ID != "" && i.Label != "" && i.Label == strings.TrimSpace(i.Label)
}

// Patch holds the fields an edit overwrites. Nil fields are left alone.
type Patch struct {
	Label       *string `json:"item,omitempty"`
	IsCompleted *bool   `json:"isCompleted,omitempty"`
}

// Apply returns a copy of item with the patch merged in.
func (p Patch) Apply(item Item) Item {
	if p.Label != nil {
		item.Label = *p.Label
	}
	if p.IsCompleted != nil {
		item.IsCompleted = *p.IsCompleted
	}
	return item
}

// Completed is the patch the complete action sends.
func Completed() Patch {
	done := true
	return Patch{IsCompleted: &done}
}

// Document is the shape stored at DocumentPath.
type Document struct {
	ShoppingList []Item `json:"shoppingList"`
}

// Items returns the list, never nil. A document without a shoppingList
// field decodes to an empty list.
func (d *Document) Items() []Item {
	if d == nil || d.ShoppingList == nil {
		return []Item{}
	}
	return d.ShoppingList
}

// CloneItems copies a list so callers can't alias reducer state.
func CloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func generateID() string {
	return uuid.NewString()
}
