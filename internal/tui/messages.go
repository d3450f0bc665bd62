package tui

import "shoplist/internal/models"

// StateChangedMsg is sent whenever the shared list changed, locally or
// from a remote snapshot.
type StateChangedMsg struct{}

type SyncStatusMsg struct {
	Status SyncStatus
	Err    error
}

type AddItemMsg struct {
	Label string
}

type CompleteItemMsg struct {
	Item models.Item
}

type DeleteItemMsg struct {
	Item models.Item
}

type StatusMsg struct {
	Message string
	IsError bool
}

type ClearStatusMsg struct{}
