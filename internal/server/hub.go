package server

import (
	"sync"

	"shoplist/internal/docstore"
)

const listenerBuffer = 16

// hub fans document changes out to listen streams, keyed by path.
type hub struct {
	mu        sync.Mutex
	listeners map[string]map[chan docstore.Snapshot]struct{}
}

func newHub() *hub {
	return &hub{listeners: make(map[string]map[chan docstore.Snapshot]struct{})}
}

func (h *hub) join(path string) chan docstore.Snapshot {
	ch := make(chan docstore.Snapshot, listenerBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners[path] == nil {
		h.listeners[path] = make(map[chan docstore.Snapshot]struct{})
	}
	h.listeners[path][ch] = struct{}{}
	return ch
}

func (h *hub) leave(path string, ch chan docstore.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[path][ch]; ok {
		delete(h.listeners[path], ch)
		close(ch)
	}
}

// publish never blocks. A listener whose buffer is full is dropped; its
// client reconnects and gets the current document on attach.
func (h *hub) publish(snap docstore.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.listeners[snap.Path] {
		select {
		case ch <- snap:
		default:
			delete(h.listeners[snap.Path], ch)
			close(ch)
		}
	}
}

func (h *hub) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[path])
}
