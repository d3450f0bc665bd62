// Package docstore is the remote document store the shopping list syncs
// through. Every backend stores whole documents addressed by a
// "collection/document" path and supports read-once, change subscription and
// full overwrite.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"shoplist/internal/models"
)

// ErrNotFound is returned by FetchOnce when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// Store is implemented by every document backend.
type Store interface {
	// FetchOnce returns the current document or ErrNotFound.
	FetchOnce(ctx context.Context, path string) (*models.Document, error)

	// Subscribe calls onChange with the current document (if any) and again
	// after every change, including changes made by this client. Calls are
	// made from a single goroutine owned by the subscription. The
	// subscription ends when ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, path string, onChange func(*models.Document)) (Subscription, error)

	// Overwrite replaces the whole document at path.
	Overwrite(ctx context.Context, path string, doc *models.Document) error
}

type Subscription interface {
	Close() error
}

// APIError is the JSON error body returned by the document server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Snapshot is a stored document as the document server returns it, both
// from GET and as one message on a listen stream.
type Snapshot struct {
	Path      string          `json:"path"`
	Revision  string          `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// SplitPath validates a "collection/document" path.
func SplitPath(path string) (collection, document string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid document path %q: want collection/document", path)
	}
	return parts[0], parts[1], nil
}

// DecodeDocument parses stored document JSON. Empty input, null, and a
// missing shoppingList field all decode to an empty list.
func DecodeDocument(data []byte) (*models.Document, error) {
	doc := &models.Document{}
	if len(data) == 0 {
		doc.ShoppingList = []models.Item{}
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	doc.ShoppingList = doc.Items()
	return doc, nil
}

func encodeDocument(doc *models.Document) (json.RawMessage, error) {
	if doc == nil {
		doc = &models.Document{}
	}
	out := models.Document{ShoppingList: doc.Items()}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return data, nil
}

type cancelSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *cancelSubscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}
