package docstore

import (
	"context"
	"sync"

	"shoplist/internal/models"
)

// Memory is an in-process Store. It backs --local mode and the tests.
// Subscribers are notified synchronously from the goroutine that called
// Overwrite.
type Memory struct {
	mu     sync.Mutex
	docs   map[string][]byte
	subs   map[string]map[int]func(*models.Document)
	nextID int
	writes []models.Document

	// Error injection for tests
	FetchErr     error
	SubscribeErr error
	OverwriteErr error
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string][]byte),
		subs: make(map[string]map[int]func(*models.Document)),
	}
}

func (m *Memory) FetchOnce(ctx context.Context, path string) (*models.Document, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	data, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeDocument(data)
}

func (m *Memory) Overwrite(ctx context.Context, path string, doc *models.Document) error {
	if _, _, err := SplitPath(path); err != nil {
		return err
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.OverwriteErr != nil {
		err := m.OverwriteErr
		m.mu.Unlock()
		return err
	}
	m.docs[path] = data
	m.writes = append(m.writes, models.Document{ShoppingList: models.CloneItems(doc.Items())})
	listeners := m.listeners(path)
	m.mu.Unlock()

	for _, fn := range listeners {
		fresh, _ := DecodeDocument(data)
		fn(fresh)
	}
	return nil
}

// Put stores a document as if another client had written it.
func (m *Memory) Put(path string, raw []byte) {
	m.mu.Lock()
	m.docs[path] = append([]byte(nil), raw...)
	listeners := m.listeners(path)
	m.mu.Unlock()

	for _, fn := range listeners {
		doc, err := DecodeDocument(raw)
		if err != nil {
			continue
		}
		fn(doc)
	}
}

func (m *Memory) Subscribe(ctx context.Context, path string, onChange func(*models.Document)) (Subscription, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.SubscribeErr != nil {
		err := m.SubscribeErr
		m.mu.Unlock()
		return nil, err
	}
	m.nextID++
	id := m.nextID
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]func(*models.Document))
	}
	m.subs[path][id] = onChange
	current, exists := m.docs[path]
	m.mu.Unlock()

	if exists {
		if doc, err := DecodeDocument(current); err == nil {
			onChange(doc)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &cancelSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[path], id)
		m.mu.Unlock()
	}()

	return sub, nil
}

// Writes returns every document passed to Overwrite, oldest first.
func (m *Memory) Writes() []models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Document, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *Memory) listeners(path string) []func(*models.Document) {
	out := make([]func(*models.Document), 0, len(m.subs[path]))
	for _, fn := range m.subs[path] {
		out = append(out, fn)
	}
	return out
}
