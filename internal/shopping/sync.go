package shopping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shoplist/internal/docstore"
	"shoplist/internal/models"
)

// Sync wires a State to the remote document: one bootstrap read, then a
// subscription that replaces local state with every snapshot.
type Sync struct {
	store docstore.Store
	state *State
	path  string
	log   Logger

	mu           sync.Mutex
	sub          docstore.Subscription
	lastSnapshot time.Time
}

func NewSync(store docstore.Store, state *State, path string, logger Logger) *Sync {
	if path == "" {
		path = models.DocumentPath
	}
	if logger == nil {
		logger = glogLogger{}
	}
	return &Sync{
		store: store,
		state: state,
		path:  path,
		log:   logger,
	}
}

// Start runs the bootstrap read and attaches the subscription. A failed
// read is logged and does not stop the subscription from being set up;
// only a failed subscribe is returned.
func (s *Sync) Start(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		s.log.Warningf("[sync] bootstrap read of %s failed: %v", s.path, err)
	}

	sub, err := s.store.Subscribe(ctx, s.path, s.apply)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	s.log.Infof("[sync] subscribed to %s", s.path)
	return nil
}

// Bootstrap fetches the document once. A missing document leaves the
// local list as it is.
func (s *Sync) Bootstrap(ctx context.Context) error {
	doc, err := s.store.FetchOnce(ctx, s.path)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.apply(doc)
	return nil
}

func (s *Sync) apply(doc *models.Document) {
	s.mu.Lock()
	s.lastSnapshot = time.Now()
	s.mu.Unlock()

	s.state.ReplaceAll(doc.Items())
}

// LastSnapshot is when the last remote snapshot was applied, or zero.
func (s *Sync) LastSnapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnapshot
}

func (s *Sync) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}
