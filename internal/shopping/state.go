package shopping

import (
	"context"
	"sync"
	"time"

	"shoplist/internal/models"

	"github.com/golang/glog"
)

// Writer is the part of the document store the state writes through to.
type Writer interface {
	Overwrite(ctx context.Context, path string, doc *models.Document) error
}

type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
}

type glogLogger struct{}

func (glogLogger) Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func (glogLogger) Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }

const (
	DefaultRetries    = 2
	DefaultRetryDelay = 500 * time.Millisecond
	writeTimeout      = 10 * time.Second
)

type Options struct {
	Path       string
	Retries    int
	RetryDelay time.Duration
	Logger     Logger
}

// State is the single owner of the list. All changes go through Dispatch,
// which applies them one at a time. Write-throughs run on a background
// writer in dispatch order and are never waited on by Dispatch.
type State struct {
	mu       sync.Mutex
	items    []models.Item
	watchers []chan struct{}

	remote     Writer
	path       string
	retries    int
	retryDelay time.Duration
	log        Logger

	writeMu  sync.Mutex
	writeCnd *sync.Cond
	queue    [][]models.Item
	stopped  bool
	kick     chan struct{}
}

// New starts the background writer, which runs until ctx is cancelled.
func New(ctx context.Context, remote Writer, opts Options) *State {
	if opts.Path == "" {
		opts.Path = models.DocumentPath
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = glogLogger{}
	}

	s := &State{
		items:      []models.Item{},
		remote:     remote,
		path:       opts.Path,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		log:        opts.Logger,
		kick:       make(chan struct{}, 1),
	}
	s.writeCnd = sync.NewCond(&s.writeMu)

	go s.runWriter(ctx)
	return s
}

// Dispatch applies action and returns the resulting list.
func (s *State) Dispatch(action Action) []models.Item {
	s.mu.Lock()
	next, write := Reduce(s.items, action)
	s.items = next
	snapshot := models.CloneItems(next)
	watchers := s.watchers
	s.mu.Unlock()

	if write {
		s.enqueue(snapshot)
	}
	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return snapshot
}

func (s *State) Add(item models.Item) []models.Item {
	return s.Dispatch(AddItem(item))
}

func (s *State) Delete(item models.Item) []models.Item {
	return s.Dispatch(DeleteItem(item))
}

func (s *State) Edit(item models.Item, patch models.Patch) []models.Item {
	return s.Dispatch(EditItem(item, patch))
}

func (s *State) ReplaceAll(items []models.Item) []models.Item {
	return s.Dispatch(ReplaceAll(items))
}

// Items returns a copy of the list in insertion order.
func (s *State) Items() []models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneItems(s.items)
}

// Watch returns a channel that receives after every dispatch. Signals
// coalesce: a slow reader sees one pending signal, not one per change.
func (s *State) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

func (s *State) enqueue(items []models.Item) {
	s.writeMu.Lock()
	if s.stopped {
		s.writeMu.Unlock()
		return
	}
	s.queue = append(s.queue, items)
	s.writeMu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Flush blocks until every queued write-through has been attempted or the
// writer has stopped.
func (s *State) Flush() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for len(s.queue) > 0 && !s.stopped {
		s.writeCnd.Wait()
	}
}

func (s *State) runWriter(ctx context.Context) {
	defer func() {
		s.writeMu.Lock()
		s.stopped = true
		s.queue = nil
		s.writeCnd.Broadcast()
		s.writeMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		}

		for {
			s.writeMu.Lock()
			if len(s.queue) == 0 {
				s.writeMu.Unlock()
				break
			}
			items := s.queue[0]
			s.writeMu.Unlock()

			s.push(ctx, items)

			s.writeMu.Lock()
			if len(s.queue) > 0 {
				s.queue = s.queue[1:]
			}
			s.writeCnd.Broadcast()
			s.writeMu.Unlock()

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// push overwrites the remote list, retrying a bounded number of times.
// Failures are logged and dropped.
func (s *State) push(ctx context.Context, items []models.Item) {
	doc := &models.Document{ShoppingList: items}

	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
		}

		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = s.remote.Overwrite(writeCtx, s.path, doc)
		cancel()
		if err == nil {
			return
		}
		s.log.Warningf("[shopping] write-through attempt %d/%d failed: %v", attempt+1, s.retries+1, err)
	}

	s.log.Warningf("[shopping] giving up on write-through of %d items: %v", len(items), err)
}
