// Package memory is an in-process remote.Store. It backs tests and offline
// demos, and its availability can be switched off to simulate a network
// outage.
package memory

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/remote"
)

// ErrOffline is returned by every call while the store is unavailable.
var ErrOffline = errors.New("memory remote: offline")

// Store keeps documents in maps keyed by collection and id.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]remote.Document
	watchers    map[*watcher]struct{}
	offline     atomic.Bool
}

var _ remote.Store = (*Store)(nil)

// New returns an empty, available store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]remote.Document),
		watchers:    make(map[*watcher]struct{}),
	}
}

// SetAvailable switches simulated connectivity on or off.
func (s *Store) SetAvailable(available bool) {
	s.offline.Store(!available)
}

func (s *Store) check(ctx context.Context) error {
	if s.offline.Load() {
		return ErrOffline
	}
	return ctx.Err()
}

// Put implements remote.Store.
func (s *Store) Put(ctx context.Context, collection string, doc remote.Document) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	change := remote.ChangeCreated
	if cur, ok := docs[doc.ID]; ok {
		if cur.OwnerID != doc.OwnerID {
			return apperrors.ErrUnauthorized
		}
		if doc.UpdatedAt.Before(cur.UpdatedAt) {
			return nil
		}
		if doc.UpdatedAt.Equal(cur.UpdatedAt) && bytes.Equal(doc.Data, cur.Data) {
			return nil
		}
		change = remote.ChangeUpdated
	}

	doc = clone(doc)
	docs[doc.ID] = doc
	s.notify(remote.Change{Collection: collection, Type: change, Document: doc})
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection, id, ownerID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	cur, ok := docs[id]
	if !ok {
		return nil
	}
	if cur.OwnerID != ownerID {
		return apperrors.ErrUnauthorized
	}
	delete(docs, id)
	s.notify(remote.Change{
		Collection: collection,
		Type:       remote.ChangeRemoved,
		Document:   remote.Document{ID: id, OwnerID: ownerID},
	})
	return nil
}

// Get implements remote.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, bool, error) {
	if err := s.check(ctx); err != nil {
		return remote.Document{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return remote.Document{}, false, nil
	}
	return clone(doc), true, nil
}

// List implements remote.Store. Documents are ordered by id.
func (s *Store) List(ctx context.Context, collection, ownerID string) ([]remote.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return nil, apperrors.ErrUnknownCollection
	}
	out := make([]remote.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.OwnerID == ownerID {
			out = append(out, clone(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateIfAbsent implements remote.Store.
func (s *Store) CreateIfAbsent(ctx context.Context, collection string, doc remote.Document) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	if _, ok := docs[doc.ID]; ok {
		return false, nil
	}
	doc = clone(doc)
	docs[doc.ID] = doc
	s.notify(remote.Change{Collection: collection, Type: remote.ChangeCreated, Document: doc})
	return true, nil
}

// Watch implements remote.Store.
func (s *Store) Watch(ctx context.Context, collection, ownerID string, fn remote.Handler) (func(), error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	w := newWatcher(collection, ownerID, fn)
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
			w.close()
		})
	}, nil
}

// Ping implements remote.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Watchers returns the number of active watch registrations.
func (s *Store) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// collection returns the named collection, creating it. Callers hold s.mu.
func (s *Store) collection(name string) map[string]remote.Document {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]remote.Document)
		s.collections[name] = docs
	}
	return docs
}

// notify queues ch for every matching watcher. Callers hold s.mu, which
// keeps changes to one document in commit order.
func (s *Store) notify(ch remote.Change) {
	for w := range s.watchers {
		if w.collection == ch.Collection && w.ownerID == ch.Document.OwnerID {
			w.enqueue(ch)
		}
	}
}

func clone(doc remote.Document) remote.Document {
	doc.Data = append([]byte(nil), doc.Data...)
	return doc
}

// watcher delivers queued changes to its handler on its own goroutine, so a
// slow handler never blocks writers.
type watcher struct {
	collection string
	ownerID    string
	fn         remote.Handler

	mu      sync.Mutex
	pending []remote.Change
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func newWatcher(collection, ownerID string, fn remote.Handler) *watcher {
	w := &watcher{
		collection: collection,
		ownerID:    ownerID,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *watcher) enqueue(ch remote.Change) {
	w.mu.Lock()
	w.pending = append(w.pending, ch)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case <-w.wake:
		}

		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		w.mu.Unlock()

		for _, ch := range batch {
			select {
			case <-w.quit:
				return
			default:
			}
			w.fn(ch)
		}
	}
}

func (w *watcher) close() {
	close(w.quit)
	<-w.done
}
