// Package memory is an in-process docstore used for tests and the
// "memory" backend.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/julianstephens/habitcoach/internal/docstore"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Data
	unique      map[string][][]string
	hub         *docstore.Hub
	closed      bool
}

// Option configures a Store.
type Option func(*Store)

// Unique makes Add reject a document in collection whose fields all equal
// those of an existing one, like a unique index in the SQL backends.
func Unique(collection string, fields ...string) Option {
	return func(s *Store) {
		s.unique[collection] = append(s.unique[collection], fields)
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]docstore.Data),
		unique:      make(map[string][][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = docstore.NewHub(s.Query)
	return s
}

// conflicts reports whether data collides with a document in c on any
// unique key. Callers hold s.mu.
func (s *Store) conflicts(collection string, c map[string]docstore.Data, data docstore.Data) bool {
	for _, fields := range s.unique[collection] {
		for _, existing := range c {
			same := true
			for _, f := range fields {
				if docstore.Compare(existing[f], data[f]) != 0 {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
	}
	return false
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Data) (string, error) {
	if !docstore.ValidField(collection) {
		return "", docstore.Query{Collection: collection}.Validate()
	}
	id := uuid.New().String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", docstore.ErrClosed
	}
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]docstore.Data)
		s.collections[collection] = c
	}
	if s.conflicts(collection, c, data) {
		s.mu.Unlock()
		return "", docstore.ErrConflict
	}
	c[id] = data.Clone()
	s.mu.Unlock()

	s.hub.Notify(ctx, collection)
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.Document{}, docstore.ErrClosed
	}
	data, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: data.Clone()}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, docstore.ErrClosed
	}
	docs := make([]docstore.Document, 0, len(s.collections[q.Collection]))
	for id, data := range s.collections[q.Collection] {
		docs = append(docs, docstore.Document{ID: id, Data: data.Clone()})
	}
	s.mu.RUnlock()

	return docstore.Apply(docs, q), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Data) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	data, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	for k, v := range patch {
		data[k] = v
	}
	s.mu.Unlock()

	s.hub.Notify(ctx, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	_, existed := s.collections[collection][id]
	delete(s.collections[collection], id)
	s.mu.Unlock()

	if existed {
		s.hub.Notify(ctx, collection)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onChange func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, q, onChange, onError)
}

// Count returns the number of documents in collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int { return s.hub.Len() }

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
