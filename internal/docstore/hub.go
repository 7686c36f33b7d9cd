package docstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Runner executes a query against a backend on behalf of the Hub.
type Runner func(ctx context.Context, q Query) ([]Document, error)

type subscription struct {
	q        Query
	onChange func(Snapshot)
	onError  func(error)

	// mu is held from query start to the end of delivery so results reach
	// onChange in the order they were read.
	mu      sync.Mutex
	stopped atomic.Bool
}

// Hub fans collection changes out to subscriptions by re-running their
// queries. Backends call Notify after every committed write.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
	run  Runner
}

// NewHub returns a hub that re-runs queries with run.
func NewHub(run Runner) *Hub {
	return &Hub{subs: make(map[int]*subscription), run: run}
}

// Subscribe registers the query and delivers the initial result
// synchronously before returning. A Notify racing with registration waits
// for the initial delivery.
func (h *Hub) Subscribe(ctx context.Context, q Query, onChange func(Snapshot), onError func(error)) (Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sub := &subscription{q: q, onChange: onChange, onError: onError}
	sub.mu.Lock()
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	unsubscribe := func() {
		sub.stopped.Store(true)
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	readAt := time.Now()
	docs, err := h.run(ctx, q)
	if err != nil {
		sub.mu.Unlock()
		unsubscribe()
		return nil, err
	}
	onChange(Snapshot{Docs: docs, ReadAt: readAt})
	sub.mu.Unlock()

	var once sync.Once
	return func() { once.Do(unsubscribe) }, nil
}

// Notify re-runs every subscription on collection and pushes the results.
// An empty collection notifies all subscriptions.
func (h *Hub) Notify(ctx context.Context, collection string) {
	h.mu.Lock()
	targets := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if collection == "" || s.q.Collection == collection {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		h.refresh(ctx, s)
	}
}

func (h *Hub) refresh(ctx context.Context, s *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return
	}

	readAt := time.Now()
	docs, err := h.run(ctx, s.q)
	if s.stopped.Load() {
		return
	}
	if err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	s.onChange(Snapshot{Docs: docs, ReadAt: readAt})
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	for _, s := range h.subs {
		s.stopped.Store(true)
	}
	h.subs = make(map[int]*subscription)
	h.mu.Unlock()
}
