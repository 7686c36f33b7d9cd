package store

import (
	"time"

	"github.com/julianstephens/habitcoach/internal/models"
)

// EventKind identifies what changed in the store.
type EventKind int

const (
	// EventHabits carries the full row list after any change.
	EventHabits EventKind = iota
	// EventNotification carries a transient, dismissable error.
	EventNotification
	// EventSync marks a completed snapshot merge or refresh.
	EventSync
)

func (k EventKind) String() string {
	switch k {
	case EventHabits:
		return "habits"
	case EventNotification:
		return "notification"
	case EventSync:
		return "sync"
	default:
		return "unknown"
	}
}

// Event is delivered to every watcher. Habits is a copy the watcher may
// keep.
type Event struct {
	Kind   EventKind
	Habits []models.HabitRow
	Err    error
	At     time.Time
}

// Watch registers fn for every store event and returns a func that
// removes it. fn runs on the goroutine that caused the change and must
// not block.
func (s *Store) Watch(fn func(Event)) (cancel func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// WatchHabit registers fn for changes to one habit's row. The watcher is
// dropped when the habit is deleted.
func (s *Store) WatchHabit(habitID string, fn func(models.HabitRow)) (cancel func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	id := s.nextWatch
	s.nextWatch++
	if s.habitWatchers[habitID] == nil {
		s.habitWatchers[habitID] = make(map[int]func(models.HabitRow))
	}
	s.habitWatchers[habitID][id] = fn
	return func() {
		s.watchMu.Lock()
		delete(s.habitWatchers[habitID], id)
		if len(s.habitWatchers[habitID]) == 0 {
			delete(s.habitWatchers, habitID)
		}
		s.watchMu.Unlock()
	}
}

// HabitWatchers returns the number of per-habit watchers for habitID.
func (s *Store) HabitWatchers(habitID string) int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return len(s.habitWatchers[habitID])
}

func (s *Store) dropHabitWatchers(habitID string) {
	s.watchMu.Lock()
	delete(s.habitWatchers, habitID)
	s.watchMu.Unlock()
}

// publish delivers ev. It must be called without s.mu held.
func (s *Store) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = s.cfg.Now()
	}

	s.watchMu.Lock()
	watchers := make([]func(Event), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	var rowWatchers []func()
	if ev.Kind == EventHabits {
		for _, row := range ev.Habits {
			for _, fn := range s.habitWatchers[row.Habit.ID] {
				fn, row := fn, row
				rowWatchers = append(rowWatchers, func() { fn(row) })
			}
		}
	}
	s.watchMu.Unlock()

	for _, fn := range watchers {
		fn(ev)
	}
	for _, fn := range rowWatchers {
		fn()
	}
}

func (s *Store) publishHabits() {
	s.publish(Event{Kind: EventHabits, Habits: s.Habits()})
}

func (s *Store) notify(err error) {
	s.publish(Event{Kind: EventNotification, Err: err})
}
