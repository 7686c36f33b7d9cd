// Package store is the in-process habit state container. It applies every
// mutation optimistically, reconciles it with the repository, rolls back on
// failure, and merges realtime snapshots without overwriting rows that have
// a mutation in flight.
//
// Each row moves between two phases:
//
//	Idle    -> Pending   optimistic change applied, backend call running
//	Pending -> Idle      backend call settled (reconciled or rolled back)
//
// While a row is Pending, further mutations on it return ErrBusy and
// snapshots leave it untouched. When a row settles the store remembers
// when; a later snapshot whose queries ran before that moment is ignored
// for the row, so a slow delivery cannot undo a confirmed change.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/habitcoach/internal/docstore"
	"github.com/julianstephens/habitcoach/internal/logger"
	"github.com/julianstephens/habitcoach/internal/metrics"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/streak"
	"github.com/julianstephens/habitcoach/internal/utils"
)

var (
	// ErrNoOwner is returned by every mutation while no owner is set.
	ErrNoOwner = errors.New("no authenticated owner")
	// ErrBusy is returned when the habit already has a mutation in flight.
	ErrBusy = errors.New("habit has a pending change")
)

// Repository is the subset of the habit repository the store uses.
type Repository interface {
	CreateHabit(ctx context.Context, ownerID, name, description string) (string, error)
	UpdateHabit(ctx context.Context, ownerID, habitID string, patch models.HabitPatch) error
	DeleteHabit(ctx context.Context, ownerID, habitID string) error
	MarkComplete(ctx context.Context, ownerID, habitID, day string) error
	MarkIncomplete(ctx context.Context, ownerID, habitID, day string) error
	ListHabits(ctx context.Context, ownerID string) ([]models.Habit, error)
	RecomputeStreak(ctx context.Context, ownerID, habitID string, asOf time.Time) (streak.Stats, error)
	OwnerCompletions(ctx context.Context, ownerID, from, to string) ([]models.CompletionRecord, error)
	Subscribe(ctx context.Context, ownerID, day string, onChange func(models.Snapshot), onError func(error)) (docstore.Unsubscribe, error)
}

type Config struct {
	Location *time.Location
	Now      func() time.Time
	Metrics  *metrics.Metrics
	// Parallelism caps concurrent streak recomputes in RefreshAll.
	Parallelism int
}

type Store struct {
	repo Repository
	cfg  Config
	log  *log.Logger

	mu         sync.Mutex
	owner      string
	day        string
	rows       []models.HabitRow
	tombstones map[string]struct{}
	// settled records when each recently mutated habit last settled.
	settled  map[string]time.Time
	loading  bool
	err      error
	lastSync time.Time
	unsub    docstore.Unsubscribe
	// gen invalidates callbacks of torn-down subscriptions.
	gen uint64

	watchMu       sync.Mutex
	nextWatch     int
	watchers      map[int]func(Event)
	habitWatchers map[string]map[int]func(models.HabitRow)
}

func New(repo Repository, cfg Config) *Store {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Store{
		repo:          repo,
		cfg:           cfg,
		log:           logger.Component("store"),
		tombstones:    make(map[string]struct{}),
		settled:       make(map[string]time.Time),
		watchers:      make(map[int]func(Event)),
		habitWatchers: make(map[string]map[int]func(models.HabitRow)),
	}
}

func (s *Store) today() string {
	return utils.FormatDay(s.cfg.Now(), s.cfg.Location)
}

// Owner returns the current owner id, "" when signed out.
func (s *Store) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Day returns the calendar day CompletedToday refers to.
func (s *Store) Day() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}

// asOf is the start of day in the store's zone. Streaks are computed
// against the subscribed day, not the wall clock, so CompletedToday keeps
// referring to the day that was toggled until Rollover moves on.
func (s *Store) asOf(day string) time.Time {
	t, err := utils.ParseDateInLocation(day, s.cfg.Location)
	if err != nil {
		return s.cfg.Now()
	}
	return t
}

// SetOwner tears down the current subscription, clears the rows and
// subscribes for ownerID. An empty ownerID signs out.
func (s *Store) SetOwner(ctx context.Context, ownerID string) error {
	s.UnsubscribeAll()

	s.mu.Lock()
	s.owner = ownerID
	s.rows = nil
	s.tombstones = make(map[string]struct{})
	s.settled = make(map[string]time.Time)
	s.err = nil
	s.day = s.today()
	day := s.day
	s.mu.Unlock()
	s.publishHabits()

	if ownerID == "" {
		return nil
	}
	return s.subscribe(ctx, ownerID, day)
}

func (s *Store) subscribe(ctx context.Context, ownerID, day string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.loading = true
	s.mu.Unlock()

	unsub, err := s.repo.Subscribe(ctx, ownerID, day,
		func(snap models.Snapshot) { s.applySnapshot(gen, snap) },
		func(err error) { s.subscriptionFailed(gen, err) })
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.err = err
		s.mu.Unlock()
		s.notify(err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()
	return nil
}

// UnsubscribeAll stops the active subscription. It is safe to call when
// nothing is subscribed.
func (s *Store) UnsubscribeAll() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.gen++
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Subscribed reports whether a subscription is active.
func (s *Store) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsub != nil
}

// Rollover moves the store to the current calendar day: it resubscribes
// for the new day's completions and recomputes every streak. It does
// nothing when the day has not changed.
func (s *Store) Rollover(ctx context.Context) error {
	s.mu.Lock()
	owner := s.owner
	today := s.today()
	if owner == "" || today == s.day {
		s.mu.Unlock()
		return nil
	}
	s.day = today
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.log.Info("day rollover", "day", today)
	if err := s.subscribe(ctx, owner, today); err != nil {
		return err
	}
	return s.RefreshAll(ctx)
}

func (s *Store) subscriptionFailed(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.loading = false
	s.mu.Unlock()

	s.log.Warn("subscription error", "error", err)
	s.notify(err)
}

// applySnapshot merges a full snapshot. Pending rows keep their local
// state, tombstoned rows stay removed, and pending rows missing from the
// snapshot (provisional adds) are kept. Rows that settled after the
// snapshot was read keep their local state too, present or not.
func (s *Store) applySnapshot(gen uint64, snapshot models.Snapshot) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}

	existing := make(map[string]models.HabitRow, len(s.rows))
	for _, r := range s.rows {
		existing[r.Habit.ID] = r
	}
	outdated := func(id string) bool {
		at, ok := s.settled[id]
		return ok && !snapshot.ReadAt.IsZero() && !snapshot.ReadAt.After(at)
	}

	rows := make([]models.HabitRow, 0, len(snapshot.Habits))
	seen := make(map[string]struct{}, len(snapshot.Habits))
	for _, snap := range snapshot.Habits {
		id := snap.Habit.ID
		if _, dead := s.tombstones[id]; dead {
			continue
		}
		row, ok := existing[id]
		if outdated(id) {
			if !ok {
				// deleted here after this snapshot was read
				continue
			}
			seen[id] = struct{}{}
			rows = append(rows, row)
			continue
		}
		seen[id] = struct{}{}

		switch {
		case ok && row.Phase == models.PhasePending:
		case ok:
			row.Habit = snap.Habit
			row.CompletedToday = snap.CompletedToday
			row.Streak = snap.Habit.CachedStreak
		default:
			row = models.HabitRow{
				Habit:          snap.Habit,
				Streak:         snap.Habit.CachedStreak,
				CompletedToday: snap.CompletedToday,
			}
		}
		rows = append(rows, row)
	}
	for _, r := range s.rows {
		if _, ok := seen[r.Habit.ID]; ok {
			continue
		}
		if r.Phase == models.PhasePending || outdated(r.Habit.ID) {
			rows = append(rows, r)
		}
	}

	// deliveries arrive in read order, so later ones are newer still
	for id := range s.settled {
		if !outdated(id) && !snapshot.ReadAt.IsZero() {
			delete(s.settled, id)
		}
	}

	s.rows = rows
	s.loading = false
	s.lastSync = s.cfg.Now()
	n := len(rows)
	s.mu.Unlock()

	s.cfg.Metrics.Snapshot()
	s.cfg.Metrics.SetHabits(n)
	s.publishHabits()
	s.publish(Event{Kind: EventSync})
}

// Habits returns a copy of the current rows.
func (s *Store) Habits() []models.HabitRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HabitRow, len(s.rows))
	copy(out, s.rows)
	return out
}

// Loading reports whether a subscription or refresh has not delivered yet.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last surfaced error.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ClearError dismisses the last surfaced error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// LastSync returns when the rows were last reconciled with the backend.
func (s *Store) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// indexOf returns the row index of id or -1. Callers hold s.mu.
func (s *Store) indexOf(id string) int {
	for i, r := range s.rows {
		if r.Habit.ID == id {
			return i
		}
	}
	return -1
}
