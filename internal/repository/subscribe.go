package repository

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/docstore"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/models"
)

// Subscribe follows the owner's habits and their completions for day.
// onChange receives the full merged list every time either side changes,
// starting with the initial state before Subscribe returns. Deliveries are
// serialised and a merged list superseded before delivery is dropped.
// onChange may read through the repository but must not write.
func (r *Repository) Subscribe(ctx context.Context, ownerID, day string, onChange func(models.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validateDay("day", day); err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		habits    []models.Habit
		habitsAt  time.Time
		done      map[string]bool
		doneAt    time.Time
		habitsOK  bool
		doneOK    bool
		cancelled bool
		seq       uint64

		// deliverMu keeps the staleness check and onChange together.
		deliverMu sync.Mutex
	)
	// merged builds the list under mu and returns its sequence number.
	merged := func() (models.Snapshot, uint64, bool) {
		if cancelled || !habitsOK || !doneOK {
			return models.Snapshot{}, 0, false
		}
		out := models.Snapshot{
			Habits: make([]models.HabitSnapshot, 0, len(habits)),
			ReadAt: older(habitsAt, doneAt),
		}
		for _, h := range habits {
			out.Habits = append(out.Habits, models.HabitSnapshot{Habit: h, CompletedToday: done[h.ID]})
		}
		seq++
		return out, seq, true
	}
	deliver := func(out models.Snapshot, n uint64) {
		deliverMu.Lock()
		defer deliverMu.Unlock()
		mu.Lock()
		current := n == seq && !cancelled
		mu.Unlock()
		if current {
			onChange(out)
		}
	}
	fail := func(err error) {
		if onError != nil {
			onError(apperr.NewBackend("subscribe", err))
		}
	}

	stopDone, err := r.docs.Subscribe(ctx, docstore.Query{
		Collection: constants.CollectionCompletions,
		Filters: []docstore.Filter{
			docstore.Eq(constants.FieldOwnerID, ownerID),
			docstore.Eq(constants.FieldDay, day),
		},
	}, func(snap docstore.Snapshot) {
		mu.Lock()
		done = make(map[string]bool, len(snap.Docs))
		for _, d := range snap.Docs {
			done[docstore.AsString(d.Data[constants.FieldHabitID])] = true
		}
		doneAt = snap.ReadAt
		doneOK = true
		out, n, ok := merged()
		mu.Unlock()
		if ok {
			deliver(out, n)
		}
	}, fail)
	if err != nil {
		return nil, apperr.NewBackend("subscribe", err)
	}

	stopHabits, err := r.docs.Subscribe(ctx, habitsQuery(ownerID), func(snap docstore.Snapshot) {
		mu.Lock()
		habits = make([]models.Habit, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			habits = append(habits, habitFromDoc(d))
		}
		habitsAt = snap.ReadAt
		habitsOK = true
		out, n, ok := merged()
		mu.Unlock()
		if ok {
			deliver(out, n)
		}
	}, fail)
	if err != nil {
		stopDone()
		return nil, apperr.NewBackend("subscribe", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			stopHabits()
			stopDone()
			mu.Lock()
			cancelled = true
			mu.Unlock()
		})
	}, nil
}

// older returns the earlier of two read times. An unstamped side makes the
// result unstamped.
func older(a, b time.Time) time.Time {
	if a.IsZero() || b.IsZero() {
		return time.Time{}
	}
	if a.Before(b) {
		return a
	}
	return b
}
