package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/habitcoach/internal/constants"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/repository"
	"github.com/julianstephens/habitcoach/internal/streak"
)

// begin moves the row for id to Pending after applying change. It returns
// the row as it was before. A missing row yields a NotFoundError.
func (s *Store) begin(id string, change func(*models.HabitRow)) (owner string, prev models.HabitRow, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner == "" {
		return "", models.HabitRow{}, ErrNoOwner
	}
	i := s.indexOf(id)
	if i < 0 {
		return "", models.HabitRow{}, apperr.NewNotFound("habit", id)
	}
	if s.rows[i].Phase == models.PhasePending {
		return "", models.HabitRow{}, ErrBusy
	}
	prev = s.rows[i]
	row := prev
	change(&row)
	row.Phase = models.PhasePending
	row.IsLoading = true
	s.rows[i] = row
	return s.owner, prev, nil
}

// settle applies fn to the row for id and returns it to Idle.
func (s *Store) settle(id string, fn func(*models.HabitRow)) {
	s.mu.Lock()
	s.settled[id] = time.Now()
	if i := s.indexOf(id); i >= 0 {
		row := s.rows[i]
		fn(&row)
		row.Phase = models.PhaseIdle
		row.IsLoading = false
		s.rows[i] = row
	}
	s.mu.Unlock()
}

// rollback restores prev and surfaces err.
func (s *Store) rollback(mutation string, prev models.HabitRow, err error) {
	s.settle(prev.Habit.ID, func(r *models.HabitRow) { *r = prev })
	s.fail(mutation, err)
}

func (s *Store) fail(mutation string, err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.cfg.Metrics.Rollback(mutation)
	s.log.Warn("rolled back optimistic change", "mutation", mutation, "error", err)
	s.publishHabits()
	s.notify(err)
}

// notFound logs a mutation that targeted a habit that no longer exists.
func (s *Store) notFound(mutation, id string, err error) error {
	s.log.Warn("habit no longer exists", "mutation", mutation, "habit", id, "error", err)
	return nil
}

// ToggleCompletion flips today's completion for the habit. The row shows
// the new state and a streak adjusted by one until the backend confirms;
// the authoritative streak is then recomputed. On failure the row returns
// to its previous state.
func (s *Store) ToggleCompletion(ctx context.Context, habitID string) error {
	owner, prev, err := s.begin(habitID, func(r *models.HabitRow) {
		r.CompletedToday = !r.CompletedToday
		if r.CompletedToday {
			r.Streak++
		} else if r.Streak > 0 {
			r.Streak--
		}
	})
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return s.notFound("toggle", habitID, err)
	case err != nil:
		return err
	}
	s.publishHabits()

	day := s.Day()
	if prev.CompletedToday {
		err = s.repo.MarkIncomplete(ctx, owner, habitID, day)
	} else {
		err = s.repo.MarkComplete(ctx, owner, habitID, day)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.settle(habitID, func(r *models.HabitRow) { *r = prev })
			s.publishHabits()
			return s.notFound("toggle", habitID, err)
		}
		s.rollback("toggle", prev, err)
		return err
	}

	stats, err := s.repo.RecomputeStreak(ctx, owner, habitID, s.asOf(day))
	s.settle(habitID, func(r *models.HabitRow) {
		if err != nil {
			r.Stale = true
			return
		}
		applyStats(r, stats)
	})
	if err != nil {
		s.log.Warn("streak recompute failed, row marked stale", "habit", habitID, "error", err)
	}
	s.publishHabits()
	return nil
}

func applyStats(r *models.HabitRow, st streak.Stats) {
	r.Streak = st.Current
	r.LongestStreak = st.Longest
	r.CompletedToday = st.CompletedToday
	r.Habit.CachedStreak = st.Current
	r.Stale = false
}

// AddHabit inserts a provisional row, creates the habit and swaps in the
// real id. The provisional row is removed on failure. Invalid input is
// rejected before the row is inserted.
func (s *Store) AddHabit(ctx context.Context, name, description string) (string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if err := repository.ValidateHabit(name, description); err != nil {
		return "", err
	}

	tmpID := constants.TempIDPrefix + uuid.NewString()
	s.mu.Lock()
	owner := s.owner
	if owner == "" {
		s.mu.Unlock()
		return "", ErrNoOwner
	}
	s.rows = append(s.rows, models.HabitRow{
		Habit: models.Habit{
			ID:          tmpID,
			OwnerID:     owner,
			Name:        name,
			Description: description,
			CreatedAt:   s.cfg.Now(),
		},
		IsLoading: true,
		Phase:     models.PhasePending,
	})
	s.mu.Unlock()
	s.publishHabits()

	id, err := s.repo.CreateHabit(ctx, owner, name, description)

	s.mu.Lock()
	i := s.indexOf(tmpID)
	if i >= 0 {
		switch {
		case err != nil, s.indexOf(id) >= 0:
			// failed, or a snapshot already delivered the real row
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
		default:
			row := s.rows[i]
			row.Habit.ID = id
			row.Phase = models.PhaseIdle
			row.IsLoading = false
			s.rows[i] = row
		}
	}
	if err == nil {
		s.settled[id] = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.fail("add", err)
		return "", err
	}
	s.publishHabits()
	return id, nil
}

// UpdateHabit patches the row locally and restores it if the backend
// rejects the change.
func (s *Store) UpdateHabit(ctx context.Context, habitID string, patch models.HabitPatch) error {
	if patch.Empty() {
		return nil
	}
	if err := repository.ValidatePatch(&patch); err != nil {
		return err
	}

	owner, prev, err := s.begin(habitID, func(r *models.HabitRow) { r.Habit = patch.Apply(r.Habit) })
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return s.notFound("update", habitID, err)
	case err != nil:
		return err
	}
	s.publishHabits()

	if err := s.repo.UpdateHabit(ctx, owner, habitID, patch); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.settle(habitID, func(r *models.HabitRow) { *r = prev })
			s.publishHabits()
			return s.notFound("update", habitID, err)
		}
		s.rollback("update", prev, err)
		return err
	}

	s.settle(habitID, func(*models.HabitRow) {})
	s.publishHabits()
	return nil
}

// DeleteHabit removes the row locally and puts it back at its original
// position if the backend delete fails. After a partial failure the
// restored row carries stats recomputed from what is left of its log.
// Per-habit watchers are dropped once the habit is gone.
func (s *Store) DeleteHabit(ctx context.Context, habitID string) error {
	s.mu.Lock()
	owner := s.owner
	if owner == "" {
		s.mu.Unlock()
		return ErrNoOwner
	}
	pos := s.indexOf(habitID)
	if pos < 0 {
		s.mu.Unlock()
		return s.notFound("delete", habitID, apperr.NewNotFound("habit", habitID))
	}
	prev := s.rows[pos]
	if prev.Phase == models.PhasePending {
		s.mu.Unlock()
		return ErrBusy
	}
	s.rows = append(s.rows[:pos:pos], s.rows[pos+1:]...)
	s.tombstones[habitID] = struct{}{}
	s.mu.Unlock()
	s.publishHabits()

	err := s.repo.DeleteHabit(ctx, owner, habitID)

	var berr *apperr.BackendError
	if errors.As(err, &berr) && berr.Partial {
		prev = s.afterPartialDelete(ctx, owner, prev)
	}

	s.mu.Lock()
	delete(s.tombstones, habitID)
	s.settled[habitID] = time.Now()
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		if pos > len(s.rows) {
			pos = len(s.rows)
		}
		s.rows = append(s.rows[:pos], append([]models.HabitRow{prev}, s.rows[pos:]...)...)
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.fail("delete", err)
		return err
	}
	s.dropHabitWatchers(habitID)
	s.publishHabits()
	if err != nil {
		return s.notFound("delete", habitID, err)
	}
	return nil
}

// afterPartialDelete recomputes the stats of a habit whose completions were
// removed but which itself survived. Without a recompute the derived
// fields are zeroed and the row is marked stale.
func (s *Store) afterPartialDelete(ctx context.Context, owner string, row models.HabitRow) models.HabitRow {
	stats, err := s.repo.RecomputeStreak(ctx, owner, row.Habit.ID, s.asOf(s.Day()))
	if err != nil {
		s.log.Warn("streak recompute after partial delete failed", "habit", row.Habit.ID, "error", err)
		row.Streak = 0
		row.LongestStreak = 0
		row.CompletedToday = false
		row.Habit.CachedStreak = 0
		row.Stale = true
		return row
	}
	applyStats(&row, stats)
	return row
}

type refreshResult struct {
	stats streak.Stats
	err   error
}

// RefreshAll re-fetches every habit and recomputes each streak from the
// completion log, bypassing cachedStreak. Rows whose recompute fails are
// marked Stale; pending rows are left alone.
func (s *Store) RefreshAll(ctx context.Context) error {
	s.mu.Lock()
	owner := s.owner
	if owner == "" {
		s.mu.Unlock()
		return ErrNoOwner
	}
	s.loading = true
	day := s.day
	s.mu.Unlock()
	s.publishHabits()

	habits, err := s.repo.ListHabits(ctx, owner)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.err = err
		s.mu.Unlock()
		s.notify(err)
		return err
	}

	asOf := s.asOf(day)
	results := make([]refreshResult, len(habits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, h := range habits {
		i, h := i, h
		g.Go(func() error {
			stats, err := s.repo.RecomputeStreak(gctx, owner, h.ID, asOf)
			results[i] = refreshResult{stats: stats, err: err}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	existing := make(map[string]models.HabitRow, len(s.rows))
	for _, r := range s.rows {
		existing[r.Habit.ID] = r
	}
	rows := make([]models.HabitRow, 0, len(habits))
	seen := make(map[string]struct{}, len(habits))
	stale := 0
	for i, h := range habits {
		if _, dead := s.tombstones[h.ID]; dead {
			continue
		}
		seen[h.ID] = struct{}{}
		if r, ok := existing[h.ID]; ok && r.Phase == models.PhasePending {
			rows = append(rows, r)
			continue
		}
		row := models.HabitRow{Habit: h, Streak: h.CachedStreak}
		if old, ok := existing[h.ID]; ok {
			row.CompletedToday = old.CompletedToday
			row.LongestStreak = old.LongestStreak
		}
		if results[i].err != nil {
			row.Stale = true
			stale++
		} else {
			applyStats(&row, results[i].stats)
		}
		rows = append(rows, row)
	}
	for _, r := range s.rows {
		if _, ok := seen[r.Habit.ID]; !ok && r.Phase == models.PhasePending {
			rows = append(rows, r)
		}
	}
	s.rows = rows
	s.loading = false
	s.lastSync = s.cfg.Now()
	n := len(rows)
	s.mu.Unlock()

	if stale > 0 {
		s.log.Warn("some streaks could not be recomputed", "stale", stale)
	}
	s.cfg.Metrics.SetHabits(n)
	s.publishHabits()
	s.publish(Event{Kind: EventSync})
	return nil
}
