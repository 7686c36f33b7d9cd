package repository

import (
	"context"
	"errors"
	"time"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/docstore"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/streak"
	"github.com/julianstephens/habitcoach/internal/utils"
)

// Day returns the calendar day of t in the repository's zone.
func (r *Repository) Day(t time.Time) string {
	return utils.FormatDay(t, r.cfg.Location)
}

// Today returns the current calendar day.
func (r *Repository) Today() string {
	return r.Day(r.cfg.Now())
}

func validateDay(field, day string) error {
	if _, err := time.Parse(constants.DateFormat, day); err != nil {
		return apperr.NewValidation(field, "must be a YYYY-MM-DD date")
	}
	return nil
}

func dayQuery(ownerID, habitID, day string) docstore.Query {
	return docstore.Query{
		Collection: constants.CollectionCompletions,
		Filters: []docstore.Filter{
			docstore.Eq(constants.FieldOwnerID, ownerID),
			docstore.Eq(constants.FieldHabitID, habitID),
			docstore.Eq(constants.FieldDay, day),
		},
	}
}

// MarkComplete records a completion for day. A second call for the same
// day is a no-op, including when another writer wins the race to insert
// it and the backend's unique index rejects this one.
func (r *Repository) MarkComplete(ctx context.Context, ownerID, habitID, day string) (err error) {
	defer r.track("mark_complete")(&err)

	if err := validateDay("day", day); err != nil {
		return err
	}
	if _, err := r.GetHabit(ctx, ownerID, habitID); err != nil {
		return err
	}

	q := dayQuery(ownerID, habitID, day)
	q.Limit = 1
	existing, err := r.docs.Query(ctx, q)
	if err != nil {
		return apperr.NewBackend("mark complete", err)
	}
	if len(existing) > 0 {
		return nil
	}

	_, err = r.docs.Add(ctx, constants.CollectionCompletions, docstore.Data{
		constants.FieldOwnerID:     ownerID,
		constants.FieldHabitID:     habitID,
		constants.FieldDay:         day,
		constants.FieldCompletedAt: formatInstant(r.cfg.Now()),
	})
	if errors.Is(err, docstore.ErrConflict) {
		r.log.Debug("completion already recorded by another writer", "habit", habitID, "day", day)
		return nil
	}
	if err != nil {
		return apperr.NewBackend("mark complete", err)
	}
	return nil
}

// MarkIncomplete deletes every completion for day. It succeeds when there
// is nothing to delete.
func (r *Repository) MarkIncomplete(ctx context.Context, ownerID, habitID, day string) (err error) {
	defer r.track("mark_incomplete")(&err)

	if err := validateDay("day", day); err != nil {
		return err
	}
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	docs, err := r.docs.Query(ctx, dayQuery(ownerID, habitID, day))
	if err != nil {
		return apperr.NewBackend("mark incomplete", err)
	}
	for _, d := range docs {
		if err := r.docs.Delete(ctx, constants.CollectionCompletions, d.ID); err != nil {
			return apperr.NewBackend("mark incomplete", err)
		}
	}
	return nil
}

// QueryCompletions returns the habit's completions with from <= day <= to,
// oldest first. Empty bounds are open.
func (r *Repository) QueryCompletions(ctx context.Context, ownerID, habitID, from, to string) ([]models.CompletionRecord, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	filters := []docstore.Filter{
		docstore.Eq(constants.FieldOwnerID, ownerID),
		docstore.Eq(constants.FieldHabitID, habitID),
	}
	return r.completions(ctx, "query completions", filters, from, to)
}

// OwnerCompletions returns all of the owner's completions with
// from <= day <= to, oldest first.
func (r *Repository) OwnerCompletions(ctx context.Context, ownerID, from, to string) ([]models.CompletionRecord, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	filters := []docstore.Filter{docstore.Eq(constants.FieldOwnerID, ownerID)}
	return r.completions(ctx, "owner completions", filters, from, to)
}

func (r *Repository) completions(ctx context.Context, op string, filters []docstore.Filter, from, to string) ([]models.CompletionRecord, error) {
	if from != "" {
		if err := validateDay("from", from); err != nil {
			return nil, err
		}
		filters = append(filters, docstore.Filter{Field: constants.FieldDay, Op: docstore.OpGreaterEq, Value: from})
	}
	if to != "" {
		if err := validateDay("to", to); err != nil {
			return nil, err
		}
		filters = append(filters, docstore.Filter{Field: constants.FieldDay, Op: docstore.OpLessEq, Value: to})
	}

	docs, err := r.docs.Query(ctx, docstore.Query{
		Collection: constants.CollectionCompletions,
		Filters:    filters,
		OrderBy:    []docstore.Order{{Field: constants.FieldDay}},
	})
	if err != nil {
		return nil, apperr.NewBackend(op, err)
	}
	out := make([]models.CompletionRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, completionFromDoc(d))
	}
	return out, nil
}

// CompletionDates loads the habit's completion days inside the windowDays
// ending at asOf. On failure it returns an empty set with the error.
func (r *Repository) CompletionDates(ctx context.Context, ownerID, habitID string, windowDays int, asOf time.Time) (streak.DaySet, error) {
	set := streak.NewDaySet(r.cfg.Location)
	if windowDays <= 0 {
		return set, nil
	}
	end := utils.StartOfDay(asOf, r.cfg.Location)
	start := utils.AddDays(end, -(windowDays - 1))

	records, err := r.QueryCompletions(ctx, ownerID, habitID,
		start.Format(constants.DateFormat), end.Format(constants.DateFormat))
	if err != nil {
		return set, err
	}
	for _, rec := range records {
		if err := set.AddDay(rec.Day); err != nil {
			r.log.Warn("skipping malformed completion day", "habit", habitID, "day", rec.Day)
		}
	}
	return set, nil
}

// RecomputeStreak recomputes the habit's statistics from the bounded
// completion window and writes the current streak back to cachedStreak.
// A run that reaches the start of the window is reported with a
// StaleStreakWarning in the log; the returned error stays nil.
func (r *Repository) RecomputeStreak(ctx context.Context, ownerID, habitID string, asOf time.Time) (stats streak.Stats, err error) {
	defer r.track("recompute_streak")(&err)

	if _, err := r.GetHabit(ctx, ownerID, habitID); err != nil {
		return streak.Stats{}, err
	}
	set, err := r.CompletionDates(ctx, ownerID, habitID, r.cfg.WindowDays, asOf)
	if err != nil {
		return streak.Stats{}, err
	}
	stats = streak.Compute(set, r.cfg.WindowDays, asOf)

	if err := r.docs.Update(ctx, constants.CollectionHabits, habitID, docstore.Data{
		constants.FieldCachedStreak: stats.Current,
	}); err != nil {
		return stats, backendErr("recompute streak", "habit", habitID, err)
	}

	if stats.WindowBound {
		warning := &apperr.StaleStreakWarning{HabitID: habitID, Streak: stats.Current, WindowDays: r.cfg.WindowDays}
		r.log.Warn(warning.Error(), "habit", habitID)
		r.cfg.Metrics.StaleStreak()
	}
	return stats, nil
}
