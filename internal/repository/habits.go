package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-retry"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/docstore"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/models"
)

// CreateHabit validates and stores a new habit and returns its id.
func (r *Repository) CreateHabit(ctx context.Context, ownerID, name, description string) (id string, err error) {
	defer r.track("create_habit")(&err)

	if err := requireOwner(ownerID); err != nil {
		return "", err
	}
	h := models.Habit{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   r.cfg.Now(),
	}
	if err := ValidateHabit(h.Name, h.Description); err != nil {
		return "", err
	}

	id, err = r.docs.Add(ctx, constants.CollectionHabits, docstore.Data{
		constants.FieldOwnerID:      h.OwnerID,
		constants.FieldName:         h.Name,
		constants.FieldDescription:  h.Description,
		constants.FieldCreatedAt:    formatInstant(h.CreatedAt),
		constants.FieldCachedStreak: 0,
	})
	if err != nil {
		return "", apperr.NewBackend("create habit", err)
	}
	return id, nil
}

// GetHabit returns the owner's habit. Habits of other owners are reported
// as not found.
func (r *Repository) GetHabit(ctx context.Context, ownerID, habitID string) (models.Habit, error) {
	if err := requireOwner(ownerID); err != nil {
		return models.Habit{}, err
	}
	doc, err := r.docs.Get(ctx, constants.CollectionHabits, habitID)
	if err != nil {
		return models.Habit{}, backendErr("get habit", "habit", habitID, err)
	}
	h := habitFromDoc(doc)
	if h.OwnerID != ownerID {
		return models.Habit{}, apperr.NewNotFound("habit", habitID)
	}
	return h, nil
}

// ListHabits returns the owner's habits in creation order.
func (r *Repository) ListHabits(ctx context.Context, ownerID string) (habits []models.Habit, err error) {
	defer r.track("list_habits")(&err)

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	docs, err := r.docs.Query(ctx, habitsQuery(ownerID))
	if err != nil {
		return nil, apperr.NewBackend("list habits", err)
	}
	habits = make([]models.Habit, 0, len(docs))
	for _, d := range docs {
		habits = append(habits, habitFromDoc(d))
	}
	return habits, nil
}

func habitsQuery(ownerID string) docstore.Query {
	return docstore.Query{
		Collection: constants.CollectionHabits,
		Filters:    []docstore.Filter{docstore.Eq(constants.FieldOwnerID, ownerID)},
		OrderBy:    []docstore.Order{{Field: constants.FieldCreatedAt}},
	}
}

// UpdateHabit applies the editable fields in patch.
func (r *Repository) UpdateHabit(ctx context.Context, ownerID, habitID string, patch models.HabitPatch) (err error) {
	defer r.track("update_habit")(&err)

	if patch.Empty() {
		return nil
	}
	if err := ValidatePatch(&patch); err != nil {
		return err
	}
	if _, err := r.GetHabit(ctx, ownerID, habitID); err != nil {
		return err
	}

	data := docstore.Data{}
	if patch.Name != nil {
		data[constants.FieldName] = *patch.Name
	}
	if patch.Description != nil {
		data[constants.FieldDescription] = *patch.Description
	}
	if patch.CachedStreak != nil {
		data[constants.FieldCachedStreak] = *patch.CachedStreak
	}
	if err := r.docs.Update(ctx, constants.CollectionHabits, habitID, data); err != nil {
		return backendErr("update habit", "habit", habitID, err)
	}
	return nil
}

// UpdateFields applies a raw field map. Identity fields are immutable and
// unknown fields are rejected.
func (r *Repository) UpdateFields(ctx context.Context, ownerID, habitID string, fields map[string]any) error {
	var patch models.HabitPatch
	for k, v := range fields {
		switch k {
		case "id", constants.FieldOwnerID, constants.FieldCreatedAt:
			return apperr.NewValidation(k, "is immutable")
		case constants.FieldName, constants.FieldDescription:
			s, ok := v.(string)
			if !ok {
				return apperr.NewValidation(k, "must be a string")
			}
			if k == constants.FieldName {
				patch.Name = &s
			} else {
				patch.Description = &s
			}
		case constants.FieldCachedStreak:
			if !docstore.IsNumeric(v) {
				return apperr.NewValidation(k, "must be a number")
			}
			n := docstore.AsInt(v)
			patch.CachedStreak = &n
		default:
			return apperr.NewValidation(k, "is not an editable field")
		}
	}
	return r.UpdateHabit(ctx, ownerID, habitID, patch)
}

// DeleteHabit removes the habit's completions and then the habit itself,
// so no completion is left pointing at a missing habit. The habit delete
// is retried; if it still fails the error is a partial BackendError.
func (r *Repository) DeleteHabit(ctx context.Context, ownerID, habitID string) (err error) {
	defer r.track("delete_habit")(&err)

	if _, err := r.GetHabit(ctx, ownerID, habitID); err != nil {
		return err
	}

	completions, err := r.docs.Query(ctx, docstore.Query{
		Collection: constants.CollectionCompletions,
		Filters: []docstore.Filter{
			docstore.Eq(constants.FieldOwnerID, ownerID),
			docstore.Eq(constants.FieldHabitID, habitID),
		},
	})
	if err != nil {
		return apperr.NewBackend("delete habit", err)
	}
	for i, c := range completions {
		if err := r.docs.Delete(ctx, constants.CollectionCompletions, c.ID); err != nil {
			if i > 0 {
				r.resetCachedStreak(ctx, ownerID, habitID)
			}
			return &apperr.BackendError{
				Op:      "delete habit",
				Partial: i > 0,
				Err:     fmt.Errorf("delete completion %s: %w", c.ID, err),
			}
		}
	}

	backoff := retry.WithMaxRetries(r.cfg.DeleteRetries, retry.NewExponential(r.cfg.DeleteBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.docs.Delete(ctx, constants.CollectionHabits, habitID); err != nil {
			r.log.Warn("habit delete failed, retrying", "habit", habitID, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.log.Error("habit left without completions", "habit", habitID, "removed", len(completions), "error", err)
		if len(completions) > 0 {
			r.resetCachedStreak(ctx, ownerID, habitID)
		}
		return &apperr.BackendError{Op: "delete habit", Partial: len(completions) > 0, Err: err}
	}
	return nil
}

// resetCachedStreak brings cachedStreak of a habit that survived a partial
// delete back in line with its completion log. Failures are only logged;
// the caller already reports the partial delete.
func (r *Repository) resetCachedStreak(ctx context.Context, ownerID, habitID string) {
	if _, err := r.RecomputeStreak(ctx, ownerID, habitID, r.cfg.Now()); err != nil {
		r.log.Warn("could not reset cached streak after partial delete", "habit", habitID, "error", err)
	}
}
