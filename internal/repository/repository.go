// Package repository maps habits and completion records onto a document
// store. Every read and write is scoped to an owner.
//
// Queries rely on these composite indexes:
//
//	habits(ownerId, createdAt)
//	completions(ownerId, habitId, day)
//	completions(ownerId, day)
//	completions(habitId, day)  unique
//
// The SQL backends create them in their migrations. A Firestore project
// needs the matching composite indexes defined; Firestore cannot enforce
// the unique one, and `doctor` reports duplicates there.
package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/docstore"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/logger"
	"github.com/julianstephens/habitcoach/internal/metrics"
	"github.com/julianstephens/habitcoach/internal/models"
)

// Config tunes a Repository. Zero values fall back to the defaults in
// constants.
type Config struct {
	// Location is the zone calendar days are computed in.
	Location *time.Location
	// WindowDays bounds the completion query used for streak recompute.
	WindowDays int
	// Now is the clock; tests pin it.
	Now     func() time.Time
	Metrics *metrics.Metrics

	DeleteRetries uint64
	DeleteBackoff time.Duration
}

type Repository struct {
	docs docstore.Store
	cfg  Config
	log  *log.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateHabit checks the user-editable fields of a new habit. The name
// and description are trimmed first.
func ValidateHabit(name, description string) error {
	h := models.Habit{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := validate.StructPartial(h, "Name", "Description"); err != nil {
		return validationError(err)
	}
	return nil
}

// ValidatePatch trims the patched name in place and checks every field.
func ValidatePatch(patch *models.HabitPatch) error {
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return apperr.NewValidation("name", "must not be empty")
		}
		patch.Name = &trimmed
	}
	if err := validate.Struct(patch); err != nil {
		return validationError(err)
	}
	return nil
}

func New(docs docstore.Store, cfg Config) *Repository {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = constants.StreakWindowDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DeleteRetries == 0 {
		cfg.DeleteRetries = constants.DeleteMaxRetries
	}
	if cfg.DeleteBackoff <= 0 {
		cfg.DeleteBackoff = constants.DeleteRetryDelay
	}
	return &Repository{
		docs: docs,
		cfg:  cfg,
		log:  logger.Component("repository"),
	}
}

// Location returns the zone days are computed in.
func (r *Repository) Location() *time.Location { return r.cfg.Location }

// WindowDays returns the bounded streak window.
func (r *Repository) WindowDays() int { return r.cfg.WindowDays }

// track starts timing op; the returned func records the final error.
func (r *Repository) track(op string) func(*error) {
	start := time.Now()
	return func(err *error) { r.cfg.Metrics.ObserveOperation(op, start, *err) }
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperr.NewValidation("owner", "no owner is set")
	}
	return nil
}

// validationError turns validator output into the first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.NewValidation("", err.Error())
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.NewValidation(field, "must not be empty")
	case "max":
		return apperr.NewValidation(field, fmt.Sprintf("must be at most %s characters", fe.Param()))
	case "min":
		return apperr.NewValidation(field, fmt.Sprintf("must be at least %s", fe.Param()))
	default:
		return apperr.NewValidation(field, fmt.Sprintf("failed %q check", fe.Tag()))
	}
}

// backendErr classifies a docstore error for op.
func backendErr(op, kind, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NewNotFound(kind, id)
	}
	return apperr.NewBackend(op, err)
}

func habitFromDoc(doc docstore.Document) models.Habit {
	return models.Habit{
		ID:           doc.ID,
		OwnerID:      docstore.AsString(doc.Data[constants.FieldOwnerID]),
		Name:         docstore.AsString(doc.Data[constants.FieldName]),
		Description:  docstore.AsString(doc.Data[constants.FieldDescription]),
		CreatedAt:    asTime(doc.Data[constants.FieldCreatedAt]),
		CachedStreak: docstore.AsInt(doc.Data[constants.FieldCachedStreak]),
	}
}

func completionFromDoc(doc docstore.Document) models.CompletionRecord {
	return models.CompletionRecord{
		ID:          doc.ID,
		HabitID:     docstore.AsString(doc.Data[constants.FieldHabitID]),
		OwnerID:     docstore.AsString(doc.Data[constants.FieldOwnerID]),
		Day:         docstore.AsString(doc.Data[constants.FieldDay]),
		CompletedAt: asTime(doc.Data[constants.FieldCompletedAt]),
	}
}

// Instants are stored as RFC 3339 UTC strings so they sort lexically in
// every backend. Firestore may hand back native timestamps.
func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}
