package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = stderrors.New("validation failed")
	// ErrBackend matches every BackendError.
	ErrBackend = stderrors.New("backend operation failed")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = stderrors.New("not found")
	// ErrStaleStreak matches every StaleStreakWarning.
	ErrStaleStreak = stderrors.New("streak may extend beyond query window")
)

// ValidationError reports caller-supplied data that violates a precondition.
// It is raised before anything is sent to the backend.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidation returns a ValidationError for field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// BackendError wraps a document store failure. Partial is set when a
// multi-step write stopped midway (e.g. completions deleted, habit kept).
type BackendError struct {
	Op      string
	Partial bool
	Err     error
}

func (e *BackendError) Error() string {
	if e.Partial {
		return fmt.Sprintf("%s: partial failure: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// NewBackend wraps err as a BackendError for op. A nil err yields nil, and
// errors that already carry a taxonomy type are returned unchanged.
func NewBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, ErrValidation) || stderrors.Is(err, ErrNotFound) || stderrors.Is(err, ErrBackend) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// NotFoundError reports a mutation that targets a missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound returns a NotFoundError for the given entity.
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// StaleStreakWarning is informational: the current run reaches the first
// day of the bounded recompute window and may be longer than reported.
type StaleStreakWarning struct {
	HabitID    string
	Streak     int
	WindowDays int
}

func (w *StaleStreakWarning) Error() string {
	return fmt.Sprintf("habit %s: streak of %d reaches the %d-day query window and may be undercounted",
		w.HabitID, w.Streak, w.WindowDays)
}

func (w *StaleStreakWarning) Is(target error) bool { return target == ErrStaleStreak }
