package models

import "time"

// Habit represents a recurring practice to track
type Habit struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id" validate:"required"`
	Name        string    `json:"name" validate:"required,max=120"`
	Description string    `json:"description,omitempty" validate:"max=1000"`
	CreatedAt   time.Time `json:"created_at"`
	// CachedStreak is a denormalised copy of the current streak. The
	// completion log is authoritative.
	CachedStreak int `json:"cached_streak"`
}

// HabitPatch carries the editable fields of a habit. Nil fields are left
// untouched.
type HabitPatch struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	CachedStreak *int    `json:"cached_streak,omitempty" validate:"omitempty,min=0"`
}

// Empty reports whether the patch changes nothing.
func (p HabitPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.CachedStreak == nil
}

// Apply returns h with the patch applied.
func (p HabitPatch) Apply(h Habit) Habit {
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.Description != nil {
		h.Description = *p.Description
	}
	if p.CachedStreak != nil {
		h.CachedStreak = *p.CachedStreak
	}
	return h
}

// CompletionRecord is a single "habit done on day" fact.
type CompletionRecord struct {
	ID          string    `json:"id"`
	HabitID     string    `json:"habit_id"`
	OwnerID     string    `json:"owner_id"`
	Day         string    `json:"day"` // YYYY-MM-DD format, in the owner's timezone
	CompletedAt time.Time `json:"completed_at"`
}

// HabitSnapshot is one habit as delivered by a realtime subscription,
// together with whether it has a completion for the subscribed day.
type HabitSnapshot struct {
	Habit          Habit `json:"habit"`
	CompletedToday bool  `json:"completed_today"`
}

// Snapshot is one delivery of the habits subscription. ReadAt is when the
// older of its underlying queries ran, or zero when the backend delivers in
// commit order without stamping.
type Snapshot struct {
	Habits []HabitSnapshot `json:"habits"`
	ReadAt time.Time       `json:"read_at"`
}
