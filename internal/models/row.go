package models

// Phase is the per-row state of the optimistic mutation protocol.
type Phase int

const (
	// PhaseIdle rows reflect the last confirmed or settled state.
	PhaseIdle Phase = iota
	// PhasePending rows have a mutation in flight; snapshots are ignored.
	PhasePending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	default:
		return "unknown"
	}
}

// HabitRow is the client-side view of a habit with derived state.
type HabitRow struct {
	Habit          Habit `json:"habit"`
	Streak         int   `json:"streak"`
	LongestStreak  int   `json:"longest_streak"`
	CompletedToday bool  `json:"completed_today"`
	IsLoading      bool  `json:"is_loading"`
	// Stale is set when the derived fields could not be refreshed from
	// the completion log and may be out of date.
	Stale bool  `json:"stale"`
	Phase Phase `json:"-"`
}

// DayCount is the number of completed habits on one day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// DayRate is the share of habits completed on one day, in percent.
type DayRate struct {
	Day  string `json:"day"`
	Rate int    `json:"rate"`
}

// HabitSummary is a compact habit entry handed to the coach.
type HabitSummary struct {
	Name           string `json:"name"`
	Streak         int    `json:"streak"`
	CompletedToday bool   `json:"completedToday"`
}

// HabitContext is the habit state passed to the chat backend. Its shape is
// part of the backend contract.
type HabitContext struct {
	TotalHabits        int            `json:"totalHabits"`
	CompletedToday     int            `json:"completedToday"`
	ProgressPercentage int            `json:"progressPercentage"`
	TopHabits          []HabitSummary `json:"topHabits"`
}
