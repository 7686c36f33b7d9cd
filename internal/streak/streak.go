// Package streak derives streak and completion statistics from a habit's
// completion days. Everything here is pure; callers supply the reference
// day and the timezone the days are interpreted in.
package streak

import (
	"math"
	"sort"
	"time"

	"github.com/julianstephens/habitcoach/internal/utils"
)

// DaySet is a deduplicated set of calendar days in a single timezone.
type DaySet struct {
	loc  *time.Location
	days map[string]struct{}
}

// NewDaySet builds a set from instants, normalising each one to its
// calendar day in loc. Duplicates collapse.
func NewDaySet(loc *time.Location, days ...time.Time) DaySet {
	if loc == nil {
		loc = time.Local
	}
	s := DaySet{loc: loc, days: make(map[string]struct{}, len(days))}
	for _, d := range days {
		s.Add(d)
	}
	return s
}

// ParseDaySet builds a set from YYYY-MM-DD strings.
func ParseDaySet(loc *time.Location, days ...string) (DaySet, error) {
	s := NewDaySet(loc)
	for _, d := range days {
		if err := s.AddDay(d); err != nil {
			return DaySet{}, err
		}
	}
	return s, nil
}

// Add inserts the calendar day of t.
func (s *DaySet) Add(t time.Time) {
	if s.days == nil {
		*s = NewDaySet(s.loc)
	}
	s.days[utils.FormatDay(t, s.loc)] = struct{}{}
}

// AddDay inserts a YYYY-MM-DD day.
func (s *DaySet) AddDay(day string) error {
	t, err := utils.ParseDateInLocation(day, s.Location())
	if err != nil {
		return err
	}
	s.Add(t)
	return nil
}

// Has reports whether the calendar day of t is in the set.
func (s DaySet) Has(t time.Time) bool {
	_, ok := s.days[utils.FormatDay(t, s.Location())]
	return ok
}

// Len returns the number of distinct days.
func (s DaySet) Len() int { return len(s.days) }

// Location returns the timezone days are interpreted in.
func (s DaySet) Location() *time.Location {
	if s.loc == nil {
		return time.Local
	}
	return s.loc
}

// Days returns the days in ascending order, each at local midnight.
func (s DaySet) Days() []time.Time {
	out := make([]time.Time, 0, len(s.days))
	for d := range s.days {
		t, err := utils.ParseDateInLocation(d, s.Location())
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Current returns the length of the run of consecutive days ending at asOf,
// or at the day before when asOf has not been completed yet. A day that is
// not over does not break the streak.
func Current(s DaySet, asOf time.Time) int {
	n, _ := currentRun(s, asOf)
	return n
}

// currentRun returns the current streak and the last day of that run.
func currentRun(s DaySet, asOf time.Time) (int, time.Time) {
	day := utils.StartOfDay(asOf, s.Location())
	if !s.Has(day) {
		day = utils.AddDays(day, -1)
		if !s.Has(day) {
			return 0, time.Time{}
		}
	}
	end := day
	n := 0
	for s.Has(day) {
		n++
		day = utils.AddDays(day, -1)
	}
	return n, end
}

// Longest returns the longest run of consecutive calendar days.
func Longest(s DaySet) int {
	days := s.Days()
	if len(days) == 0 {
		return 0
	}
	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if utils.DaysBetween(days[i-1], days[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// CompletionRate returns the share of days in [asOf-windowDays+1, asOf]
// that are in the set, rounded to the nearest integer percent.
func CompletionRate(s DaySet, windowDays int, asOf time.Time) int {
	if windowDays <= 0 {
		return 0
	}
	end := utils.StartOfDay(asOf, s.Location())
	start := utils.AddDays(end, -(windowDays - 1))
	count := 0
	for d := range s.days {
		t, err := utils.ParseDateInLocation(d, s.Location())
		if err != nil {
			continue
		}
		if !t.Before(start) && !t.After(end) {
			count++
		}
	}
	return int(math.Round(float64(count) * 100 / float64(windowDays)))
}

// Stats bundles every statistic for one habit.
type Stats struct {
	Current        int  `json:"current"`
	Longest        int  `json:"longest"`
	CompletionRate int  `json:"completion_rate"`
	CompletedToday bool `json:"completed_today"`
	// WindowBound is true when the current run reaches the first day of
	// the queried window, so the real streak may be longer.
	WindowBound bool `json:"window_bound"`
}

// Compute derives Stats from a set that was loaded for the windowDays
// ending at asOf.
func Compute(s DaySet, windowDays int, asOf time.Time) Stats {
	current, end := currentRun(s, asOf)
	st := Stats{
		Current:        current,
		Longest:        Longest(s),
		CompletionRate: CompletionRate(s, windowDays, asOf),
		CompletedToday: s.Has(asOf),
	}
	if current > 0 && windowDays > 0 {
		windowStart := utils.AddDays(utils.StartOfDay(asOf, s.Location()), -(windowDays - 1))
		runStart := utils.AddDays(end, -(current - 1))
		st.WindowBound = !runStart.After(windowStart)
	}
	return st
}
