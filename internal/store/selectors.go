package store

import (
	"context"
	"math"
	"sort"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/utils"
)

// HabitByID returns the row for id.
func (s *Store) HabitByID(id string) (models.HabitRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.rows[i], true
	}
	return models.HabitRow{}, false
}

// CompletedHabitsCount returns how many habits are completed today.
func (s *Store) CompletedHabitsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.CompletedToday {
			n++
		}
	}
	return n
}

func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(whole)))
}

// ProgressPercentage returns today's completed share in percent.
func (s *Store) ProgressPercentage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := 0
	for _, r := range s.rows {
		if r.CompletedToday {
			done++
		}
	}
	return percent(done, len(s.rows))
}

// HabitsWithStreaks returns rows with a running streak, longest first.
func (s *Store) HabitsWithStreaks() []models.HabitRow {
	var out []models.HabitRow
	for _, r := range s.Habits() {
		if r.Streak > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Streak > out[j].Streak })
	return out
}

// window returns the first and last day of the windowDays ending today.
func (s *Store) window(windowDays int) (from, to string, days []string) {
	end := utils.StartOfDay(s.cfg.Now(), s.cfg.Location)
	start := utils.AddDays(end, -(windowDays - 1))
	for d := start; !d.After(end); d = utils.AddDays(d, 1) {
		days = append(days, d.Format(constants.DateFormat))
	}
	return days[0], days[len(days)-1], days
}

// completedByDay loads the owner's completions for the window and returns
// the set of known habits completed on each day.
func (s *Store) completedByDay(ctx context.Context, windowDays int) ([]string, map[string]map[string]struct{}, []models.HabitRow, error) {
	owner := s.Owner()
	if owner == "" {
		return nil, nil, nil, ErrNoOwner
	}
	if windowDays <= 0 {
		return nil, nil, nil, nil
	}
	from, to, days := s.window(windowDays)
	records, err := s.repo.OwnerCompletions(ctx, owner, from, to)
	if err != nil {
		return nil, nil, nil, err
	}

	rows := s.Habits()
	known := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		known[r.Habit.ID] = struct{}{}
	}
	byDay := make(map[string]map[string]struct{})
	for _, rec := range records {
		if _, ok := known[rec.HabitID]; !ok {
			continue
		}
		if byDay[rec.Day] == nil {
			byDay[rec.Day] = make(map[string]struct{})
		}
		byDay[rec.Day][rec.HabitID] = struct{}{}
	}
	return days, byDay, rows, nil
}

// CompletedHabitsPerDay returns the number of habits completed on each of
// the last windowDays days, oldest first.
func (s *Store) CompletedHabitsPerDay(ctx context.Context, windowDays int) ([]models.DayCount, error) {
	days, byDay, _, err := s.completedByDay(ctx, windowDays)
	if err != nil {
		return nil, err
	}
	out := make([]models.DayCount, 0, len(days))
	for _, d := range days {
		out = append(out, models.DayCount{Day: d, Count: len(byDay[d])})
	}
	return out, nil
}

// DailySuccessRate returns, for each of the last windowDays days, the share
// of habits that existed on that day and were completed.
func (s *Store) DailySuccessRate(ctx context.Context, windowDays int) ([]models.DayRate, error) {
	days, byDay, rows, err := s.completedByDay(ctx, windowDays)
	if err != nil {
		return nil, err
	}
	created := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Habit.CreatedAt.IsZero() {
			created = append(created, "")
			continue
		}
		created = append(created, utils.FormatDay(r.Habit.CreatedAt, s.cfg.Location))
	}

	out := make([]models.DayRate, 0, len(days))
	for _, d := range days {
		existing := 0
		for _, c := range created {
			if c <= d {
				existing++
			}
		}
		out = append(out, models.DayRate{Day: d, Rate: percent(len(byDay[d]), existing)})
	}
	return out, nil
}

// ChatContext summarises the store for the coach backend.
func (s *Store) ChatContext() models.HabitContext {
	rows := s.Habits()
	completed := 0
	for _, r := range rows {
		if r.CompletedToday {
			completed++
		}
	}

	sorted := make([]models.HabitRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Streak != sorted[j].Streak {
			return sorted[i].Streak > sorted[j].Streak
		}
		return sorted[i].Habit.Name < sorted[j].Habit.Name
	})
	if len(sorted) > constants.CoachTopHabits {
		sorted = sorted[:constants.CoachTopHabits]
	}

	top := make([]models.HabitSummary, 0, len(sorted))
	for _, r := range sorted {
		top = append(top, models.HabitSummary{
			Name:           r.Habit.Name,
			Streak:         r.Streak,
			CompletedToday: r.CompletedToday,
		})
	}
	return models.HabitContext{
		TotalHabits:        len(rows),
		CompletedToday:     completed,
		ProgressPercentage: percent(completed, len(rows)),
		TopHabits:          top,
	}
}
