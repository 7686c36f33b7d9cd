package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/streak"
)

// HabitStats is one habit's line in the report.
type HabitStats struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	CompletionRate int    `json:"completion_rate"`
	CompletedToday bool   `json:"completed_today"`
	Stale          bool   `json:"stale,omitempty"`
}

// Report is the full statistics output.
type Report struct {
	Days        int               `json:"days"`
	Progress    int               `json:"progress"`
	Habits      []HabitStats      `json:"habits"`
	PerDay      []models.DayCount `json:"per_day"`
	SuccessRate []models.DayRate  `json:"success_rate"`
}

type StatsCmd struct {
	Days int  `help:"Window for completion rates and daily series." default:"30"`
	JSON bool `help:"Print the report as JSON."`
}

func (c *StatsCmd) Run(ctx *cli.Context) error {
	if c.Days < 1 || c.Days > constants.StreakWindowDays {
		return fmt.Errorf("--days must be between 1 and %d", constants.StreakWindowDays)
	}
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}

	report, err := Build(bg, ctx, c.Days)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(ctx, report)
	return nil
}

// Build assembles the report. Completion rates are loaded in parallel.
func Build(ctx context.Context, app *cli.Context, days int) (Report, error) {
	rows := app.Store.Habits()
	owner := app.Store.Owner()
	now := app.Now()

	habits := make([]HabitStats, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			set, err := app.Repo.CompletionDates(gctx, owner, row.Habit.ID, days, now)
			if err != nil {
				return err
			}
			habits[i] = HabitStats{
				ID:             row.Habit.ID,
				Name:           row.Habit.Name,
				Current:        row.Streak,
				Longest:        row.LongestStreak,
				CompletionRate: streak.CompletionRate(set, days, now),
				CompletedToday: row.CompletedToday,
				Stale:          row.Stale,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	perDay, err := app.Store.CompletedHabitsPerDay(ctx, days)
	if err != nil {
		return Report{}, err
	}
	rates, err := app.Store.DailySuccessRate(ctx, days)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Days:        days,
		Progress:    app.Store.ProgressPercentage(),
		Habits:      habits,
		PerDay:      perDay,
		SuccessRate: rates,
	}, nil
}

func printReport(ctx *cli.Context, r Report) {
	ctx.Printf("Today: %d%% complete\n\n", r.Progress)
	if len(r.Habits) == 0 {
		ctx.Println("No habits found.")
		return
	}

	ctx.Printf("%s %7s %7s %6s\n", cli.Truncate("Habit", 24), "Streak", "Best", "Rate")
	ctx.Println(strings.Repeat("-", 47))
	for _, h := range r.Habits {
		note := ""
		if h.Stale {
			note = " (stale)"
		}
		ctx.Printf("%s %7d %7d %5d%%%s\n", cli.Truncate(h.Name, 24), h.Current, h.Longest, h.CompletionRate, note)
	}

	ctx.Printf("\nLast %d days:\n", r.Days)
	for i, d := range r.PerDay {
		rate := 0
		if i < len(r.SuccessRate) {
			rate = r.SuccessRate[i].Rate
		}
		ctx.Printf("  %s  %-20s %3d%%\n", d.Day, strings.Repeat("#", d.Count), rate)
	}
}
