package habits

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/utils"
)

// resolveDay returns date, or the store's current day when date is empty.
// Future days are rejected.
func resolveDay(ctx *cli.Context, date string) (string, error) {
	today := ctx.Store.Day()
	if date == "" {
		return today, nil
	}
	if _, err := time.Parse(constants.DateFormat, date); err != nil {
		return "", fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", date)
	}
	if date > today {
		return "", fmt.Errorf("cannot change a future day: %s", date)
	}
	return date, nil
}

type HabitDoneCmd struct {
	Habit string `arg:"" help:"Habit name or id."`
	Date  string `help:"Date in YYYY-MM-DD format (default: today)." default:""`
}

func (c *HabitDoneCmd) Run(ctx *cli.Context) error {
	return setCompletion(ctx, c.Habit, c.Date, true)
}

type HabitUndoCmd struct {
	Habit string `arg:"" help:"Habit name or id."`
	Date  string `help:"Date in YYYY-MM-DD format (default: today)." default:""`
}

func (c *HabitUndoCmd) Run(ctx *cli.Context) error {
	return setCompletion(ctx, c.Habit, c.Date, false)
}

// setCompletion marks or unmarks a day. Today goes through the store's
// optimistic toggle; past days are written directly and the streak is
// recomputed.
func setCompletion(ctx *cli.Context, ref, date string, done bool) error {
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}
	row, err := ctx.FindHabit(ref)
	if err != nil {
		return err
	}
	day, err := resolveDay(ctx, date)
	if err != nil {
		return err
	}
	verb := "Marked"
	if !done {
		verb = "Unmarked"
	}

	streak := row.Streak
	if day == ctx.Store.Day() {
		if row.CompletedToday == done {
			ctx.Printf("%q is already %s for %s\n", row.Habit.Name, state(done), day)
			return nil
		}
		if err := ctx.Store.ToggleCompletion(bg, row.Habit.ID); err != nil {
			return err
		}
		if updated, ok := ctx.Store.HabitByID(row.Habit.ID); ok {
			streak = updated.Streak
		}
	} else {
		owner := ctx.Store.Owner()
		if done {
			err = ctx.Repo.MarkComplete(bg, owner, row.Habit.ID, day)
		} else {
			err = ctx.Repo.MarkIncomplete(bg, owner, row.Habit.ID, day)
		}
		if err != nil {
			return err
		}
		stats, err := ctx.Repo.RecomputeStreak(bg, owner, row.Habit.ID, ctx.Now())
		if err != nil {
			return err
		}
		streak = stats.Current
	}

	ctx.Printf("%s habit %q for %s. Current streak: %d %s\n", verb, row.Habit.Name, day, streak, days(streak))
	return nil
}

func state(done bool) string {
	if done {
		return "done"
	}
	return "not done"
}

func days(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

type HabitTodayCmd struct{}

func (c *HabitTodayCmd) Run(ctx *cli.Context) error {
	if err := ctx.Session(context.Background()); err != nil {
		return err
	}
	rows := ctx.Store.Habits()
	if len(rows) == 0 {
		ctx.Println("No habits found.")
		return nil
	}

	day := ctx.Store.Day()
	weekday := ""
	if t, err := utils.ParseDateInLocation(day, ctx.Location); err == nil {
		weekday = t.Weekday().String() + " "
	}
	ctx.Printf("Habits for %s%s:\n\n", weekday, day)
	for _, row := range rows {
		status := "[ ]"
		if row.CompletedToday {
			status = "[x]"
		}
		streak := ""
		if row.Streak > 0 {
			streak = fmt.Sprintf("  (%d %s)", row.Streak, days(row.Streak))
		}
		ctx.Printf("%s %s%s\n", status, row.Habit.Name, streak)
	}

	ctx.Printf("\nRecorded: %d/%d (%d%%)\n", ctx.Store.CompletedHabitsCount(), len(rows), ctx.Store.ProgressPercentage())
	return nil
}
