package habits

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/utils"
)

const logNameWidth = 20

type HabitLogCmd struct {
	Days  int    `help:"Number of days to show." default:"14"`
	Habit string `help:"Show log for specific habit only."`
}

func (c *HabitLogCmd) Run(ctx *cli.Context) error {
	if c.Days < 1 || c.Days > constants.StreakWindowDays {
		return fmt.Errorf("--days must be between 1 and %d", constants.StreakWindowDays)
	}
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}

	var selected []models.HabitRow
	if c.Habit != "" {
		row, err := ctx.FindHabit(c.Habit)
		if err != nil {
			return err
		}
		selected = []models.HabitRow{row}
	} else {
		selected = ctx.Store.Habits()
	}
	if len(selected) == 0 {
		ctx.Println("No habits found.")
		return nil
	}

	endDay := utils.StartOfDay(ctx.Now(), ctx.Location)
	startDay := utils.AddDays(endDay, -(c.Days - 1))
	records, err := ctx.Repo.OwnerCompletions(bg, ctx.Store.Owner(),
		startDay.Format(constants.DateFormat), endDay.Format(constants.DateFormat))
	if err != nil {
		return err
	}
	done := make(map[string]map[string]bool)
	for _, rec := range records {
		if done[rec.HabitID] == nil {
			done[rec.HabitID] = make(map[string]bool)
		}
		done[rec.HabitID][rec.Day] = true
	}

	ctx.Printf("Habit log (last %d days):\n\n", c.Days)
	ctx.Printf("%s", cli.Truncate("Habit", logNameWidth))
	for i := 0; i < c.Days; i++ {
		ctx.Printf(" %5s", utils.AddDays(startDay, i).Format("01/02"))
	}
	ctx.Println()
	ctx.Println(strings.Repeat("-", logNameWidth) + strings.Repeat("------", c.Days))

	for _, row := range selected {
		ctx.Printf("%s", cli.Truncate(row.Habit.Name, logNameWidth))
		for i := 0; i < c.Days; i++ {
			day := utils.AddDays(startDay, i).Format(constants.DateFormat)
			if done[row.Habit.ID][day] {
				ctx.Printf("  x   ")
			} else {
				ctx.Printf("  .   ")
			}
		}
		ctx.Println()
	}
	return nil
}
