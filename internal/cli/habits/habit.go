package habits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/models"
)

type HabitCmd struct {
	Add    HabitAddCmd    `cmd:"" help:"Add a new habit."`
	List   HabitListCmd   `cmd:"" help:"List habits with their streaks."`
	Edit   HabitEditCmd   `cmd:"" help:"Rename a habit or change its description."`
	Delete HabitDeleteCmd `cmd:"" help:"Delete a habit and its completion history."`
	Done   HabitDoneCmd   `cmd:"" help:"Mark a habit as done for a day."`
	Undo   HabitUndoCmd   `cmd:"" help:"Remove a habit's completion for a day."`
	Today  HabitTodayCmd  `cmd:"" help:"Show today's habit checklist."`
	Log    HabitLogCmd    `cmd:"" help:"Show habit log (ASCII history)."`
}

type HabitAddCmd struct {
	Name        string `arg:"" help:"Habit name."`
	Description string `short:"d" help:"Optional description."`
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}
	for _, row := range ctx.Store.Habits() {
		if strings.EqualFold(row.Habit.Name, strings.TrimSpace(c.Name)) {
			return fmt.Errorf("habit with name %q already exists", c.Name)
		}
	}

	id, err := ctx.Store.AddHabit(bg, c.Name, c.Description)
	if err != nil {
		return err
	}
	ctx.Printf("Added habit: %s (%s)\n", strings.TrimSpace(c.Name), id)
	return nil
}

type HabitListCmd struct {
	JSON bool `help:"Print habits as JSON."`
}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	if err := ctx.Session(context.Background()); err != nil {
		return err
	}
	rows := ctx.Store.Habits()

	if c.JSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		ctx.Println("No habits found.")
		return nil
	}

	ctx.Printf("%s %7s %7s  %s\n", cli.Truncate("Habit", 24), "Streak", "Best", "Today")
	ctx.Println(strings.Repeat("-", 50))
	for _, row := range rows {
		mark := "[ ]"
		if row.CompletedToday {
			mark = "[x]"
		}
		note := ""
		if row.Stale {
			note = " (stale)"
		}
		ctx.Printf("%s %7d %7d  %s%s\n", cli.Truncate(row.Habit.Name, 24), row.Streak, row.LongestStreak, mark, note)
	}
	return nil
}

type HabitEditCmd struct {
	Habit       string  `arg:"" help:"Habit name or id."`
	Name        *string `help:"New name."`
	Description *string `help:"New description."`
}

func (c *HabitEditCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}
	row, err := ctx.FindHabit(c.Habit)
	if err != nil {
		return err
	}

	patch := models.HabitPatch{Name: c.Name, Description: c.Description}
	if patch.Empty() {
		ctx.Println("No changes specified. Use --name or --description.")
		return nil
	}
	if err := ctx.Store.UpdateHabit(bg, row.Habit.ID, patch); err != nil {
		return err
	}
	updated, _ := ctx.Store.HabitByID(row.Habit.ID)
	ctx.Printf("Updated habit: %s\n", updated.Habit.Name)
	return nil
}

type HabitDeleteCmd struct {
	Habit string `arg:"" help:"Habit name or id."`
	Yes   bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *HabitDeleteCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}
	row, err := ctx.FindHabit(c.Habit)
	if err != nil {
		return err
	}

	if !c.Yes {
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q and its whole history?", row.Habit.Name)).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		if !confirmed {
			ctx.Println("Cancelled.")
			return nil
		}
	}

	if err := ctx.Store.DeleteHabit(bg, row.Habit.ID); err != nil {
		return err
	}
	ctx.Printf("Deleted habit: %s\n", row.Habit.Name)
	return nil
}
