package habits

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/julianstephens/habitcoach/internal/cli/clitest"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/models"
)

func TestHabitAddCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)

	if err := (&HabitAddCmd{Name: " Read ", Description: "20 pages"}).Run(ctx); err != nil {
		t.Fatalf("HabitAddCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Added habit: Read") {
		t.Errorf("unexpected output: %s", out)
	}

	habits, err := ctx.Repo.ListHabits(context.Background(), clitest.Owner)
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(habits) != 1 || habits[0].Name != "Read" || habits[0].Description != "20 pages" {
		t.Errorf("unexpected habits: %+v", habits)
	}

	if err := (&HabitAddCmd{Name: "read"}).Run(ctx); err == nil {
		t.Error("expected duplicate name to be rejected")
	}
}

func TestHabitListCmd_JSON(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-08", "2024-03-09", "2024-03-10")
	clitest.SeedHabit(t, ctx, "Walk")

	if err := (&HabitListCmd{JSON: true}).Run(ctx); err != nil {
		t.Fatalf("HabitListCmd failed: %v", err)
	}

	var rows []models.HabitRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	streaks := map[string]int{}
	for _, r := range rows {
		streaks[r.Habit.Name] = r.Streak
	}
	if streaks["Read"] != 3 || streaks["Walk"] != 0 {
		t.Errorf("unexpected streaks: %v", streaks)
	}
}

func TestHabitListCmd_Empty(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)

	if err := (&HabitListCmd{}).Run(ctx); err != nil {
		t.Fatalf("HabitListCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "No habits found.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHabitEditCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	id := clitest.SeedHabit(t, ctx, "Read")

	name := "Read books"
	if err := (&HabitEditCmd{Habit: "Read", Name: &name}).Run(ctx); err != nil {
		t.Fatalf("HabitEditCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Updated habit: Read books") {
		t.Errorf("unexpected output: %s", out)
	}

	h, err := ctx.Repo.GetHabit(context.Background(), clitest.Owner, id)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if h.Name != name {
		t.Errorf("name = %q, want %q", h.Name, name)
	}
}

func TestHabitEditCmd_NoChanges(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read")

	if err := (&HabitEditCmd{Habit: "Read"}).Run(ctx); err != nil {
		t.Fatalf("HabitEditCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "No changes specified") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHabitDeleteCmd(t *testing.T) {
	ctx, _ := clitest.New(t, constants.BackendMemory)
	id := clitest.SeedHabit(t, ctx, "Read", "2024-03-09", "2024-03-10")

	if err := (&HabitDeleteCmd{Habit: id, Yes: true}).Run(ctx); err != nil {
		t.Fatalf("HabitDeleteCmd failed: %v", err)
	}

	bg := context.Background()
	habits, _ := ctx.Repo.ListHabits(bg, clitest.Owner)
	if len(habits) != 0 {
		t.Errorf("expected no habits, got %d", len(habits))
	}
	records, _ := ctx.Repo.OwnerCompletions(bg, clitest.Owner, "", "")
	if len(records) != 0 {
		t.Errorf("expected completions removed, got %d", len(records))
	}
}

func TestHabitDoneAndUndo_Today(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-09")

	if err := (&HabitDoneCmd{Habit: "Read"}).Run(ctx); err != nil {
		t.Fatalf("HabitDoneCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current streak: 2 days") {
		t.Errorf("unexpected output: %s", out)
	}

	out.Reset()
	if err := (&HabitDoneCmd{Habit: "Read"}).Run(ctx); err != nil {
		t.Fatalf("second HabitDoneCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "already done") {
		t.Errorf("expected no-op message, got: %s", out)
	}

	out.Reset()
	if err := (&HabitUndoCmd{Habit: "Read"}).Run(ctx); err != nil {
		t.Fatalf("HabitUndoCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current streak: 1 day") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHabitDoneCmd_PastDay(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	id := clitest.SeedHabit(t, ctx, "Read", "2024-03-10")

	if err := (&HabitDoneCmd{Habit: "Read", Date: "2024-03-09"}).Run(ctx); err != nil {
		t.Fatalf("HabitDoneCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current streak: 2 days") {
		t.Errorf("unexpected output: %s", out)
	}

	h, err := ctx.Repo.GetHabit(context.Background(), clitest.Owner, id)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if h.CachedStreak != 2 {
		t.Errorf("cached streak = %d, want 2", h.CachedStreak)
	}
}

func TestHabitDoneCmd_InvalidDates(t *testing.T) {
	ctx, _ := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read")

	for _, date := range []string{"03/09/2024", "2024-03-11"} {
		if err := (&HabitDoneCmd{Habit: "Read", Date: date}).Run(ctx); err == nil {
			t.Errorf("expected error for %q", date)
		}
	}
}

func TestHabitTodayCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-10")
	clitest.SeedHabit(t, ctx, "Walk")

	if err := (&HabitTodayCmd{}).Run(ctx); err != nil {
		t.Fatalf("HabitTodayCmd failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Sunday 2024-03-10", "[x] Read", "[ ] Walk", "Recorded: 1/2 (50%)"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in output:\n%s", want, got)
		}
	}
}

func TestHabitLogCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-08", "2024-03-10")

	if err := (&HabitLogCmd{Days: 3}).Run(ctx); err != nil {
		t.Fatalf("HabitLogCmd failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "Read") {
		t.Fatalf("unexpected last line %q", last)
	}
	cells := strings.Fields(strings.TrimPrefix(last, "Read"))
	if strings.Join(cells, "") != "x.x" {
		t.Errorf("cells = %v, want x . x", cells)
	}
	if !strings.Contains(out.String(), "03/08") || !strings.Contains(out.String(), "03/10") {
		t.Errorf("missing date headers:\n%s", out)
	}
}

func TestHabitLogCmd_DaysOutOfRange(t *testing.T) {
	ctx, _ := clitest.New(t, constants.BackendMemory)

	if err := (&HabitLogCmd{Days: 0}).Run(ctx); err == nil {
		t.Error("expected error for --days 0")
	}
}
