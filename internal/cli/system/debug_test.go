package system

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/julianstephens/habitcoach/internal/cli/clitest"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/models"
)

func TestDebugConfigPathCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendSQLite)

	if err := (&DebugConfigPathCmd{}).Run(ctx); err != nil {
		t.Fatalf("DebugConfigPathCmd failed: %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got["config"] != ctx.ConfigPath {
		t.Errorf("config = %q, want %q", got["config"], ctx.ConfigPath)
	}
	if got["sqlite"] != ctx.Config.SQLitePath {
		t.Errorf("sqlite = %q, want %q", got["sqlite"], ctx.Config.SQLitePath)
	}
}

func TestDebugDumpHabitCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	id := clitest.SeedHabit(t, ctx, "Read", "2024-03-09", "2024-03-10")

	if err := (&DebugDumpHabitCmd{Habit: "read"}).Run(ctx); err != nil {
		t.Fatalf("DebugDumpHabitCmd failed: %v", err)
	}

	var row models.HabitRow
	if err := json.Unmarshal(out.Bytes(), &row); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if row.Habit.ID != id {
		t.Errorf("id = %q, want %q", row.Habit.ID, id)
	}
	if row.Streak != 2 || !row.CompletedToday {
		t.Errorf("expected streak 2 completed today, got %+v", row)
	}
}

func TestDebugDumpHabitCmd_NotFound(t *testing.T) {
	ctx, _ := clitest.New(t, constants.BackendMemory)

	err := (&DebugDumpHabitCmd{Habit: "nope"}).Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestDebugDumpCompletionsCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-01", "2024-03-05")
	clitest.SeedHabit(t, ctx, "Walk", "2024-03-05")

	tests := []struct {
		name string
		cmd  DebugDumpCompletionsCmd
		want int
	}{
		{name: "all", cmd: DebugDumpCompletionsCmd{}, want: 3},
		{name: "one habit", cmd: DebugDumpCompletionsCmd{Habit: "Read"}, want: 2},
		{name: "range", cmd: DebugDumpCompletionsCmd{From: "2024-03-02", To: "2024-03-10"}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			if err := tt.cmd.Run(ctx); err != nil {
				t.Fatalf("DebugDumpCompletionsCmd failed: %v", err)
			}
			var records []models.CompletionRecord
			if err := json.Unmarshal(out.Bytes(), &records); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if len(records) != tt.want {
				t.Errorf("got %d records, want %d", len(records), tt.want)
			}
		})
	}
}

func TestDebugDumpContextCmd(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-10")
	clitest.SeedHabit(t, ctx, "Walk")

	if err := (&DebugDumpContextCmd{}).Run(ctx); err != nil {
		t.Fatalf("DebugDumpContextCmd failed: %v", err)
	}

	var hc models.HabitContext
	if err := json.Unmarshal(out.Bytes(), &hc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if hc.TotalHabits != 2 || hc.CompletedToday != 1 || hc.ProgressPercentage != 50 {
		t.Errorf("unexpected context: %+v", hc)
	}
}
