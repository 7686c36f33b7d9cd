package stats

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/julianstephens/habitcoach/internal/cli/clitest"
	"github.com/julianstephens/habitcoach/internal/constants"
)

func TestBuild(t *testing.T) {
	ctx, _ := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-01", "2024-03-08", "2024-03-09", "2024-03-10")
	clitest.SeedHabit(t, ctx, "Walk", "2024-03-09")
	if err := ctx.Session(context.Background()); err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	report, err := Build(context.Background(), ctx, 10)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if report.Progress != 50 {
		t.Errorf("progress = %d, want 50", report.Progress)
	}
	byName := map[string]HabitStats{}
	for _, h := range report.Habits {
		byName[h.Name] = h
	}
	read := byName["Read"]
	if read.Current != 3 || read.CompletionRate != 40 || !read.CompletedToday {
		t.Errorf("unexpected Read stats: %+v", read)
	}
	walk := byName["Walk"]
	if walk.Current != 1 || walk.CompletionRate != 10 || walk.CompletedToday {
		t.Errorf("unexpected Walk stats: %+v", walk)
	}

	if len(report.PerDay) != 10 {
		t.Fatalf("got %d days, want 10", len(report.PerDay))
	}
	last := report.PerDay[len(report.PerDay)-1]
	if last.Day != "2024-03-10" || last.Count != 1 {
		t.Errorf("unexpected last day: %+v", last)
	}
	if prev := report.PerDay[len(report.PerDay)-2]; prev.Count != 2 {
		t.Errorf("expected 2 completions on %s, got %d", prev.Day, prev.Count)
	}
}

func TestStatsCmd_JSON(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-10")

	if err := (&StatsCmd{Days: 7, JSON: true}).Run(ctx); err != nil {
		t.Fatalf("StatsCmd failed: %v", err)
	}

	var report Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Days != 7 || len(report.Habits) != 1 || report.Progress != 100 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestStatsCmd_Text(t *testing.T) {
	ctx, out := clitest.New(t, constants.BackendMemory)
	clitest.SeedHabit(t, ctx, "Read", "2024-03-10")

	if err := (&StatsCmd{Days: 7}).Run(ctx); err != nil {
		t.Fatalf("StatsCmd failed: %v", err)
	}
	for _, want := range []string{"Today: 100% complete", "Read", "Last 7 days:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestStatsCmd_DaysOutOfRange(t *testing.T) {
	ctx, _ := clitest.New(t, constants.BackendMemory)

	if err := (&StatsCmd{Days: constants.StreakWindowDays + 1}).Run(ctx); err == nil {
		t.Error("expected error for a window past the streak bound")
	}
}
