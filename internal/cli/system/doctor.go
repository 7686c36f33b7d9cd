package system

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/keyring"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/streak"
)

type DoctorCmd struct{}

// doctorData is loaded once and shared by the integrity checks.
type doctorData struct {
	owner       string
	habits      []models.Habit
	completions []models.CompletionRecord
}

type check struct {
	name string
	// warnOnly failures do not fail the run.
	warnOnly bool
	// needsData checks are skipped when the backend is unreachable.
	needsData bool
	run       func(ctx *cli.Context, d *doctorData) error
}

var checks = []check{
	{name: "Schema version", needsData: true, run: checkSchemaVersion},
	{name: "Orphaned completions", needsData: true, run: checkOrphans},
	{name: "Duplicate completions", needsData: true, run: checkDuplicates},
	{name: "Date formats", needsData: true, run: checkDayFormats},
	{name: "Cached streaks", needsData: true, warnOnly: true, run: checkCachedStreaks},
	{name: "Clock/timezone", run: checkClockTimezone},
	{name: "OS keyring", warnOnly: true, run: checkKeyring},
	{name: "Coach backend", warnOnly: true, run: checkCoach},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	hasError := false
	data, err := loadDoctorData(ctx)
	if err != nil {
		ctx.Printf("❌ Backend reachable: FAIL\n")
		ctx.Printf("   Error: %v\n", err)
		hasError = true
	} else {
		ctx.Printf("✓ Backend reachable: OK (%s, %d habits)\n", ctx.Config.Backend, len(data.habits))
	}

	for _, c := range checks {
		if c.needsData && data == nil {
			ctx.Printf("⊘ %s: SKIPPED (backend not reachable)\n", c.name)
			continue
		}
		if err := c.run(ctx, data); err != nil {
			if c.warnOnly {
				ctx.Printf("⚠ %s: WARNING\n", c.name)
				ctx.Printf("   %v\n", err)
				continue
			}
			ctx.Printf("❌ %s: FAIL\n", c.name)
			ctx.Printf("   Error: %v\n", err)
			hasError = true
			continue
		}
		ctx.Printf("✓ %s: OK\n", c.name)
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func loadDoctorData(ctx *cli.Context) (*doctorData, error) {
	bg := context.Background()
	owner, err := ctx.Auth.CurrentOwner(bg)
	if err != nil {
		return nil, err
	}
	habits, err := ctx.Repo.ListHabits(bg, owner)
	if err != nil {
		return nil, err
	}
	completions, err := ctx.Repo.OwnerCompletions(bg, owner, "", "")
	if err != nil {
		return nil, err
	}
	return &doctorData{owner: owner, habits: habits, completions: completions}, nil
}

func checkSchemaVersion(ctx *cli.Context, _ *doctorData) error {
	v, ok := ctx.Docs.(versioned)
	if !ok {
		return nil
	}
	current, latest, err := v.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", current, latest)
	}
	return nil
}

func checkOrphans(_ *cli.Context, d *doctorData) error {
	known := make(map[string]bool, len(d.habits))
	for _, h := range d.habits {
		known[h.ID] = true
	}
	orphaned := 0
	for _, c := range d.completions {
		if !known[c.HabitID] {
			orphaned++
		}
	}
	if orphaned > 0 {
		return fmt.Errorf("found %d completions referencing missing habits", orphaned)
	}
	return nil
}

func checkDuplicates(_ *cli.Context, d *doctorData) error {
	seen := make(map[string]bool, len(d.completions))
	dup := 0
	for _, c := range d.completions {
		key := c.HabitID + "|" + c.Day
		if seen[key] {
			dup++
		}
		seen[key] = true
	}
	if dup > 0 {
		return fmt.Errorf("found %d duplicate habit+day completions", dup)
	}
	return nil
}

func checkDayFormats(_ *cli.Context, d *doctorData) error {
	invalid := 0
	for _, c := range d.completions {
		if _, err := time.Parse(constants.DateFormat, c.Day); err != nil {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("found %d completions with an invalid day", invalid)
	}
	return nil
}

// checkCachedStreaks compares each cachedStreak with the completion log
// without writing anything back.
func checkCachedStreaks(ctx *cli.Context, d *doctorData) error {
	now := ctx.Now()
	window := ctx.Repo.WindowDays()
	drift := 0
	for _, h := range d.habits {
		set, err := ctx.Repo.CompletionDates(context.Background(), d.owner, h.ID, window, now)
		if err != nil {
			return err
		}
		if streak.Compute(set, window, now).Current != h.CachedStreak {
			drift++
		}
	}
	if drift > 0 {
		return fmt.Errorf("%d habits have an outdated cached streak; it is refreshed on the next session", drift)
	}
	return nil
}

func checkClockTimezone(ctx *cli.Context, _ *doctorData) error {
	now := ctx.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	if _, err := ctx.Config.Location(); err != nil {
		return err
	}
	return nil
}

func checkKeyring(_ *cli.Context, _ *doctorData) error {
	if !keyring.IsAvailable() {
		return fmt.Errorf("OS keyring is not available; use environment variables for secrets")
	}
	return nil
}

func checkCoach(_ *cli.Context, _ *doctorData) error {
	key, err := keyring.Resolve(constants.EnvLLMAPIKey, constants.KeyringLLMAPIKey)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("no LLM API key; the coach uses rule-based replies")
	}
	return nil
}
