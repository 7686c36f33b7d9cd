package system

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/logger"
)

type DebugCmd struct {
	ConfigPath      *DebugConfigPathCmd      `cmd:"" help:"Show config and storage paths."`
	DumpHabit       *DebugDumpHabitCmd       `cmd:"" help:"Dump habit data as JSON."`
	DumpCompletions *DebugDumpCompletionsCmd `cmd:"" help:"Dump completion records as JSON."`
	DumpContext     *DebugDumpContextCmd     `cmd:"" help:"Dump the coach context as JSON."`
}

type DebugConfigPathCmd struct{}

func (cmd *DebugConfigPathCmd) Run(ctx *cli.Context) error {
	output := map[string]string{
		"config":  ctx.ConfigPath,
		"backend": ctx.Config.Backend,
	}
	if ctx.Config.SQLitePath != "" {
		output["sqlite"] = ctx.Config.SQLitePath
	}
	if path := logger.Path(); path != "" {
		output["log"] = path
	}
	return writeJSON(ctx, output)
}

type DebugDumpHabitCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (cmd *DebugDumpHabitCmd) Run(ctx *cli.Context) error {
	if err := ctx.Session(context.Background()); err != nil {
		return err
	}
	row, err := ctx.FindHabit(cmd.Habit)
	if err != nil {
		return err
	}
	return writeJSON(ctx, row)
}

type DebugDumpCompletionsCmd struct {
	Habit string `help:"Limit to one habit (id or name)."`
	From  string `help:"First day (YYYY-MM-DD)."`
	To    string `help:"Last day (YYYY-MM-DD)."`
}

func (cmd *DebugDumpCompletionsCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}
	owner := ctx.Store.Owner()
	if cmd.Habit == "" {
		records, err := ctx.Repo.OwnerCompletions(bg, owner, cmd.From, cmd.To)
		if err != nil {
			return err
		}
		return writeJSON(ctx, records)
	}
	row, err := ctx.FindHabit(cmd.Habit)
	if err != nil {
		return err
	}
	records, err := ctx.Repo.QueryCompletions(bg, owner, row.Habit.ID, cmd.From, cmd.To)
	if err != nil {
		return err
	}
	return writeJSON(ctx, records)
}

type DebugDumpContextCmd struct{}

func (cmd *DebugDumpContextCmd) Run(ctx *cli.Context) error {
	if err := ctx.Session(context.Background()); err != nil {
		return err
	}
	return writeJSON(ctx, ctx.Store.ChatContext())
}

func writeJSON(ctx *cli.Context, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	ctx.Println(string(jsonBytes))
	return nil
}
