package system

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/scheduler"
	"github.com/julianstephens/habitcoach/internal/tui"
)

type TuiCmd struct{}

func (c *TuiCmd) Run(ctx *cli.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctx.Session(bg); err != nil {
		return err
	}

	sched := scheduler.New(ctx.Location)
	if _, err := sched.ScheduleRollover(bg, ctx.Store, constants.RolloverCheckInterval); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	model := tui.NewModel(bg, ctx.Store, ctx.Coach)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
