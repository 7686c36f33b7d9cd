package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/julianstephens/habitcoach/internal/auth"
	"github.com/julianstephens/habitcoach/internal/coach"
	"github.com/julianstephens/habitcoach/internal/config"
	"github.com/julianstephens/habitcoach/internal/docstore"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/metrics"
	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/repository"
	"github.com/julianstephens/habitcoach/internal/store"
)

// Context carries the wired application into every command.
type Context struct {
	Config     *config.Config
	ConfigPath string
	Docs       docstore.Store
	Repo       *repository.Repository
	Store      *store.Store
	Auth       auth.Provider
	Coach      coach.Backend
	Metrics    *metrics.Metrics
	Location   *time.Location
	Now        func() time.Time
	Out        io.Writer
}

// Session signs the store in as the current owner and recomputes every
// streak. It is a no-op once signed in.
func (c *Context) Session(ctx context.Context) error {
	if c.Store.Owner() != "" {
		return nil
	}
	owner, err := c.Auth.CurrentOwner(ctx)
	if err != nil {
		return err
	}
	if err := c.Store.SetOwner(ctx, owner); err != nil {
		return err
	}
	return c.Store.RefreshAll(ctx)
}

// FindHabit resolves ref as a habit id, then as a case-insensitive name.
func (c *Context) FindHabit(ref string) (models.HabitRow, error) {
	if row, ok := c.Store.HabitByID(ref); ok {
		return row, nil
	}
	var matches []models.HabitRow
	for _, row := range c.Store.Habits() {
		if strings.EqualFold(row.Habit.Name, strings.TrimSpace(ref)) {
			matches = append(matches, row)
		}
	}
	switch len(matches) {
	case 0:
		return models.HabitRow{}, apperr.NewNotFound("habit", ref)
	case 1:
		return matches[0], nil
	default:
		return models.HabitRow{}, fmt.Errorf("%d habits are named %q; use the id instead", len(matches), ref)
	}
}

// Close stops the subscription and releases the backend.
func (c *Context) Close() error {
	if c.Store != nil {
		c.Store.UnsubscribeAll()
	}
	if c.Docs != nil {
		return c.Docs.Close()
	}
	return nil
}

// Printf writes to the command output.
func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

// Println writes a line to the command output.
func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.Out, args...)
}

// Truncate shortens s to width runes, marking the cut with "...".
func Truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s + strings.Repeat(" ", width-len(r))
	}
	if width >= 5 {
		return string(r[:width-3]) + "..."
	}
	return string(r[:width])
}
