package system

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/constants"
)

// InitCmd prepares the configured backend. The SQL backends are migrated
// by the wiring before Run; Run writes a config file when none exists.
type InitCmd struct {
	Force bool `help:"Overwrite an existing config file with the current settings."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if ctx.ConfigPath != "" {
		_, err := os.Stat(ctx.ConfigPath)
		switch {
		case errors.Is(err, os.ErrNotExist) || c.Force:
			if err := ctx.Config.Save(ctx.ConfigPath); err != nil {
				return err
			}
			ctx.Printf("Wrote config: %s\n", ctx.ConfigPath)
		case err != nil:
			return fmt.Errorf("failed to access config: %w", err)
		}
	}

	switch ctx.Config.Backend {
	case constants.BackendSQLite:
		ctx.Printf("Initialized habitcoach storage at: %s\n", ctx.Config.SQLitePath)
	case constants.BackendPostgres:
		ctx.Println("Initialized habitcoach schema in PostgreSQL")
	case constants.BackendFirestore:
		ctx.Printf("Using Firestore project %s; create the composite indexes listed in the docs\n", ctx.Config.FirebaseProject)
	default:
		ctx.Println("Using in-memory storage; nothing is persisted")
	}
	return nil
}

// MigrateCmd applies pending migrations and reports the schema version.
type MigrateCmd struct{}

type versioned interface {
	SchemaVersion() (current, latest int, err error)
}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	v, ok := ctx.Docs.(versioned)
	if !ok {
		return fmt.Errorf("migrate only applies to the sqlite and postgres backends")
	}
	current, latest, err := v.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	ctx.Printf("Schema version %d of %d. Database is up to date.\n", current, latest)
	return nil
}
