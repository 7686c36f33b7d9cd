// Package clitest wires a command Context against throwaway storage for
// command tests.
package clitest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/config"
	"github.com/julianstephens/habitcoach/internal/constants"
)

// Owner is the owner every test context is signed in as.
const Owner = "test-owner"

// Now is the fixed clock of every test context.
var Now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// New returns a Context on the given backend ("memory" or "sqlite") and
// the buffer its output is written to. The OS keyring is mocked and no LLM
// key is visible, so the coach answers from rules.
func New(t testing.TB, backend string) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	gokeyring.MockInit()
	t.Setenv(constants.EnvLLMAPIKey, "")
	t.Setenv(constants.EnvFirebaseToken, "")

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backend = backend
	cfg.SQLitePath = filepath.Join(dir, "habitcoach.db")
	cfg.OwnerID = Owner
	cfg.Timezone = "UTC"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	out := &bytes.Buffer{}
	ctx, err := cli.New(context.Background(), cli.Options{
		Config:     cfg,
		ConfigPath: filepath.Join(dir, "config.yaml"),
		Registerer: prometheus.NewRegistry(),
		Create:     true,
		Out:        out,
		Now:        func() time.Time { return Now },
	})
	if err != nil {
		t.Fatalf("failed to wire test context: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, out
}

// SeedHabit creates a habit through the repository with completions on
// the given days.
func SeedHabit(t testing.TB, ctx *cli.Context, name string, days ...string) string {
	t.Helper()
	bg := context.Background()
	id, err := ctx.Repo.CreateHabit(bg, Owner, name, "")
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	for _, d := range days {
		if err := ctx.Repo.MarkComplete(bg, Owner, id, d); err != nil {
			t.Fatalf("MarkComplete failed: %v", err)
		}
	}
	return id
}
