package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/cli/chat"
	"github.com/julianstephens/habitcoach/internal/cli/habits"
	"github.com/julianstephens/habitcoach/internal/cli/stats"
	"github.com/julianstephens/habitcoach/internal/cli/system"
	"github.com/julianstephens/habitcoach/internal/config"
	"github.com/julianstephens/habitcoach/internal/constants"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/logger"
)

var CLI struct {
	Version     kong.VersionFlag
	Config      string `help:"Config file path." type:"path" default:"${config_path}"`
	Backend     string `help:"Override the storage backend." enum:",memory,sqlite,postgres,firestore" default:""`
	Debug       bool   `help:"Log debug output to stderr."`
	MetricsAddr string `help:"Serve Prometheus metrics on this address (host:port)."`

	Init      system.InitCmd    `cmd:"" help:"Initialize habitcoach storage and config."`
	Migrate   system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Doctor    system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	Tui       system.TuiCmd     `cmd:"" help:"Launch the interactive TUI." default:"1"`
	Habit     habits.HabitCmd   `cmd:"" help:"Manage habits and habit tracking."`
	Stats     stats.StatsCmd    `cmd:"" help:"Show streaks, completion rates and daily progress."`
	Coach     chat.CoachCmd     `cmd:"" help:"Ask the habit coach."`
	Keyring   system.KeyringCmd `cmd:"" help:"Manage secrets in the OS keyring."`
	ConfigCmd system.ConfigCmd  `cmd:"" name:"config" help:"Show or change settings."`
	DebugCmd  system.DebugCmd   `cmd:"" name:"debug" help:"Debug commands for troubleshooting."`
}

// offline commands run without opening the backend.
var offline = map[string]bool{"config": true, "keyring": true}

// creating commands initialise SQL backends instead of only loading them.
var creating = map[string]bool{"init": true, "migrate": true}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("habitcoach"),
		kong.Description("Habit tracker with streaks and an AI coach"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_path": config.DefaultPath(),
		},
	)

	if err := run(kctx); err != nil {
		apperr.Fatal(err)
	}
}

func run(kctx *kong.Context) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if CLI.Backend != "" {
		cfg.Backend = CLI.Backend
	}
	if CLI.Debug {
		cfg.Debug = true
	}
	if CLI.MetricsAddr != "" {
		cfg.MetricsAddr = CLI.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: filepath.Dir(CLI.Config)}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	command := strings.Fields(kctx.Command())[0]
	if offline[command] {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		return kctx.Run(&cli.Context{
			Config:     cfg,
			ConfigPath: CLI.Config,
			Location:   loc,
			Now:        time.Now,
			Out:        os.Stdout,
		})
	}

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		stop := serveMetrics(cfg.MetricsAddr, reg)
		defer stop()
	}

	opts := cli.Options{
		Config:     cfg,
		ConfigPath: CLI.Config,
		Create:     creating[command],
		Out:        os.Stdout,
	}
	if reg != nil {
		opts.Registerer = reg
	}
	appCtx, err := cli.New(context.Background(), opts)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return kctx.Run(appCtx)
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	log := logger.Component("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
