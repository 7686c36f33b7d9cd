package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/julianstephens/habitcoach/internal/auth"
	"github.com/julianstephens/habitcoach/internal/coach"
	"github.com/julianstephens/habitcoach/internal/config"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/docstore"
	"github.com/julianstephens/habitcoach/internal/docstore/firestore"
	"github.com/julianstephens/habitcoach/internal/docstore/memory"
	"github.com/julianstephens/habitcoach/internal/docstore/postgres"
	"github.com/julianstephens/habitcoach/internal/docstore/sqlite"
	"github.com/julianstephens/habitcoach/internal/keyring"
	"github.com/julianstephens/habitcoach/internal/logger"
	"github.com/julianstephens/habitcoach/internal/metrics"
	"github.com/julianstephens/habitcoach/internal/repository"
	"github.com/julianstephens/habitcoach/internal/store"
)

// Options controls how New wires the application.
type Options struct {
	Config     *config.Config
	ConfigPath string
	// Registerer receives the metrics; nil disables them.
	Registerer prometheus.Registerer
	// Create initialises SQL backends instead of only loading them.
	Create bool
	Out    io.Writer
	Now    func() time.Time
}

// New opens the configured backend and wires the repository, store, auth
// provider and coach on top of it.
func New(ctx context.Context, opts Options) (*Context, error) {
	cfg := opts.Config
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.New(opts.Registerer)
	}

	docs, err := OpenDocstore(ctx, cfg, opts.Create)
	if err != nil {
		return nil, err
	}

	provider, err := newAuth(ctx, cfg)
	if err != nil {
		docs.Close()
		return nil, err
	}

	repo := repository.New(docs, repository.Config{
		Location:   loc,
		WindowDays: cfg.StreakWindowDays,
		Now:        opts.Now,
		Metrics:    m,
	})
	return &Context{
		Config:     cfg,
		ConfigPath: opts.ConfigPath,
		Docs:       docs,
		Repo:       repo,
		Store:      store.New(repo, store.Config{Location: loc, Now: opts.Now, Metrics: m}),
		Auth:       provider,
		Coach:      newCoach(cfg, m),
		Metrics:    m,
		Location:   loc,
		Now:        opts.Now,
		Out:        opts.Out,
	}, nil
}

// OpenDocstore opens the backend named by cfg.Backend. With create set the
// SQL backends are initialised and migrated first.
func OpenDocstore(ctx context.Context, cfg *config.Config, create bool) (docstore.Store, error) {
	switch cfg.Backend {
	case constants.BackendMemory:
		return memory.New(memory.Unique(constants.CollectionCompletions, constants.FieldHabitID, constants.FieldDay)), nil
	case constants.BackendSQLite:
		s := sqlite.New(cfg.SQLitePath)
		if err := initOrLoad(s, create); err != nil {
			return nil, err
		}
		return s, nil
	case constants.BackendPostgres:
		dsn, err := PostgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		s := postgres.New(dsn)
		if err := initOrLoad(s, create); err != nil {
			return nil, err
		}
		return s, nil
	case constants.BackendFirestore:
		s, err := firestore.New(ctx, firestore.Config{
			ProjectID:       cfg.FirebaseProject,
			CredentialsFile: cfg.FirebaseCredentials,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

type initLoader interface {
	Init() error
	Load() error
}

func initOrLoad(s initLoader, create bool) error {
	if create {
		return s.Init()
	}
	return s.Load()
}

// PostgresDSN returns the configured connection string. One from the
// config file or environment must not embed a password; one stored in
// the OS keyring may.
func PostgresDSN(cfg *config.Config) (string, error) {
	if cfg.PostgresDSN != "" {
		if err := postgres.ValidateConnString(cfg.PostgresDSN); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return "", fmt.Errorf("%w; store it with 'habitcoach keyring set %s' or use PGPASSWORD/.pgpass",
					err, constants.KeyringPostgresDSN)
			}
			return "", err
		}
		return cfg.PostgresDSN, nil
	}
	dsn, err := keyring.Get(constants.KeyringPostgresDSN)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("no postgres connection configured: set postgres_dsn or run 'habitcoach keyring set %s'",
				constants.KeyringPostgresDSN)
		}
		return "", err
	}
	return dsn, nil
}

func newAuth(ctx context.Context, cfg *config.Config) (auth.Provider, error) {
	if cfg.Backend != constants.BackendFirestore {
		return auth.Static(cfg.OwnerID), nil
	}
	return auth.NewFirebase(ctx, auth.FirebaseConfig{
		ProjectID:       cfg.FirebaseProject,
		CredentialsFile: cfg.FirebaseCredentials,
	}, func() (string, error) {
		return keyring.Resolve(constants.EnvFirebaseToken, constants.KeyringFirebaseAuth)
	})
}

// newCoach chains the LLM backend, when an API key is available, in front
// of the rule-based one.
func newCoach(cfg *config.Config, m *metrics.Metrics) coach.Backend {
	var backends []coach.Backend
	key, err := keyring.Resolve(constants.EnvLLMAPIKey, constants.KeyringLLMAPIKey)
	if err != nil {
		logger.Warn("could not read LLM API key", "error", err)
	}
	if key != "" {
		together, err := coach.NewTogether(coach.TogetherConfig{
			APIKey:  key,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
		})
		if err != nil {
			logger.Warn("LLM coach disabled, using rule-based replies", "base_url", cfg.LLMBaseURL, "error", err)
		} else {
			backends = append(backends, together)
		}
	}
	backends = append(backends, coach.RuleBased{})
	return coach.NewFallback(m, backends...)
}
