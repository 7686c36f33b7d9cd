// Package config loads habitcoach settings. Values are layered, later
// layers winning: defaults, the YAML file, a .env file next to it, then the
// process environment. Command-line flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/utils"
)

type Config struct {
	Backend         string `yaml:"backend" validate:"required,oneof=memory sqlite postgres firestore"`
	SQLitePath      string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresDSN     string `yaml:"postgres_dsn,omitempty"`
	FirebaseProject string `yaml:"firebase_project,omitempty" validate:"required_if=Backend firestore"`
	// FirebaseCredentials is a service account file. Empty uses
	// application default credentials.
	FirebaseCredentials string `yaml:"firebase_credentials,omitempty"`
	OwnerID             string `yaml:"owner_id" validate:"required_unless=Backend firestore"`
	Timezone            string `yaml:"timezone" validate:"required"`
	StreakWindowDays    int    `yaml:"streak_window_days" validate:"min=1,max=3650"`
	LLMBaseURL          string `yaml:"llm_base_url" validate:"omitempty,url"`
	LLMModel            string `yaml:"llm_model"`
	Debug               bool   `yaml:"debug"`
	MetricsAddr         string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Backend:          constants.DefaultBackend,
		SQLitePath:       constants.DefaultSQLitePath,
		OwnerID:          constants.DefaultOwnerID,
		Timezone:         constants.DefaultTimezone,
		StreakWindowDays: constants.StreakWindowDays,
		LLMBaseURL:       constants.DefaultLLMBaseURL,
		LLMModel:         constants.DefaultLLMModel,
	}
}

// DefaultPath returns the expanded path of the default config file.
func DefaultPath() string {
	return filepath.Join(ExpandPath(constants.DefaultConfigDir), constants.DefaultConfigFile)
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Load reads the config at path. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dotenv, err := readDotenv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}); err != nil {
		return nil, err
	}

	cfg.SQLitePath = ExpandPath(cfg.SQLitePath)
	cfg.FirebaseCredentials = ExpandPath(cfg.FirebaseCredentials)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDotenv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		constants.EnvBackend:         &c.Backend,
		constants.EnvSQLitePath:      &c.SQLitePath,
		constants.EnvPostgresDSN:     &c.PostgresDSN,
		constants.EnvFirebaseProject: &c.FirebaseProject,
		constants.EnvFirebaseCreds:   &c.FirebaseCredentials,
		constants.EnvOwnerID:         &c.OwnerID,
		constants.EnvTimezone:        &c.Timezone,
		constants.EnvLLMBaseURL:      &c.LLMBaseURL,
		constants.EnvLLMModel:        &c.LLMModel,
		constants.EnvMetricsAddr:     &c.MetricsAddr,
	}
	for key, field := range strs {
		if v := getenv(key); v != "" {
			*field = v
		}
	}
	if v := getenv(constants.EnvDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.EnvDebug, err)
		}
		c.Debug = b
	}
	if v := getenv(constants.EnvWindowDays); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.EnvWindowDays, err)
		}
		c.StreakWindowDays = n
	}
	return nil
}

// Validate checks field constraints and that the timezone resolves.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return utils.LoadLocation(c.Timezone)
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Keys lists the settings Get and Set accept.
var Keys = []string{
	"backend", "sqlite_path", "postgres_dsn", "firebase_project", "firebase_credentials",
	"owner_id", "timezone", "streak_window_days", "llm_base_url", "llm_model", "debug", "metrics_addr",
}

// Get returns the string form of the setting key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "backend":
		return c.Backend, nil
	case "sqlite_path":
		return c.SQLitePath, nil
	case "postgres_dsn":
		return c.PostgresDSN, nil
	case "firebase_project":
		return c.FirebaseProject, nil
	case "firebase_credentials":
		return c.FirebaseCredentials, nil
	case "owner_id":
		return c.OwnerID, nil
	case "timezone":
		return c.Timezone, nil
	case "streak_window_days":
		return strconv.Itoa(c.StreakWindowDays), nil
	case "llm_base_url":
		return c.LLMBaseURL, nil
	case "llm_model":
		return c.LLMModel, nil
	case "debug":
		return strconv.FormatBool(c.Debug), nil
	case "metrics_addr":
		return c.MetricsAddr, nil
	}
	return "", fmt.Errorf("unknown setting %q", key)
}

// Set parses value into the setting key and revalidates.
func (c *Config) Set(key, value string) error {
	next := *c
	switch key {
	case "backend":
		next.Backend = value
	case "sqlite_path":
		next.SQLitePath = ExpandPath(value)
	case "postgres_dsn":
		next.PostgresDSN = value
	case "firebase_project":
		next.FirebaseProject = value
	case "firebase_credentials":
		next.FirebaseCredentials = ExpandPath(value)
	case "owner_id":
		next.OwnerID = value
	case "timezone":
		next.Timezone = value
	case "streak_window_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parsing streak_window_days: %w", err)
		}
		next.StreakWindowDays = n
	case "llm_base_url":
		next.LLMBaseURL = value
	case "llm_model":
		next.LLMModel = value
	case "debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing debug: %w", err)
		}
		next.Debug = b
	case "metrics_addr":
		next.MetricsAddr = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
