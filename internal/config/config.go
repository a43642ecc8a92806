// Package config loads arbor settings from an optional YAML file, then
// applies environment overrides. Flags override both in the commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"arbor/internal/domain"
)

// DefaultHome is where arbor keeps its files unless ARBOR_HOME says otherwise
const DefaultHome = "~/.arbor"

// Environment overrides
const (
	EnvHome   = "ARBOR_HOME"
	EnvDB     = "ARBOR_DB"
	EnvConfig = "ARBOR_CONFIG"
)

// Config is the full engine configuration
type Config struct {
	Home     string `yaml:"home" validate:"required"`
	Database string `yaml:"database" validate:"required"`

	Ephemeral     Ephemeral     `yaml:"ephemeral"`
	Commands      Commands      `yaml:"commands"`
	Janitor       Janitor       `yaml:"janitor"`
	Subscriptions Subscriptions `yaml:"subscriptions"`
	Log           Log           `yaml:"log"`
	Metrics       Metrics       `yaml:"metrics"`

	// Types declares extra node types registered after the built-in ones
	Types []domain.EntityMetadata `yaml:"types" validate:"dive"`
}

// Ephemeral configures the working-copy store
type Ephemeral struct {
	// Path defaults to <home>/ephemeral
	Path     string        `yaml:"path"`
	InMemory bool          `yaml:"in_memory"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// Commands configures the processor
type Commands struct {
	HistoryLimit int `yaml:"history_limit" validate:"gte=0"`
	QueueSize    int `yaml:"queue_size" validate:"gte=0"`
}

// Janitor configures background cleanup
type Janitor struct {
	SweepInterval  time.Duration `yaml:"sweep_interval" validate:"gte=0"`
	WorkingCopyTTL time.Duration `yaml:"working_copy_ttl" validate:"gte=0"`
}

// Subscriptions configures change-event delivery
type Subscriptions struct {
	// Rate is events per second per subscriber; zero is unlimited
	Rate          float64       `yaml:"rate" validate:"gte=0"`
	Burst         int           `yaml:"burst" validate:"gte=0"`
	CoalesceAfter int           `yaml:"coalesce_after" validate:"gte=0"`
	StaleAfter    time.Duration `yaml:"stale_after" validate:"gte=0"`
}

// Log configures the logger
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Metrics configures telemetry
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	home := ExpandHome(DefaultHome)
	return Config{
		Home:     home,
		Database: filepath.Join(home, "arbor.db"),
		Ephemeral: Ephemeral{
			Path: filepath.Join(home, "ephemeral"),
			TTL:  24 * time.Hour,
		},
		Commands: Commands{HistoryLimit: 100, QueueSize: 64},
		Janitor: Janitor{
			SweepInterval:  time.Minute,
			WorkingCopyTTL: 12 * time.Hour,
		},
		Subscriptions: Subscriptions{
			CoalesceAfter: 64,
			StaleAfter:    5 * time.Minute,
		},
		Log:     Log{Level: "info", Format: "text"},
		Metrics: Metrics{Enabled: true},
	}
}

// Path returns the config file location: ARBOR_CONFIG, else <home>/config.yaml
func Path() string {
	if env := os.Getenv(EnvConfig); env != "" {
		return ExpandHome(env)
	}
	return filepath.Join(homeDir(), "config.yaml")
}

// Load reads the file at path on top of the defaults. A missing file is not
// an error. Environment overrides win over the file; paths left unset land
// under the home directory.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.Database = ""
	cfg.Ephemeral.Path = ""

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if home := os.Getenv(EnvHome); home != "" {
		cfg.Home = home
	}
	if db := os.Getenv(EnvDB); db != "" {
		cfg.Database = db
	}

	cfg.Home = ExpandHome(cfg.Home)
	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.Home, "arbor.db")
	}
	if cfg.Ephemeral.Path == "" {
		cfg.Ephemeral.Path = filepath.Join(cfg.Home, "ephemeral")
	}
	cfg.Database = ExpandHome(cfg.Database)
	cfg.Ephemeral.Path = ExpandHome(cfg.Ephemeral.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field rules
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes c to path as YAML, creating the directory
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func homeDir() string {
	if env := os.Getenv(EnvHome); env != "" {
		return ExpandHome(env)
	}
	return ExpandHome(DefaultHome)
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
