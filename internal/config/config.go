// Package config loads the application configuration from an optional
// YAML file with environment variable overrides on top.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host" env:"WEFT_HOST"`
	Port        int      `yaml:"port" env:"WEFT_PORT"`
	CORSOrigins []string `yaml:"cors_origins" env:"WEFT_CORS_ORIGINS" envSeparator:","`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the persistence backend. Driver is one of
// "memory", "sqlite", or "postgres"; DSN is the file path for sqlite
// and the connection URL for postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"WEFT_DB_DRIVER"`
	DSN    string `yaml:"dsn" env:"WEFT_DB_DSN"`
}

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	MaxTurns          int           `yaml:"max_turns" env:"WEFT_MAX_TURNS"`                     // backend turn budget per agent step
	StepTimeout       time.Duration `yaml:"step_timeout" env:"WEFT_STEP_TIMEOUT"`               // 0 disables the per-step deadline
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs" env:"WEFT_MAX_CONCURRENT_RUNS"` // system-wide
	PerWorkflowRuns   int           `yaml:"per_workflow_runs" env:"WEFT_PER_WORKFLOW_RUNS"`     // per workflow
}

// SchedulerConfig controls the cron scheduler.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" env:"WEFT_SCHEDULER_ENABLED"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level" env:"WEFT_LOG_LEVEL"` // debug, info, warn, error
}

// SlogLevel maps the configured level name to a slog.Level. Unknown
// names fall back to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 37123,
		},
		Database: DatabaseConfig{
			Driver: "memory",
		},
		Engine: EngineConfig{
			MaxTurns:          10,
			MaxConcurrentRuns: 4,
			PerWorkflowRuns:   2,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file at path, applies environment
// variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return finish(cfg)
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, defaults plus environment overrides are
// used. Any other error (permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return finish(defaults())
		}
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides and validates.
func finish(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	switch cfg.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown database driver %q (expected memory, sqlite, or postgres)", cfg.Database.Driver)
	}
	if cfg.Database.Driver != "memory" && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database driver %q requires a dsn", cfg.Database.Driver)
	}
	return cfg, nil
}
