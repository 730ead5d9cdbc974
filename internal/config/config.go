// Package config loads relay demo configuration: defaults -> TOML file
// -> environment variables (env wins).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Solver     SolverConfig     `toml:"solver"`
	Database   DatabaseConfig   `toml:"database"`
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Observer   ObserverConfig   `toml:"observer"`
}

type LLMConfig struct {
	Host       string `toml:"host"`
	Model      string `toml:"model"`
	EmbedModel string `toml:"embed_model"`
}

type DispatcherConfig struct {
	BatchSize      int `toml:"batch_size"`
	TickIntervalMS int `toml:"tick_interval_ms"`
}

type SolverConfig struct {
	MaxIterations  int `toml:"max_iterations"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type WorkspaceConfig struct {
	Path string `toml:"path"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// TickInterval returns the dispatcher tick as a duration.
func (d DispatcherConfig) TickInterval() time.Duration {
	return time.Duration(d.TickIntervalMS) * time.Millisecond
}

// Timeout returns the solver timeout as a duration.
func (s SolverConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		LLM:        LLMConfig{Model: "qwen3", EmbedModel: "nomic-embed-text"},
		Dispatcher: DispatcherConfig{BatchSize: 5, TickIntervalMS: 100},
		Solver:     SolverConfig{MaxIterations: 10, TimeoutSeconds: 300},
		Database:   DatabaseConfig{Driver: "sqlite", Path: "relay.db"},
		Workspace:  WorkspaceConfig{Path: filepath.Join(home, "relay-workspace")},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "relay.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("RELAY_LLM_HOST"); v != "" {
		cfg.LLM.Host = v
	}
	if v := os.Getenv("RELAY_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("RELAY_EMBED_MODEL"); v != "" {
		cfg.LLM.EmbedModel = v
	}
	if v := os.Getenv("RELAY_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("RELAY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RELAY_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("RELAY_WORKSPACE"); v != "" {
		cfg.Workspace.Path = v
	}
	if v := os.Getenv("RELAY_SOLVER_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Solver.MaxIterations = n
		}
	}
	if os.Getenv("RELAY_OBSERVER_ENABLED") == "true" || os.Getenv("RELAY_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
