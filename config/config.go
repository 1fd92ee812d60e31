// Package config loads the server configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration. Keys missing from the file keep
// their default values.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Budget   BudgetConfig   `toml:"budget"`
}

// ServerConfig configures the HTTP server. Timeouts are in seconds.
type ServerConfig struct {
	Port            int      `toml:"port"`
	ReadTimeout     int      `toml:"read_timeout"`
	WriteTimeout    int      `toml:"write_timeout"`
	IdleTimeout     int      `toml:"idle_timeout"`
	ShutdownTimeout int      `toml:"shutdown_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
	StaticDir       string   `toml:"static_dir"`
}

// DatabaseConfig selects the store. Driver is "sqlite" or "memory"; Path is
// only used by sqlite, where ":memory:" keeps everything in memory.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// BudgetConfig configures edit sessions.
type BudgetConfig struct {
	// HistoryLimit caps the undo steps per session; 0 means unlimited.
	HistoryLimit int `toml:"history_limit"`
	// Scenario, when set, is loaded on startup if the database has no
	// projects yet.
	Scenario string `toml:"scenario"`
	// SessionIdleTimeout is how long, in seconds, an unused viewing session
	// stays loaded; 0 keeps sessions forever.
	SessionIdleTimeout int `toml:"session_idle_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15,
			WriteTimeout:    15,
			IdleTimeout:     60,
			ShutdownTimeout: 30,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
			StaticDir:       "./web/dist",
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "budget.db"},
		Budget:   BudgetConfig{SessionIdleTimeout: 1800},
	}
}

// LoadFromFile loads config from a specific file. A missing file yields the
// defaults.
func LoadFromFile(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return Default(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	for name, v := range map[string]int{
		"server.read_timeout":         c.Server.ReadTimeout,
		"server.write_timeout":        c.Server.WriteTimeout,
		"server.idle_timeout":         c.Server.IdleTimeout,
		"server.shutdown_timeout":     c.Server.ShutdownTimeout,
		"budget.history_limit":        c.Budget.HistoryLimit,
		"budget.session_idle_timeout": c.Budget.SessionIdleTimeout,
	} {
		if v < 0 {
			return fmt.Errorf("invalid config: %s must not be negative", name)
		}
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("invalid config: database.path is empty")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid config: unknown database.driver %q", c.Database.Driver)
	}
	return nil
}

// Addr is the listen address for the server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (s ServerConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}
