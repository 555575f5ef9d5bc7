// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable, e.g. CALC_SERVER_ADDR.
const Prefix = "CALC"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Storage   StorageConfig
	Power     PowerConfig
	Telegram  TelegramConfig
	Logging   LogConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// SessionConfig controls how long idle calculator sessions live.
type SessionConfig struct {
	TTL             time.Duration `envconfig:"TTL" default:"20m"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1m"`
	// CreateRate is new sessions per second across all clients; 0 is
	// unlimited.
	CreateRate  float64 `envconfig:"CREATE_RATE" default:"0"`
	CreateBurst int     `envconfig:"CREATE_BURST" default:"10"`
}

// StorageConfig selects where history and theme are kept. An empty Dir
// keeps them in memory.
type StorageConfig struct {
	Dir string `envconfig:"DIR"`
}

// PowerConfig points sessions at the remote arithmetic service. An empty
// URL computes powers locally.
type PowerConfig struct {
	URL     string        `envconfig:"URL"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// TelegramConfig holds bot credentials and polling settings.
type TelegramConfig struct {
	Token   string `envconfig:"TOKEN"`
	Offset  int    `envconfig:"OFFSET" default:"0"`
	Timeout int    `envconfig:"TIMEOUT" default:"60"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// TelemetryConfig switches the OTLP exporters on.
type TelemetryConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session TTL must be positive, got %s", c.Session.TTL)
	}
	if c.Session.CleanupInterval <= 0 {
		return fmt.Errorf("config: session cleanup interval must be positive, got %s", c.Session.CleanupInterval)
	}
	if c.Session.CreateRate < 0 {
		return fmt.Errorf("config: session create rate must not be negative, got %v", c.Session.CreateRate)
	}
	if c.Power.URL != "" && c.Power.Timeout <= 0 {
		return fmt.Errorf("config: power timeout must be positive, got %s", c.Power.Timeout)
	}
	return nil
}

// Usage writes a table of the recognised variables to out.
func Usage(out io.Writer) error {
	var cfg Config
	tabs := tabwriter.NewWriter(out, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(Prefix, &cfg, tabs, envconfig.DefaultTableFormat); err != nil {
		return err
	}
	return tabs.Flush()
}
