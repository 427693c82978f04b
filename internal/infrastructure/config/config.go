package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration.
type Config struct {
	Session  SessionConfig
	Terminal TerminalConfig
	Metrics  MetricsConfig
	Logging  LogConfig
}

// SessionConfig holds connection lifecycle configuration.
type SessionConfig struct {
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"15s"`
	BackoffBase     time.Duration `envconfig:"BACKOFF_BASE" default:"1s"`
	BackoffCap      time.Duration `envconfig:"BACKOFF_CAP" default:"60s"`
	ReadChunkSize   int           `envconfig:"READ_CHUNK_SIZE" default:"8192"`
	StartupSpacing  time.Duration `envconfig:"STARTUP_SPACING" default:"100ms"`
	StartupJitter   time.Duration `envconfig:"STARTUP_JITTER" default:"50ms"`
	ErrorHistoryCap int           `envconfig:"ERROR_HISTORY_CAP" default:"50"`
	RateWindow      time.Duration `envconfig:"RATE_WINDOW" default:"10s"`
}

// TerminalConfig holds emulator configuration.
type TerminalConfig struct {
	Cols          int `envconfig:"TERM_COLS" default:"80"`
	Rows          int `envconfig:"TERM_ROWS" default:"24"`
	ScrollbackCap int `envconfig:"SCROLLBACK_CAP" default:"10000"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("SHELLGRID", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ConnectTimeout:  15 * time.Second,
			BackoffBase:     time.Second,
			BackoffCap:      60 * time.Second,
			ReadChunkSize:   8192,
			StartupSpacing:  100 * time.Millisecond,
			StartupJitter:   50 * time.Millisecond,
			ErrorHistoryCap: 50,
			RateWindow:      10 * time.Second,
		},
		Terminal: TerminalConfig{
			Cols:          80,
			Rows:          24,
			ScrollbackCap: 10000,
		},
		Metrics: MetricsConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
