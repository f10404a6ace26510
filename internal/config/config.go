// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"stockledger/internal/domain/ageing"
)

// Config holds runtime configuration for the server and the snapshot builder.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"development"`
	AppPort int    `envconfig:"APP_PORT" default:"8080"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:""`

	DatabaseURL    string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns     int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns     int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	DBStatementMax time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"2m"`

	HTTPReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"5m"`
	HTTPShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`

	ReportDefaultAgeRanges []int `envconfig:"REPORT_DEFAULT_AGE_RANGES" default:"30,60,90,120"`
	ReportMaxEvents        int   `envconfig:"REPORT_MAX_EVENTS" default:"5000000"`

	SnapshotInterval      time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"24h"`
	SnapshotLag           int           `envconfig:"SNAPSHOT_LAG_DAYS" default:"1"`
	SnapshotCompressBytes int           `envconfig:"SNAPSHOT_COMPRESS_BYTES" default:"10240"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return fmt.Errorf("APP_PORT %d out of range", c.AppPort)
	}
	if c.DBMinConns > c.DBMaxConns {
		return errors.New("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}
	if err := ageing.ValidateBoundaries(c.ReportDefaultAgeRanges); err != nil {
		return fmt.Errorf("REPORT_DEFAULT_AGE_RANGES: %w", err)
	}
	if c.ReportMaxEvents < 0 {
		return errors.New("REPORT_MAX_EVENTS must not be negative")
	}
	if c.SnapshotLag < 0 {
		return errors.New("SNAPSHOT_LAG_DAYS must not be negative")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.AppPort)
}
