// Package config provides centralized configuration for the migration run.
// Everything is read from environment variables with defaults and validated
// on startup so a misconfigured run fails before touching either database.
package config

import "time"

// Config holds all migration configuration.
type Config struct {
	Legacy    LegacyConfig
	Database  DatabaseConfig
	Migration MigrationConfig
	Icons     IconConfig
	AuthID    AuthIDConfig
	Status    StatusConfig
	Logging   LoggingConfig
}

// LegacyConfig holds the read-only legacy database settings.
type LegacyConfig struct {
	// URL is the legacy PostgreSQL connection string (required)
	URL string `env:"LEGACY_DATABASE_URL" envAlt:"LEGACY_DB_URL" required:"true"`

	// MaxConns is the maximum number of pooled legacy connections (default: 4)
	MaxConns int `env:"LEGACY_DB_MAX_CONNS" default:"4"`
}

// DatabaseConfig holds the current (target) database settings.
type DatabaseConfig struct {
	// URL is the target PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 8)
	MaxConns int `env:"DB_MAX_CONNS" default:"8"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// MigrationConfig controls the pipeline itself.
type MigrationConfig struct {
	// BatchSize is the number of legacy rows read per page (default: 500)
	BatchSize int `env:"MIGRATE_BATCH_SIZE" default:"500"`

	// Environment names the target; "production" refuses the target reset
	Environment string `env:"MIGRATE_ENVIRONMENT" default:"development"`

	// ResetTarget truncates all current tables before migrating (default: true)
	ResetTarget bool `env:"MIGRATE_RESET_TARGET" default:"true"`

	// Timeout bounds the whole run; zero means no limit
	Timeout time.Duration `env:"MIGRATE_TIMEOUT" default:"0s"`
}

// IconConfig holds icon fetching settings for color extraction.
type IconConfig struct {
	// BaseURL is the icon CDN root (default: https://img.icons8.com)
	BaseURL string `env:"ICON_BASE_URL" default:"https://img.icons8.com"`

	// Size is the rendered icon size requested from the CDN (default: 96)
	Size int `env:"ICON_SIZE" default:"96"`

	// FetchConcurrency bounds parallel icon fetches within one call (default: 8)
	FetchConcurrency int `env:"ICON_FETCH_CONCURRENCY" default:"8"`

	// FetchTimeout is the per-request timeout (default: 10s)
	FetchTimeout time.Duration `env:"ICON_FETCH_TIMEOUT" default:"10s"`
}

// AuthIDConfig toggles the identity key override table.
type AuthIDConfig struct {
	// TransformEnabled applies the static override table (default: true)
	TransformEnabled bool `env:"AUTHID_TRANSFORM_ENABLED" default:"true"`
}

// StatusConfig holds the optional status/metrics HTTP server settings.
type StatusConfig struct {
	// Addr is the listen address, e.g. ":9090"; empty disables the server
	Addr string `env:"STATUS_ADDR"`

	// ShutdownTimeout is how long to wait for the server to stop (default: 5s)
	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// IsProduction reports whether the target is a production database.
func (c *MigrationConfig) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
