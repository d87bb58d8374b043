// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Bulk     BulkConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 90s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"90s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty disables persistence:
	// history and mapping templates are unavailable and bulk mode must be http.
	// DB_URL is read when DATABASE_URL is unset.
	URL string `env:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" envDefault:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" envDefault:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	// AutoMigrate creates the tables on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// UploadConfig holds spreadsheet import settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 20MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" envDefault:"20971520"`

	// MaxRows is the number of data rows kept per file (default: 5000)
	MaxRows int `env:"UPLOAD_MAX_ROWS" envDefault:"5000"`

	// MaxConcurrent is the maximum number of parallel analyses and executions (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" envDefault:"5"`

	// MaxWaitTime is how long to wait for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" envDefault:"30s"`

	// Timeout bounds file analysis and import execution (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"5m"`

	// SessionTTL is how long an idle import session is kept (default: 1h)
	SessionTTL time.Duration `env:"UPLOAD_SESSION_TTL" envDefault:"1h"`
}

// BulkConfig selects where validated rows are created.
type BulkConfig struct {
	// Mode is "postgres" (insert into local tables) or "http" (POST to a remote API).
	// Default: postgres
	Mode string `env:"BULK_MODE" envDefault:"postgres"`

	// Endpoint is the base URL of the remote API in http mode
	Endpoint string `env:"BULK_ENDPOINT"`

	// Token is sent as a bearer token in http mode
	Token string `env:"BULK_TOKEN"`

	// Timeout is the HTTP client timeout in http mode (default: 60s)
	Timeout time.Duration `env:"BULK_TIMEOUT" envDefault:"60s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"120"`

	// Burst is the number of requests allowed at once (default: 30)
	Burst int `env:"RATE_LIMIT_BURST" envDefault:"30"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enforces the X-API-Key header on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" envDefault:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// PersistenceEnabled reports whether a database is configured.
func (c *DatabaseConfig) PersistenceEnabled() bool {
	return c.URL != ""
}
