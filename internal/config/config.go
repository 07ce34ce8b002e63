// Package config provides centralized configuration management for the
// extraction service. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Extract  ExtractConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings for the API mode.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0,
	// disabled so chunked NDJSON streams are never cut off mid-flight)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honored (default: none)
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 3).
	// This is the hard bound on concurrent streams; acquisition blocks when
	// the pool is exhausted.
	MaxConns int `env:"DB_MAX_CONNS" default:"3"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ExtractConfig holds the knobs for chunked extraction.
type ExtractConfig struct {
	// ChunkSize is the number of records fetched per page (default: 1000)
	ChunkSize int `env:"EXTRACT_CHUNK_SIZE" default:"1000"`

	// WindowInterval is the duration of each time window in windowed mode (default: 1h)
	WindowInterval time.Duration `env:"EXTRACT_WINDOW_INTERVAL" default:"1h"`

	// QueryTimeout is the deadline for a single COUNT or page query (default: 5m).
	// Timeouts are per query, never per stream: one slow page fails alone.
	QueryTimeout time.Duration `env:"EXTRACT_QUERY_TIMEOUT" default:"5m"`

	// PageRetries is how many extra attempts a transiently failing query gets (default: 2)
	PageRetries int `env:"EXTRACT_PAGE_RETRIES" default:"2"`

	// RetryBackoff is the wait between retry attempts (default: 500ms)
	RetryBackoff time.Duration `env:"EXTRACT_RETRY_BACKOFF" default:"500ms"`

	// PaceDelay is the cooperative pause inserted after a full page before the
	// next fetch, bounding burst load on the database (default: 10ms; 0 disables)
	PaceDelay time.Duration `env:"EXTRACT_PACE_DELAY" default:"10ms"`

	// TablesFile optionally points at a JSON file describing the table
	// registry; when empty the built-in registry is used.
	TablesFile string `env:"EXTRACT_TABLES_FILE"`
}

// ExportConfig holds defaults for file export.
type ExportConfig struct {
	// Format is the default output format: json, jsonl, csv, parquet (default: json)
	Format string `env:"EXPORT_FORMAT" default:"json"`

	// IncludeMetadata controls whether chunk envelopes keep their metadata
	// object in json/jsonl output (default: true)
	IncludeMetadata bool `env:"EXPORT_INCLUDE_METADATA" default:"true"`
}

// RateLimitConfig holds per-IP rate limiting settings for the API mode.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// PerSecond is the sustained request rate allowed per IP (default: 5)
	PerSecond int `env:"RATE_LIMIT_PER_SECOND" default:"5"`

	// Burst is the instantaneous burst allowed per IP (default: 10)
	Burst int `env:"RATE_LIMIT_BURST" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
