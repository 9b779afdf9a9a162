// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	Database    DatabaseConfig
	Companion   CompanionConfig
	Notify      NotifyConfig
	Retention   RetentionConfig
}

// DatabaseConfig selects and locates the SQL backend.
type DatabaseConfig struct {
	Driver string
	Path   string // sqlite
	URL    string // postgres
}

// CompanionConfig controls the chat companion.
type CompanionConfig struct {
	// Addr of the gRPC companion sidecar. Empty selects the offline responder.
	Addr       string
	Timeout    time.Duration
	RateLimit  int
	RateWindow time.Duration
}

// NotifyConfig controls the notification stream.
type NotifyConfig struct {
	QueueSize int
	Keepalive time.Duration
}

// RetentionConfig controls purging of inactive anonymous users.
type RetentionConfig struct {
	// Days of inactivity after which a user is deleted. 0 disables purging.
	Days     int
	Interval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			Path:   getEnv("DB_PATH", "./data/tranquili.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Companion: CompanionConfig{
			Addr:       getEnv("COMPANION_ADDR", ""),
			Timeout:    getEnvDuration("COMPANION_TIMEOUT", 20*time.Second),
			RateLimit:  getEnvInt("CHAT_RATE_LIMIT", 10),
			RateWindow: getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		},
		Notify: NotifyConfig{
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 50),
			Keepalive: getEnvDuration("NOTIFY_KEEPALIVE", 25*time.Second),
		},
		Retention: RetentionConfig{
			Days:     getEnvInt("RETENTION_DAYS", 180),
			Interval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Companion.Timeout <= 0 {
		return fmt.Errorf("COMPANION_TIMEOUT must be > 0")
	}
	if c.Companion.RateLimit < 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT must be >= 0")
	}
	if c.Companion.RateWindow <= 0 {
		return fmt.Errorf("CHAT_RATE_WINDOW must be > 0")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be > 0")
	}
	if c.Notify.Keepalive <= 0 {
		return fmt.Errorf("NOTIFY_KEEPALIVE must be > 0")
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("RETENTION_DAYS must be >= 0")
	}
	if c.Retention.Days > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0")
	}
	return nil
}

// CompanionEnabled reports whether a companion sidecar is configured.
func (c *Config) CompanionEnabled() bool {
	return c.Companion.Addr != ""
}

// RetentionPeriod returns the inactivity period after which users are
// purged, or 0 when purging is disabled.
func (c *Config) RetentionPeriod() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
