package goAssist

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the full client configuration. It is cloned by the Builder and
// treated as immutable afterwards.
type Config struct {
	Gateway GatewayConfig `envPrefix:"GATEWAY_"`
	Session SessionConfig `envPrefix:"SESSION_"`
	Store   StoreConfig   `envPrefix:"STORE_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Events  EventsConfig  `envPrefix:"EVENTS_"`
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig controls outbound calls to the analysis service.
type GatewayConfig struct {
	BaseURL          string        `env:"BASE_URL" envDefault:"http://localhost:8080/api"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"30s"`
	UserAgent        string        `env:"USER_AGENT" envDefault:"goassist-go"`
	MaxResponseBytes int64         `env:"MAX_RESPONSE_BYTES" envDefault:"4194304"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session lifecycle.
type SessionConfig struct {
	// KeyPrefix names the credential store entries.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"goassist"`
	// DiscardSupersededLogins drops a login result when another transition
	// committed while it was in flight.
	DiscardSupersededLogins bool `env:"DISCARD_SUPERSEDED_LOGINS" envDefault:"true"`
	// AutoExpire tears the session down at its expiry instant instead of on
	// the next Sweep.
	AutoExpire bool `env:"AUTO_EXPIRE" envDefault:"true"`
}

/*
====================================
STORE CONFIG
====================================
*/

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// StoreConfig selects and configures the credential store backend.
type StoreConfig struct {
	Backend           string        `env:"BACKEND" envDefault:"memory"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	SQLitePath        string        `env:"SQLITE_PATH"`
	SQLiteBusyTimeout time.Duration `env:"SQLITE_BUSY_TIMEOUT" envDefault:"5s"`
}

/*
====================================
LOGGING, METRICS, EVENTS
====================================
*/

// LoggingConfig controls the logger built when none is supplied.
type LoggingConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"console"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"14"`
	Compress   bool   `env:"COMPRESS" envDefault:"false"`
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED" envDefault:"false"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS" envDefault:"false"`
}

// EventsConfig controls asynchronous session event delivery.
type EventsConfig struct {
	Enabled    bool `env:"ENABLED" envDefault:"false"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			BaseURL:          "http://localhost:8080/api",
			Timeout:          30 * time.Second,
			UserAgent:        "goassist-go",
			MaxResponseBytes: 4 << 20,
		},
		Session: SessionConfig{
			KeyPrefix:               "goassist",
			DiscardSupersededLogins: true,
			AutoExpire:              true,
		},
		Store: StoreConfig{
			Backend:           StoreMemory,
			RedisAddr:         "localhost:6379",
			SQLiteBusyTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Metrics: MetricsConfig{},
		Events: EventsConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Gateway
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Host == "" {
		return errors.New("Gateway BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("Gateway BaseURL scheme must be http or https")
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("Gateway Timeout must be > 0")
	}
	if c.Gateway.MaxResponseBytes <= 0 {
		return errors.New("Gateway MaxResponseBytes must be > 0")
	}

	// Session
	if c.Session.KeyPrefix == "" {
		return errors.New("Session KeyPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.KeyPrefix, " \t\r\n") {
		return errors.New("Session KeyPrefix must not contain whitespace")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("Store RedisAddr is required for the redis backend")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("Store RedisDB must be >= 0")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("Store SQLitePath is required for the sqlite backend")
		}
		if c.Store.SQLiteBusyTimeout < 0 {
			return errors.New("Store SQLiteBusyTimeout must be >= 0")
		}
	default:
		return errors.New("Store Backend must be 'memory', 'redis' or 'sqlite'")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.New("Logging Level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return errors.New("Logging Format must be 'console' or 'json'")
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when enabled")
	}

	return nil
}
