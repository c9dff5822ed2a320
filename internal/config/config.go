package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/majo1520/IT-STOCK-sub001/cache"
)

// Config carries everything the server binary needs. Values come from the
// environment (optionally via a .env file loaded in main) with defaults that
// match the reference deployment.
type Config struct {
	// HTTPAddr is the listen address of the API + push channel server.
	HTTPAddr string
	// DatabaseURL is the Postgres DSN of the canonical store.
	DatabaseURL string

	// HeartbeatInterval is the push channel liveness period.
	HeartbeatInterval time.Duration
	// PushWriteTimeout bounds a single push channel write.
	PushWriteTimeout time.Duration
	// EventQueueSize bounds the broadcaster's dispatch queue.
	EventQueueSize int

	// RebuildTimeout bounds the exclusive cache rebuild. Zero keeps the
	// historical unbounded (fail-open) behavior.
	RebuildTimeout time.Duration

	// ReconcileStartupDelay is the fixed delay before the reconciler's
	// time-driven safety pass.
	ReconcileStartupDelay time.Duration

	// Cache configures the reconciler's local code cache.
	Cache cache.Config
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		HTTPAddr:              ":8080",
		HeartbeatInterval:     30 * time.Second,
		PushWriteTimeout:      5 * time.Second,
		EventQueueSize:        256,
		RebuildTimeout:        0,
		ReconcileStartupDelay: 5 * time.Second,
		Cache:                 cache.DefaultConfig(),
	}
}

// FromEnv builds a Config from the process environment on top of Default.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	var err error
	if cfg.HeartbeatInterval, err = durationEnv("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return cfg, err
	}
	if cfg.PushWriteTimeout, err = durationEnv("PUSH_WRITE_TIMEOUT", cfg.PushWriteTimeout); err != nil {
		return cfg, err
	}
	if cfg.RebuildTimeout, err = durationEnv("REBUILD_TIMEOUT", cfg.RebuildTimeout); err != nil {
		return cfg, err
	}
	if cfg.ReconcileStartupDelay, err = durationEnv("RECONCILE_STARTUP_DELAY", cfg.ReconcileStartupDelay); err != nil {
		return cfg, err
	}
	if cfg.EventQueueSize, err = intEnv("EVENT_QUEUE_SIZE", cfg.EventQueueSize); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration. The cache sub-config validates itself.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.HeartbeatInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.PushWriteTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.EventQueueSize, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return c.Cache.Validate()
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return d, nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return n, nil
}
