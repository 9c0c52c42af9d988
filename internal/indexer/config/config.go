// Package config provides configuration for the indexer service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

// Config holds the indexer service configuration.
type Config struct {
	// NATSURL is the JetStream server. Unused in standalone mode.
	NATSURL string `yaml:"nats_url"`

	// Stream is the JetStream stream carrying change events.
	// Defaults to "INVENTORY".
	Stream string `yaml:"stream"`

	// Consumer is the durable consumer name. Defaults to "inventory-indexer".
	Consumer string `yaml:"consumer"`

	// Workers is the number of event workers. Defaults to 4, one per entity
	// kind.
	Workers int `yaml:"workers"`

	// MaxAttempts bounds deliveries of a failing event. Defaults to 5.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff is the redelivery delay after the first failure; it
	// doubles on each attempt up to MaxBackoff. Defaults to 1s and 30s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// HandlerTimeout bounds one event. Defaults to 2m.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// ChannelBufSize is the per-worker queue length. Defaults to 100.
	ChannelBufSize int `yaml:"channel_buf_size"`
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig() Config {
	return Config{
		NATSURL:        "nats://localhost:4222",
		Stream:         "INVENTORY",
		Consumer:       "inventory-indexer",
		Workers:        4,
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		HandlerTimeout: 2 * time.Minute,
		ChannelBufSize: 100,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.NATSURL == "" {
		c.NATSURL = d.NATSURL
	}
	if c.Stream == "" {
		c.Stream = d.Stream
	}
	if c.Consumer == "" {
		c.Consumer = d.Consumer
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = d.HandlerTimeout
	}
	if c.ChannelBufSize <= 0 {
		c.ChannelBufSize = d.ChannelBufSize
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INVENTORY_NATS_URL"); val != "" {
		c.NATSURL = val
	}
	if val := os.Getenv("INVENTORY_EVENTS_STREAM"); val != "" {
		c.Stream = val
	}
	if val := os.Getenv("INVENTORY_EVENTS_CONSUMER"); val != "" {
		c.Consumer = val
	}
	if n, err := strconv.Atoi(os.Getenv("INVENTORY_EVENTS_WORKERS")); err == nil {
		c.Workers = n
	}
	if n, err := strconv.Atoi(os.Getenv("INVENTORY_EVENTS_MAX_ATTEMPTS")); err == nil {
		c.MaxAttempts = n
	}
}

// ResolvePaths is a no-op; the indexer has no paths.
func (c *Config) ResolvePaths(_, _ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(mode services.DeploymentMode) error {
	if mode.IsDistributed() && c.NATSURL == "" {
		return fmt.Errorf("events.nats_url is required in distributed mode")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("events.workers must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("events.max_attempts must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("events.max_backoff must not be less than events.initial_backoff")
	}
	return nil
}
