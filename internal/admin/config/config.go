// Package config provides configuration for the admin API.
package config

import (
	"fmt"
	"os"
	"time"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

// Config holds the admin API configuration.
type Config struct {
	// Disabled removes the /api/v1 routes; health and metrics stay.
	Disabled bool `yaml:"disabled"`

	// MaxPageSize caps the size parameter of paged queries. Defaults to 1000.
	MaxPageSize int `yaml:"max_page_size"`

	// QueryTimeout bounds hierarchy queries. Defaults to 30s.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns the default admin configuration.
func DefaultConfig() Config {
	return Config{
		MaxPageSize:  1000,
		QueryTimeout: 30 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = d.MaxPageSize
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = d.QueryTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INVENTORY_ADMIN_DISABLED"); val != "" {
		c.Disabled = val == "true" || val == "1"
	}
}

// ResolvePaths is a no-op; the admin API has no paths.
func (c *Config) ResolvePaths(_, _ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(_ services.DeploymentMode) error {
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("admin.max_page_size must be positive")
	}
	return nil
}
