// Package config provides configuration for the load-order table.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

const (
	BackendPostgres = "postgres"
	BackendPebble   = "pebble"
	BackendMemory   = "memory"
)

// Config selects and configures the load-order backend.
type Config struct {
	// Backend is one of postgres, pebble or memory. Defaults to postgres in
	// distributed mode and pebble in standalone mode.
	Backend string `yaml:"backend"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// Table is the PostgreSQL table name. Defaults to "inventory_load_order".
	Table string `yaml:"table"`

	// Path is the pebble directory, relative to the data dir.
	// Defaults to "loadorder".
	Path string `yaml:"path"`
}

// DefaultConfig returns the default load-order configuration.
func DefaultConfig() Config {
	return Config{
		Table: "inventory_load_order",
		Path:  "loadorder",
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Table == "" {
		c.Table = defaults.Table
	}
	if c.Path == "" {
		c.Path = defaults.Path
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INVENTORY_LOAD_ORDER_BACKEND"); val != "" {
		c.Backend = val
	}
	if val := os.Getenv("INVENTORY_LOAD_ORDER_DSN"); val != "" {
		c.DSN = val
	}
	if val := os.Getenv("INVENTORY_LOAD_ORDER_PATH"); val != "" {
		c.Path = val
	}
}

// ResolvePaths resolves the pebble path against dataDir.
func (c *Config) ResolvePaths(_, dataDir string) {
	if c.Path != "" && !filepath.IsAbs(c.Path) {
		c.Path = filepath.Join(dataDir, c.Path)
	}
}

// Validate returns an error if the configuration is invalid. An empty
// backend is resolved from the deployment mode.
func (c *Config) Validate(mode services.DeploymentMode) error {
	if c.Backend == "" {
		c.Backend = BackendPostgres
		if mode.IsStandalone() {
			c.Backend = BackendPebble
		}
	}
	switch c.Backend {
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("load_order.dsn is required for the postgres backend")
		}
	case BackendPebble:
		if c.Path == "" {
			return fmt.Errorf("load_order.path is required for the pebble backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("load_order.backend %q is not supported", c.Backend)
	}
	return nil
}
