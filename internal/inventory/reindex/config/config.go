// Package config provides configuration for the bulk reindex.
package config

import (
	"fmt"
	"os"
	"strconv"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

// Config holds the bulk reindex configuration.
type Config struct {
	// PageSize bounds the flat-index pages read by the backfill passes.
	// Defaults to 1000.
	PageSize int `yaml:"page_size"`

	// BulkSize is the maximum number of actions per bulk call.
	// Defaults to 2000.
	BulkSize int `yaml:"bulk_size"`

	// DeleteBatchSize bounds the number of object indices dropped per call.
	// Defaults to 50.
	DeleteBatchSize int `yaml:"delete_batch_size"`

	// ResumeOnStart finishes an interrupted run when the service starts.
	ResumeOnStart bool `yaml:"resume_on_start"`
}

// DefaultConfig returns the default reindex configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:        1000,
		BulkSize:        2000,
		DeleteBatchSize: 50,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = defaults.PageSize
	}
	if c.BulkSize <= 0 {
		c.BulkSize = defaults.BulkSize
	}
	if c.DeleteBatchSize <= 0 {
		c.DeleteBatchSize = defaults.DeleteBatchSize
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if n, err := strconv.Atoi(os.Getenv("INVENTORY_REINDEX_PAGE_SIZE")); err == nil {
		c.PageSize = n
	}
	if n, err := strconv.Atoi(os.Getenv("INVENTORY_REINDEX_BULK_SIZE")); err == nil {
		c.BulkSize = n
	}
	if val := os.Getenv("INVENTORY_REINDEX_RESUME_ON_START"); val != "" {
		c.ResumeOnStart = val == "true" || val == "1"
	}
}

// ResolvePaths is a no-op; the reindex has no paths.
func (c *Config) ResolvePaths(_, _ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(_ services.DeploymentMode) error {
	if c.PageSize <= 0 {
		return fmt.Errorf("reindex.page_size must be positive")
	}
	if c.BulkSize <= 0 {
		return fmt.Errorf("reindex.bulk_size must be positive")
	}
	if c.DeleteBatchSize <= 0 {
		return fmt.Errorf("reindex.delete_batch_size must be positive")
	}
	return nil
}
