// Package config provides configuration for the upstream source client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

// Config holds the upstream source configuration.
type Config struct {
	// Address is the gRPC address of the inventory source service.
	Address string `yaml:"address"`

	// Timeout bounds unary calls. Streams are bounded by the caller.
	// Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// ChunkSize is the number of records per streamed chunk of the embedded
	// source. Defaults to 1000.
	ChunkSize int `yaml:"chunk_size"`

	// SnapshotPath is a YAML snapshot loaded into the embedded source when no
	// address is set (standalone mode only).
	SnapshotPath string `yaml:"snapshot_path"`
}

// DefaultConfig returns the default source configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		ChunkSize: 1000,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaults.ChunkSize
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INVENTORY_SOURCE_ADDRESS"); val != "" {
		c.Address = val
	}
	if d, err := time.ParseDuration(os.Getenv("INVENTORY_SOURCE_TIMEOUT")); err == nil {
		c.Timeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("INVENTORY_SOURCE_CHUNK_SIZE")); err == nil {
		c.ChunkSize = n
	}
}

// ResolvePaths resolves the snapshot path against configDir.
func (c *Config) ResolvePaths(configDir, _ string) {
	if c.SnapshotPath != "" && !filepath.IsAbs(c.SnapshotPath) {
		c.SnapshotPath = filepath.Join(configDir, c.SnapshotPath)
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(mode services.DeploymentMode) error {
	if c.Address == "" && mode.IsDistributed() {
		return fmt.Errorf("source.address is required in distributed mode")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("source.chunk_size must be positive")
	}
	return nil
}
