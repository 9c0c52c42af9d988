package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DeploymentMode represents the deployment mode of the service.
type DeploymentMode string

const (
	// ModeDistributed reads events from NATS, the source over gRPC and keeps
	// the load order in PostgreSQL.
	ModeDistributed DeploymentMode = "distributed"
	// ModeStandalone runs in a single process with in-memory event delivery
	// and an embedded load-order database.
	ModeStandalone DeploymentMode = "standalone"
)

// IsStandalone returns true if this is standalone mode.
func (m DeploymentMode) IsStandalone() bool {
	return m == ModeStandalone
}

// IsDistributed returns true if this is distributed mode.
// Empty string defaults to distributed.
func (m DeploymentMode) IsDistributed() bool {
	return m == "" || m == ModeDistributed
}

// DeploymentConfig holds deployment mode settings
type DeploymentConfig struct {
	Mode       DeploymentMode   `yaml:"mode"` // "standalone" or "distributed" (default)
	Standalone StandaloneConfig `yaml:"standalone"`
}

// StandaloneConfig holds standalone-specific settings
type StandaloneConfig struct {
	// DataDir is the base directory of embedded databases.
	DataDir string `yaml:"data_dir"`
}

func DefaultDeploymentConfig() DeploymentConfig {
	return DeploymentConfig{
		Mode: ModeDistributed,
		Standalone: StandaloneConfig{
			DataDir: "data",
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *DeploymentConfig) ApplyDefaults() {
	defaults := DefaultDeploymentConfig()
	if c.Mode == "" {
		c.Mode = defaults.Mode
	}
	if c.Standalone.DataDir == "" {
		c.Standalone.DataDir = defaults.Standalone.DataDir
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *DeploymentConfig) ApplyEnvOverrides() {
	if val := os.Getenv("INVENTORY_DEPLOYMENT_MODE"); val != "" {
		c.Mode = DeploymentMode(val)
	}
	if val := os.Getenv("INVENTORY_DATA_DIR"); val != "" {
		c.Standalone.DataDir = val
	}
}

// ResolvePaths makes the data directory absolute relative to baseDir.
func (c *DeploymentConfig) ResolvePaths(baseDir string) {
	if c.Standalone.DataDir != "" && !filepath.IsAbs(c.Standalone.DataDir) {
		c.Standalone.DataDir = filepath.Join(baseDir, c.Standalone.DataDir)
	}
}

// Validate returns an error if the configuration is invalid.
func (c *DeploymentConfig) Validate() error {
	if c.Mode != "" && c.Mode != ModeStandalone && c.Mode != ModeDistributed {
		return fmt.Errorf("deployment.mode must be 'standalone' or 'distributed', got '%s'", c.Mode)
	}
	return nil
}
