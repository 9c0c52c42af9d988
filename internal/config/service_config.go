package config

import (
	services "github.com/syntrixbase/inventory/internal/services/config"
)

// ServiceConfig is the configuration lifecycle every config section follows.
type ServiceConfig interface {
	// ApplyDefaults fills zero values with defaults.
	ApplyDefaults()

	// ApplyEnvOverrides applies INVENTORY_* environment overrides.
	ApplyEnvOverrides()

	// ResolvePaths resolves relative paths. Config-related paths resolve
	// against configDir, runtime data paths against dataDir.
	ResolvePaths(configDir, dataDir string)

	// Validate returns an error if the section is invalid in mode.
	Validate(mode services.DeploymentMode) error
}

// ApplyServiceConfigs runs the lifecycle on each section in order and stops at
// the first invalid one.
func ApplyServiceConfigs(configDir, dataDir string, mode services.DeploymentMode, configs ...ServiceConfig) error {
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		cfg.ApplyEnvOverrides()
		cfg.ResolvePaths(configDir, dataDir)
		if err := cfg.Validate(mode); err != nil {
			return err
		}
	}
	return nil
}
