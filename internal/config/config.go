// Package config loads the inventory indexer configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	admin "github.com/syntrixbase/inventory/internal/admin/config"
	storage "github.com/syntrixbase/inventory/internal/core/docstore/config"
	loadorder "github.com/syntrixbase/inventory/internal/core/loadorder/config"
	source "github.com/syntrixbase/inventory/internal/core/source/config"
	indexer "github.com/syntrixbase/inventory/internal/indexer/config"
	reindex "github.com/syntrixbase/inventory/internal/inventory/reindex/config"
	"github.com/syntrixbase/inventory/internal/server"
	services "github.com/syntrixbase/inventory/internal/services/config"
)

// Config holds the application configuration.
type Config struct {
	Deployment services.DeploymentConfig `yaml:"deployment"`
	Server     server.Config             `yaml:"server"`
	Logging    LoggingConfig             `yaml:"logging"`

	Storage   storage.Config   `yaml:"storage"`
	Events    indexer.Config   `yaml:"events"`
	LoadOrder loadorder.Config `yaml:"load_order"`
	Source    source.Config    `yaml:"source"`
	Reindex   reindex.Config   `yaml:"reindex"`
	Admin     admin.Config     `yaml:"admin"`
}

// Default returns the configuration before any file is applied.
func Default() *Config {
	return &Config{
		Deployment: services.DefaultDeploymentConfig(),
		Server:     server.DefaultConfig(),
		Logging:    DefaultLoggingConfig(),
		Storage:    storage.DefaultConfig(),
		Events:     indexer.DefaultConfig(),
		LoadOrder:  loadorder.DefaultConfig(),
		Source:     source.DefaultConfig(),
		Reindex:    reindex.DefaultConfig(),
		Admin:      admin.DefaultConfig(),
	}
}

// LoadConfig loads configuration from configDir.
// Order: defaults -> config.yml -> config.local.yml -> env overrides ->
// path resolution -> validation.
func LoadConfig(configDir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"config.yml", "config.local.yml"} {
		if err := loadFile(filepath.Join(configDir, name), cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Finalize(configDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize runs the lifecycle on every section. Deployment goes first so the
// other sections validate against the resolved mode.
func (c *Config) Finalize(configDir string) error {
	c.Deployment.ApplyDefaults()
	c.Deployment.ApplyEnvOverrides()
	c.Deployment.ResolvePaths(filepath.Dir(configDir))
	if err := c.Deployment.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	err := ApplyServiceConfigs(configDir, c.Deployment.Standalone.DataDir, c.Deployment.Mode,
		&c.Server,
		&c.Logging,
		&c.Storage,
		&c.Events,
		&c.LoadOrder,
		&c.Source,
		&c.Reindex,
		&c.Admin,
	)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		slog.Warn("Failed to read config file", "path", path, "error", err)
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
