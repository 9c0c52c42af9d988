// Package config provides configuration for the search-index document store.
package config

import (
	"fmt"
	"os"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config holds the document store settings and the write-side options of the
// change handlers.
type Config struct {
	// Backend is mongo (default) or memory.
	Backend string `yaml:"backend"`

	URI      string `yaml:"uri"`
	Database string `yaml:"database"`

	// IndexPrefix prefixes every index name. Defaults to "inventory".
	IndexPrefix string `yaml:"index_prefix"`

	// KeepParentIDOnDelete keeps p_id on the children of a deleted object;
	// only parent_name is cleared.
	KeepParentIDOnDelete bool `yaml:"keep_parent_id_on_delete"`

	// ClearDeletedParameters unsets the parameter on the owning object when
	// a PRM is deleted.
	ClearDeletedParameters bool `yaml:"clear_deleted_parameters"`
}

// DefaultConfig returns the default document store configuration.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendMongo,
		URI:         "mongodb://localhost:27017",
		Database:    "inventory_search",
		IndexPrefix: "inventory",
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.URI == "" {
		c.URI = defaults.URI
	}
	if c.Database == "" {
		c.Database = defaults.Database
	}
	if c.IndexPrefix == "" {
		c.IndexPrefix = defaults.IndexPrefix
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INVENTORY_STORAGE_BACKEND"); val != "" {
		c.Backend = val
	}
	if val := os.Getenv("INVENTORY_MONGO_URI"); val != "" {
		c.URI = val
	}
	if val := os.Getenv("INVENTORY_MONGO_DATABASE"); val != "" {
		c.Database = val
	}
	if val := os.Getenv("INVENTORY_INDEX_PREFIX"); val != "" {
		c.IndexPrefix = val
	}
}

// ResolvePaths is a no-op; the document store has no paths.
func (c *Config) ResolvePaths(_, _ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(mode services.DeploymentMode) error {
	switch c.Backend {
	case BackendMongo:
		if c.URI == "" || c.Database == "" {
			return fmt.Errorf("storage.uri and storage.database are required for the mongo backend")
		}
	case BackendMemory:
		if mode.IsDistributed() {
			return fmt.Errorf("storage.backend memory is only supported in standalone mode")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Backend)
	}
	return nil
}
