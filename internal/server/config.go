package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

// Config holds the listener configuration.
type Config struct {
	Host string `yaml:"host"`

	// HTTPPort serves health, metrics and the admin API.
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// GRPCPort serves the embedded source in standalone mode. Zero disables
	// the gRPC listener.
	GRPCPort int `yaml:"grpc_port"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		HTTPPort:        8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = d.HTTPPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INVENTORY_HOST"); val != "" {
		c.Host = val
	}
	if n, err := strconv.Atoi(os.Getenv("INVENTORY_HTTP_PORT")); err == nil {
		c.HTTPPort = n
	}
	if n, err := strconv.Atoi(os.Getenv("INVENTORY_GRPC_PORT")); err == nil {
		c.GRPCPort = n
	}
}

// ResolvePaths is a no-op; the server has no paths.
func (c *Config) ResolvePaths(_, _ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(_ services.DeploymentMode) error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range", c.HTTPPort)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range", c.GRPCPort)
	}
	if c.GRPCPort != 0 && c.GRPCPort == c.HTTPPort {
		return fmt.Errorf("server.grpc_port must differ from server.http_port")
	}
	return nil
}
