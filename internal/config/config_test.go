package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loadorder "github.com/syntrixbase/inventory/internal/core/loadorder/config"
	services "github.com/syntrixbase/inventory/internal/services/config"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadConfig_Layers(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	require.NoError(t, os.Mkdir(dir, 0o755))

	writeConfig(t, dir, "config.yml", `
deployment:
  mode: standalone
storage:
  backend: memory
  keep_parent_id_on_delete: true
events:
  workers: 2
logging:
  level: debug
`)
	writeConfig(t, dir, "config.local.yml", `
events:
  max_attempts: 9
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, services.ModeStandalone, cfg.Deployment.Mode)
	assert.Equal(t, filepath.Join(root, "data"), cfg.Deployment.Standalone.DataDir)
	assert.True(t, cfg.Storage.KeepParentIDOnDelete)
	assert.Equal(t, 2, cfg.Events.Workers)
	assert.Equal(t, 9, cfg.Events.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(root, "logs"), cfg.Logging.Dir)
	assert.Equal(t, loadorder.BackendPebble, cfg.LoadOrder.Backend)
	assert.Equal(t, filepath.Join(root, "data", "loadorder"), cfg.LoadOrder.Path)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
}

func TestLoadConfig_DistributedRequiresAddresses(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load_order.dsn")

	writeConfig(t, dir, "config.yml", `
load_order:
  dsn: postgres://localhost/inventory
source:
  address: inventory:9090
`)
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, loadorder.BackendPostgres, cfg.LoadOrder.Backend)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yml", "events: [")
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidMode(t *testing.T) {
	t.Setenv("INVENTORY_DEPLOYMENT_MODE", "cluster")
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}

func TestLoggingConfig(t *testing.T) {
	cfg := LoggingConfig{Level: "warn", Console: OutputConfig{Enabled: true}}
	cfg.ApplyDefaults()
	assert.Equal(t, "warn", cfg.Console.Level)
	assert.Equal(t, "text", cfg.File.Format)
	assert.NoError(t, cfg.Validate(services.ModeStandalone))

	cfg.ResolvePaths(filepath.Join("etc", "config"), "")
	assert.Equal(t, filepath.Join("etc", "logs"), cfg.Dir)

	up := LoggingConfig{Dir: "../logs"}
	up.ResolvePaths(filepath.Join("etc", "config"), "")
	assert.Equal(t, filepath.Join("etc", "logs"), up.Dir)

	t.Setenv("INVENTORY_LOG_LEVEL", "error")
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "error", cfg.File.Level)

	bad := DefaultLoggingConfig()
	bad.Level = "trace"
	assert.Error(t, bad.Validate(services.ModeStandalone))
	bad = DefaultLoggingConfig()
	bad.File.Format = "xml"
	assert.Error(t, bad.Validate(services.ModeStandalone))
}
