package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	services "github.com/syntrixbase/inventory/internal/services/config"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate(services.ModeDistributed))
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("INVENTORY_NATS_URL", "nats://nats:4222")
	t.Setenv("INVENTORY_EVENTS_STREAM", "INV")
	t.Setenv("INVENTORY_EVENTS_CONSUMER", "idx")
	t.Setenv("INVENTORY_EVENTS_WORKERS", "8")
	t.Setenv("INVENTORY_EVENTS_MAX_ATTEMPTS", "2")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "nats://nats:4222", cfg.NATSURL)
	assert.Equal(t, "INV", cfg.Stream)
	assert.Equal(t, "idx", cfg.Consumer)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2, cfg.MaxAttempts)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NATSURL = ""
	assert.Error(t, cfg.Validate(services.ModeDistributed))
	assert.NoError(t, cfg.Validate(services.ModeStandalone))

	cfg = DefaultConfig()
	cfg.MaxBackoff = time.Millisecond
	assert.Error(t, cfg.Validate(services.ModeStandalone))

	cfg = DefaultConfig()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate(services.ModeStandalone))
}
