package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/czone-gateway/internal/infrastructure/database"
)

// TestRun_InvalidConfig verifies run fails with an explicit config path that
// does not exist.
func TestRun_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CZONEGW_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

// TestRun_RejectsInvalidBusSection verifies validation errors stop startup
// before anything connects.
func TestRun_RejectsInvalidBusSection(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	configPath := filepath.Join(dir, "config.yaml")

	configContent := `
gateway:
  id: test-gateway

bus:
  broker:
    host: "127.0.0.1"
    port: 0
  retry_delay: 1

journal:
  enabled: false

metrics:
  enabled: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))
	t.Setenv("CZONEGW_CONFIG", configPath)

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus.broker.port")
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CZONEGW_CONFIG", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "com.czone.Backend", cfg.Bus.Service)
	assert.Equal(t, 30, cfg.Snapshot.Interval)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("gateway:\n  id: boat-7\n"), 0600))
	t.Setenv("CZONEGW_CONFIG", configPath)
	t.Setenv("CZONEGW_BUS_HOST", "broker.local")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "boat-7", cfg.Gateway.ID)
	assert.Equal(t, "broker.local", cfg.Bus.Broker.Host)
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, healthCheck(ctx, nil, nil))

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "alarms.db"), BusyTimeout: 1})
	require.NoError(t, err)
	assert.NoError(t, healthCheck(ctx, db, nil))

	require.NoError(t, db.Close())
	err = healthCheck(ctx, db, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal database")
}
