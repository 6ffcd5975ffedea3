package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
gateway:
  id: "vessel-7"
bus:
  service: "com.czone.Backend"
  object_path: "/com/czone/Backend"
  interface: "com.czone.Backend"
  broker:
    host: "127.0.0.1"
    port: 1884
  retry_delay: 2
  call_timeout: 4
  control_max_attempts: 5
snapshot:
  interval: 15
journal:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vessel-7", cfg.Gateway.ID)
	assert.Equal(t, "127.0.0.1", cfg.Bus.Broker.Host)
	assert.Equal(t, 1884, cfg.Bus.Broker.Port)
	assert.Equal(t, 5, cfg.Bus.ControlMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.GetRetryDelay())
	assert.Equal(t, 4*time.Second, cfg.GetCallTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetSnapshotInterval())
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoad_DefaultsFillMissingSections(t *testing.T) {
	path := writeConfig(t, "gateway:\n  id: \"g\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Bus.Broker.Host)
	assert.Equal(t, 30*time.Second, cfg.GetSnapshotInterval())
	assert.Equal(t, time.Second, cfg.GetWriteDelay())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CZONEGW_BUS_HOST", "broker.local")
	t.Setenv("CZONEGW_BUS_PORT", "2883")
	t.Setenv("CZONEGW_JOURNAL_PATH", "/var/lib/czonegw/alarms.db")

	path := writeConfig(t, "gateway:\n  id: \"g\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.Bus.Broker.Host)
	assert.Equal(t, 2883, cfg.Bus.Broker.Port)
	assert.Equal(t, "/var/lib/czonegw/alarms.db", cfg.Journal.Path)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing gateway id", mutate: func(c *Config) { c.Gateway.ID = "" }, wantErr: true},
		{name: "missing bus interface", mutate: func(c *Config) { c.Bus.Interface = "" }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.Bus.Broker.Port = 70000 }, wantErr: true},
		{name: "zero retry delay", mutate: func(c *Config) { c.Bus.RetryDelay = 0 }, wantErr: true},
		{name: "zero control attempts", mutate: func(c *Config) { c.Bus.ControlMaxAttempts = 0 }, wantErr: true},
		{name: "zero snapshot interval", mutate: func(c *Config) { c.Snapshot.Interval = 0 }, wantErr: true},
		{name: "journal enabled without path", mutate: func(c *Config) { c.Journal.Path = "" }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
