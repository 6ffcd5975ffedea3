package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the CZone gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway       GatewayConfig       `yaml:"gateway"`
	Bus           BusConfig           `yaml:"bus"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	ConfigService ConfigServiceConfig `yaml:"config_service"`
	Journal       JournalConfig       `yaml:"journal"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// GatewayConfig identifies this gateway instance.
type GatewayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// BusConfig contains the local IPC bus settings used to reach the CZone backend.
type BusConfig struct {
	// Service, ObjectPath and Interface name the backend on the bus.
	// Together they form the topic prefix for calls and signals.
	Service    string `yaml:"service"`
	ObjectPath string `yaml:"object_path"`
	Interface  string `yaml:"interface"`

	Broker BusBrokerConfig `yaml:"broker"`
	Auth   BusAuthConfig   `yaml:"auth"`

	// RetryDelay is the fixed delay between reconnect/retry attempts (seconds).
	RetryDelay int `yaml:"retry_delay"`

	// CallTimeout bounds how long a single call waits for its reply (seconds).
	CallTimeout int `yaml:"call_timeout"`

	// ControlMaxAttempts bounds control and acknowledge calls. Read calls retry forever.
	ControlMaxAttempts int `yaml:"control_max_attempts"`
}

// BusBrokerConfig contains the local broker connection details.
type BusBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// BusAuthConfig contains optional broker credentials.
type BusAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SnapshotConfig contains liveness settings for state snapshots.
type SnapshotConfig struct {
	// Interval is how long to wait for a pushed snapshot before pulling one (seconds).
	Interval int `yaml:"interval"`
}

// ConfigServiceConfig contains configuration write settings.
type ConfigServiceConfig struct {
	// WriteDelay is the pause between PutFile and the WriteConfig operation (milliseconds).
	WriteDelay int `yaml:"write_delay"`
}

// JournalConfig contains the SQLite alarm journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CZONEGW_SECTION_KEY
// For example: CZONEGW_BUS_HOST, CZONEGW_JOURNAL_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file exists on the gateway.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:   "gateway-001",
			Name: "CZone Gateway",
		},
		Bus: BusConfig{
			Service:    "com.czone.Backend",
			ObjectPath: "/com/czone/Backend",
			Interface:  "com.czone.Backend",
			Broker: BusBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "czonegw",
			},
			RetryDelay:         5,
			CallTimeout:        10,
			ControlMaxAttempts: 3,
		},
		Snapshot: SnapshotConfig{
			Interval: 30,
		},
		ConfigService: ConfigServiceConfig{
			WriteDelay: 1000,
		},
		Journal: JournalConfig{
			Enabled:     true,
			Path:        "./data/alarms.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CZONEGW_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bus
	if v := os.Getenv("CZONEGW_BUS_HOST"); v != "" {
		cfg.Bus.Broker.Host = v
	}
	if v := os.Getenv("CZONEGW_BUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bus.Broker.Port = port
		}
	}
	if v := os.Getenv("CZONEGW_BUS_USERNAME"); v != "" {
		cfg.Bus.Auth.Username = v
	}
	if v := os.Getenv("CZONEGW_BUS_PASSWORD"); v != "" {
		cfg.Bus.Auth.Password = v
	}

	// Journal
	if v := os.Getenv("CZONEGW_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// InfluxDB
	if v := os.Getenv("CZONEGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CZONEGW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}

	if c.Bus.Service == "" || c.Bus.ObjectPath == "" || c.Bus.Interface == "" {
		errs = append(errs, "bus.service, bus.object_path and bus.interface are required")
	}
	if c.Bus.Broker.Port < 1 || c.Bus.Broker.Port > 65535 {
		errs = append(errs, "bus.broker.port must be between 1 and 65535")
	}
	if c.Bus.RetryDelay < 1 {
		errs = append(errs, "bus.retry_delay must be at least 1 second")
	}
	if c.Bus.CallTimeout < 1 {
		errs = append(errs, "bus.call_timeout must be at least 1 second")
	}
	if c.Bus.ControlMaxAttempts < 1 {
		errs = append(errs, "bus.control_max_attempts must be at least 1")
	}

	if c.Snapshot.Interval < 1 {
		errs = append(errs, "snapshot.interval must be at least 1 second")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRetryDelay returns the bus retry delay as a Duration.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.Bus.RetryDelay) * time.Second
}

// GetCallTimeout returns the per-call reply timeout as a Duration.
func (c *Config) GetCallTimeout() time.Duration {
	return time.Duration(c.Bus.CallTimeout) * time.Second
}

// GetSnapshotInterval returns the snapshot pull interval as a Duration.
func (c *Config) GetSnapshotInterval() time.Duration {
	return time.Duration(c.Snapshot.Interval) * time.Second
}

// GetWriteDelay returns the configuration write delay as a Duration.
func (c *Config) GetWriteDelay() time.Duration {
	return time.Duration(c.ConfigService.WriteDelay) * time.Millisecond
}
