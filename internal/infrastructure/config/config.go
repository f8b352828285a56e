package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Zigbee bridge core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database     DatabaseConfig      `yaml:"database"`
	API          APIConfig           `yaml:"api"`
	InfluxDB     InfluxDBConfig      `yaml:"influxdb"`
	Logging      LoggingConfig       `yaml:"logging"`
	Coordinators []CoordinatorConfig `yaml:"coordinators"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// CoordinatorConfig describes one zigbee2mqtt coordinator and the MQTT broker
// it publishes through. Each coordinator gets its own broker connection and
// its own worker loop; coordinators are fully independent of each other.
type CoordinatorConfig struct {
	// ID is the platform device id of the coordinator device.
	ID int `yaml:"id"`

	// Name is a human-readable label used in logs.
	Name string `yaml:"name"`

	// RootTopic is the zigbee2mqtt base topic (default "zigbee2mqtt").
	RootTopic string `yaml:"root_topic"`

	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicFilter is a diagnostic allow-list of friendly names whose raw
	// MQTT traffic is echoed to the debug log. The sentinels "ALL" and
	// "NONE" enable or disable echoing for every device.
	TopicFilter []string `yaml:"topic_filter"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ZIGBEECORE_SECTION_KEY
// For example: ZIGBEECORE_DATABASE_PATH, ZIGBEECORE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Fill per-coordinator defaults after the YAML merge
	for i := range cfg.Coordinators {
		applyCoordinatorDefaults(&cfg.Coordinators[i])
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/zigbeecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyCoordinatorDefaults fills zero-value coordinator fields.
func applyCoordinatorDefaults(cc *CoordinatorConfig) {
	if cc.RootTopic == "" {
		cc.RootTopic = "zigbee2mqtt"
	}
	if cc.Broker.Port == 0 {
		cc.Broker.Port = 1883
	}
	if cc.Broker.ClientID == "" {
		cc.Broker.ClientID = fmt.Sprintf("zigbeecore-%d", cc.ID)
	}
	if cc.QoS == 0 {
		cc.QoS = 1
	}
	if cc.Reconnect.InitialDelay == 0 {
		cc.Reconnect.InitialDelay = 1
	}
	if cc.Reconnect.MaxDelay == 0 {
		cc.Reconnect.MaxDelay = 60
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ZIGBEECORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("ZIGBEECORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("ZIGBEECORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ZIGBEECORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("ZIGBEECORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ZIGBEECORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Broker credentials apply to every coordinator that has none of its own.
	// Per-coordinator credentials in YAML always win.
	user := os.Getenv("ZIGBEECORE_MQTT_USERNAME")
	pass := os.Getenv("ZIGBEECORE_MQTT_PASSWORD")
	for i := range cfg.Coordinators {
		if user != "" && cfg.Coordinators[i].Auth.Username == "" {
			cfg.Coordinators[i].Auth.Username = user
		}
		if pass != "" && cfg.Coordinators[i].Auth.Password == "" {
			cfg.Coordinators[i].Auth.Password = pass
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of the first validation failure, or nil if valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			return fmt.Errorf("api.port must be 1-65535, got %d", c.API.Port)
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(c.Coordinators) == 0 {
		return fmt.Errorf("at least one coordinator must be configured")
	}

	seen := make(map[int]bool, len(c.Coordinators))
	for i := range c.Coordinators {
		cc := &c.Coordinators[i]
		if cc.ID <= 0 {
			return fmt.Errorf("coordinators[%d].id must be a positive device id", i)
		}
		if seen[cc.ID] {
			return fmt.Errorf("coordinators[%d].id %d is duplicated", i, cc.ID)
		}
		seen[cc.ID] = true
		if cc.Broker.Host == "" {
			return fmt.Errorf("coordinators[%d].broker.host is required", i)
		}
		if cc.Broker.Port < 1 || cc.Broker.Port > 65535 {
			return fmt.Errorf("coordinators[%d].broker.port must be 1-65535, got %d", i, cc.Broker.Port)
		}
		if cc.QoS < 0 || cc.QoS > 2 {
			return fmt.Errorf("coordinators[%d].qos must be 0-2, got %d", i, cc.QoS)
		}
		if strings.ContainsAny(cc.RootTopic, "/#+") {
			return fmt.Errorf("coordinators[%d].root_topic %q must be a single topic segment", i, cc.RootTopic)
		}
	}

	return nil
}
