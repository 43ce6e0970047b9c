package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the intercom bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge  BridgeConfig   `yaml:"bridge"`
	Devices []DeviceConfig `yaml:"devices"`
	MQTT    MQTTConfig     `yaml:"mqtt"`
	API     APIConfig      `yaml:"api"`
	Logging LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains bridge-level identity and behaviour settings.
type BridgeConfig struct {
	ID             string          `yaml:"id"`
	HealthInterval int             `yaml:"health_interval"` // seconds
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains device reconnection settings.
type ReconnectConfig struct {
	// InitialDelay is the first backoff step in seconds.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff, in seconds.
	MaxDelay int `yaml:"max_delay"`
}

// DeviceConfig contains connection parameters for a single intercom device.
// The parameters are immutable for the lifetime of a session; changing them
// requires restarting the bridge.
type DeviceConfig struct {
	// ID identifies the device in MQTT topics and API paths.
	ID string `yaml:"id"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // WebSocket JSON-RPC port
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TLSVerify controls certificate verification of the device's
	// WebSocket endpoint. Intercoms ship with self-signed certificates,
	// so this defaults to false.
	TLSVerify bool `yaml:"tls_verify"`

	// CameraPort is the port of the device's HTTP camera surface.
	CameraPort int `yaml:"camera_port"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default ports for the intercom device surfaces.
const (
	defaultDevicePort = 8081 // WebSocket JSON-RPC
	defaultCameraPort = 8080 // HTTP still/MJPEG
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: INTERCOM_SECTION_KEY
// For example: INTERCOM_MQTT_HOST, INTERCOM_DEVICE_PASSWORD
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
	applyDeviceDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "intercom-bridge-01",
			HealthInterval: 30,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     600,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "intercom-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
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

// applyDeviceDefaults fills per-device defaults that depend on other fields.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		if cfg.Devices[i].Port == 0 {
			cfg.Devices[i].Port = defaultDevicePort
		}
		if cfg.Devices[i].CameraPort == 0 {
			cfg.Devices[i].CameraPort = defaultCameraPort
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: INTERCOM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("INTERCOM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("INTERCOM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("INTERCOM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("INTERCOM_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Device credentials. Applied to every device that does not set its own
	// in the file, so secrets can stay out of config.yaml for single-device
	// installs.
	if v := os.Getenv("INTERCOM_DEVICE_USERNAME"); v != "" {
		for i := range cfg.Devices {
			if cfg.Devices[i].Username == "" {
				cfg.Devices[i].Username = v
			}
		}
	}
	if v := os.Getenv("INTERCOM_DEVICE_PASSWORD"); v != "" {
		for i := range cfg.Devices {
			if cfg.Devices[i].Password == "" {
				cfg.Devices[i].Password = v
			}
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.Reconnect.InitialDelay < 1 {
		errs = append(errs, "bridge.reconnect.initial_delay must be at least 1 second")
	}
	if c.Bridge.Reconnect.MaxDelay < c.Bridge.Reconnect.InitialDelay {
		errs = append(errs, "bridge.reconnect.max_delay must be >= initial_delay")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device must be configured")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, dev := range c.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)
		if dev.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seen[dev.ID] {
			errs = append(errs, prefix+".id duplicates "+dev.ID)
		} else {
			seen[dev.ID] = true
		}
		if dev.Host == "" {
			errs = append(errs, prefix+".host is required")
		}
		if dev.Port < 1 || dev.Port > 65535 {
			errs = append(errs, prefix+".port must be between 1 and 65535")
		}
		if dev.Username == "" {
			errs = append(errs, prefix+".username is required")
		}
		if dev.Password == "" {
			errs = append(errs, prefix+".password is required (set INTERCOM_DEVICE_PASSWORD)")
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReconnectInitialDelay returns the first reconnect backoff step as a Duration.
func (c *Config) GetReconnectInitialDelay() time.Duration {
	return time.Duration(c.Bridge.Reconnect.InitialDelay) * time.Second
}

// GetReconnectMaxDelay returns the reconnect backoff cap as a Duration.
func (c *Config) GetReconnectMaxDelay() time.Duration {
	return time.Duration(c.Bridge.Reconnect.MaxDelay) * time.Second
}

// GetHealthInterval returns the bridge health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
