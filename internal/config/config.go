// Package config loads the rig monitor's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// History backends.
const (
	BackendFile     = "file"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the complete daemon configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	History HistoryConfig `yaml:"history"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Log     LogConfig     `yaml:"log"`
}

// DeviceConfig describes the rig's HTTP API.
type DeviceConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MQTTConfig configures event publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HistoryConfig selects where the fault history is mirrored.
type HistoryConfig struct {
	Backend     string `yaml:"backend"`
	Key         string `yaml:"key"`
	Dir         string `yaml:"dir"`
	NATSURL     string `yaml:"nats_url"`
	NATSBucket  string `yaml:"nats_bucket"`
	DatabaseURL string `yaml:"database_url"`
}

// GPIOConfig configures the local fault lamp.
type GPIOConfig struct {
	Enabled bool   `yaml:"enabled"`
	Chip    string `yaml:"chip"`
	Line    int    `yaml:"line"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			URL:          "http://localhost:8000",
			PollInterval: 5 * time.Second,
			Timeout:      4 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		MQTT: MQTTConfig{
			Broker:    "tcp://localhost:1883",
			ClientID:  "rig-monitor",
			Heartbeat: 15 * time.Minute,
		},
		History: HistoryConfig{
			Backend:    BackendFile,
			Key:        "faultHistory",
			Dir:        "/var/lib/rig-monitor",
			NATSBucket: "rig_monitor",
		},
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
			Line: 12,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads filename over the defaults, applies environment overrides and
// validates the result. An empty filename skips the file.
func Load(filename string) (*Config, error) {
	var data []byte
	if filename != "" {
		var err error
		data, err = os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RIG_DEVICE_URL"); v != "" {
		c.Device.URL = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.History.NATSURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.History.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Device.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("device.url %q must be an http(s) URL", c.Device.URL)
	}
	if c.Device.PollInterval <= 0 {
		return errors.New("device.poll_interval must be positive")
	}
	if c.Device.Timeout <= 0 {
		return errors.New("device.timeout must be positive")
	}
	if c.MQTT.Heartbeat < 0 {
		return errors.New("mqtt.heartbeat must not be negative")
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		return errors.New("mqtt.client_id required when a broker is set")
	}
	if c.History.Key == "" {
		return errors.New("history.key required")
	}

	switch c.History.Backend {
	case BackendFile:
		if c.History.Dir == "" {
			return errors.New("history.dir required for the file backend")
		}
	case BackendNATS:
		if c.History.NATSURL == "" || c.History.NATSBucket == "" {
			return errors.New("history.nats_url and history.nats_bucket required for the nats backend")
		}
	case BackendPostgres:
		if c.History.DatabaseURL == "" {
			return errors.New("history.database_url required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown history.backend %q", c.History.Backend)
	}

	if c.GPIO.Enabled && c.GPIO.Line < 0 {
		return errors.New("gpio.line must not be negative")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}
