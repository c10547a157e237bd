package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RIG_DEVICE_URL", "MQTT_BROKER", "NATS_URL", "DATABASE_URL", "LOG_LEVEL", "HTTP_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestDefaultsValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Device.PollInterval)
	assert.Equal(t, BackendFile, cfg.History.Backend)
	assert.Equal(t, "faultHistory", cfg.History.Key)
	assert.Equal(t, 12, cfg.GPIO.Line)
	assert.False(t, cfg.GPIO.Enabled)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  url: http://192.168.177.178:8000
  poll_interval: 2s
history:
  backend: memory
mqtt:
  broker: ""
gpio:
  enabled: true
  line: 17
log:
  level: debug
  format: console
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.177.178:8000", cfg.Device.URL)
	assert.Equal(t, 2*time.Second, cfg.Device.PollInterval)
	assert.Equal(t, 4*time.Second, cfg.Device.Timeout, "unset keys keep defaults")
	assert.Equal(t, BackendMemory, cfg.History.Backend)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.True(t, cfg.GPIO.Enabled)
	assert.Equal(t, 17, cfg.GPIO.Line)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIG_DEVICE_URL", "http://rig:9000")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("DATABASE_URL", "postgres://u@db/rig")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Parse([]byte("history:\n  backend: nats\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://rig:9000", cfg.Device.URL)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "nats://nats:4222", cfg.History.NATSURL)
	assert.Equal(t, "postgres://u@db/rig", cfg.History.DatabaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"bad url":          "device:\n  url: ftp://rig\n",
		"zero interval":    "device:\n  poll_interval: 0s\n",
		"unknown backend":  "history:\n  backend: redis\n",
		"nats without url": "history:\n  backend: nats\n",
		"pg without dsn":   "history:\n  backend: postgres\n",
		"empty key":        "history:\n  key: \"\"\n",
		"bad log format":   "log:\n  format: xml\n",
		"negative hb":      "mqtt:\n  heartbeat: -1s\n",
		"bad yaml":         "device: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
