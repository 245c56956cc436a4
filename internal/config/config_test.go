package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wind.yaml")
	data := `
gpio:
  pins: [17, 27]
  debounce: 2ms
serial:
  port: /dev/ttyAMA0
mqtt:
  broker: tcp://broker.local:1883
  heartbeat: 0s
  backlog: 32
poll: 50ms
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []int{17, 27}, cfg.GPIO.Pins)
	assert.Equal(t, 2*time.Millisecond, cfg.GPIO.Debounce)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip, "unset fields keep defaults")
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, time.Duration(0), cfg.MQTT.Heartbeat)
	assert.Equal(t, 32, cfg.MQTT.Backlog)
	assert.Equal(t, 50*time.Millisecond, cfg.Poll)
	assert.Equal(t, ":80", cfg.HTTP.Addr)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gpio: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: chatty\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wind.yaml")
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.GPIO.Debounce = time.Millisecond

	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
