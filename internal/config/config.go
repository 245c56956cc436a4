// Package config loads the wind-sensor daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	GPIO        GPIOConfig        `yaml:"gpio"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Serial      SerialConfig      `yaml:"serial"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	Poll        time.Duration     `yaml:"poll"`
	LogLevel    string            `yaml:"log_level"`
}

// GPIOConfig selects the chip and pins the anemometers are wired to.
type GPIOConfig struct {
	Chip     string        `yaml:"chip"`
	Pins     []int         `yaml:"pins"`     // BCM pin per channel
	Debounce time.Duration `yaml:"debounce"` // 0 disables kernel debounce
}

// CalibrationConfig locates the persistent calibration image.
type CalibrationConfig struct {
	Path string `yaml:"path"`
}

// SerialConfig configures the calibration console. An empty port disables it.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// MQTTConfig configures publishing.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
	Backlog   int           `yaml:"backlog"`   // messages held while offline
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
			Pins: []int{5, 6},
		},
		Calibration: CalibrationConfig{
			Path: "/var/lib/wind-sensor/eeprom.bin",
		},
		Serial: SerialConfig{
			BaudRate: 115200,
		},
		MQTT: MQTTConfig{
			Broker:    "tcp://192.168.1.200:1883",
			Heartbeat: 15 * time.Minute,
			Backlog:   256,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Poll:     100 * time.Millisecond,
		LogLevel: "info",
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults; fields absent from the file keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.ensureDefaults()

	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

func (c *Config) ensureDefaults() {
	def := Default()

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}
	if len(c.GPIO.Pins) == 0 {
		c.GPIO.Pins = def.GPIO.Pins
	}
	if c.Calibration.Path == "" {
		c.Calibration.Path = def.Calibration.Path
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.Backlog <= 0 {
		c.MQTT.Backlog = def.MQTT.Backlog
	}
	if c.Poll == 0 {
		c.Poll = def.Poll
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}
