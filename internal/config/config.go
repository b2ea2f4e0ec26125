// Package config loads the bridge daemon configuration from YAML with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pbezant/LoRaManager/pkg/lorawan"
)

// Config represents the bridge daemon configuration
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Uplink    UplinkConfig    `yaml:"uplink"`
	Retry     RetryConfig     `yaml:"retry"`
	ClassB    ClassBConfig    `yaml:"class_b"`
	Simulator SimulatorConfig `yaml:"simulator"`
	NATS      NATSConfig      `yaml:"nats"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

// DeviceConfig identifies the end device and its regional setup
type DeviceConfig struct {
	JoinEUI string `yaml:"join_eui"`
	DevEUI  string `yaml:"dev_eui"`
	AppKey  string `yaml:"app_key"`
	NwkKey  string `yaml:"nwk_key"`

	// SubBand selects the channel group in multi-subband regions (1-8).
	SubBand      uint8 `yaml:"sub_band"`
	MultiSubBand bool  `yaml:"multi_sub_band"`

	Class               string `yaml:"class"`
	PingSlotPeriodicity uint8  `yaml:"ping_slot_periodicity"`
}

// UplinkConfig drives the periodic application uplink
type UplinkConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Port      uint8         `yaml:"port"`
	Confirmed bool          `yaml:"confirmed"`
}

// RetryConfig tunes the join and send retry loops
type RetryConfig struct {
	JoinMaxAttempts       uint          `yaml:"join_max_attempts"`
	JoinInitialBackoff    time.Duration `yaml:"join_initial_backoff"`
	JoinBackoffMultiplier uint          `yaml:"join_backoff_multiplier"`
	JoinMaxBackoff        time.Duration `yaml:"join_max_backoff"`
	SendMaxAttempts       uint          `yaml:"send_max_attempts"`
}

// ClassBConfig tunes beacon tracking
type ClassBConfig struct {
	BeaconLossTolerance uint `yaml:"beacon_loss_tolerance"`
}

// SimulatorConfig shapes the simulated radio link
type SimulatorConfig struct {
	JoinFailures  uint    `yaml:"join_failures"`
	DropRate      float64 `yaml:"drop_rate"`
	DownlinkEvery uint    `yaml:"downlink_every"`
	BaseRSSI      float64 `yaml:"base_rssi"`
	BaseSNR       float64 `yaml:"base_snr"`
	Seed          int64   `yaml:"seed"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Name              string        `yaml:"name"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
}

// MQTTConfig represents the optional MQTT mirror
type MQTTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	TopicTemplate string `yaml:"topic_template"`
	QoS           byte   `yaml:"qos"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}

	if appKey := os.Getenv("DEVICE_APP_KEY"); appKey != "" {
		c.Device.AppKey = appKey
	}

	if nwkKey := os.Getenv("DEVICE_NWK_KEY"); nwkKey != "" {
		c.Device.NwkKey = nwkKey
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

func (c *Config) setDefaults() {
	if c.Device.Class == "" {
		c.Device.Class = "A"
	}

	if c.Uplink.Interval == 0 {
		c.Uplink.Interval = 60 * time.Second
	}
	if c.Uplink.Port == 0 {
		c.Uplink.Port = 10
	}

	if c.Simulator.BaseRSSI == 0 {
		c.Simulator.BaseRSSI = -95
	}
	if c.Simulator.BaseSNR == 0 {
		c.Simulator.BaseSNR = 7.5
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "lorabridge"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "device"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "lorabridge"
	}
	if c.MQTT.TopicTemplate == "" {
		c.MQTT.TopicTemplate = "lorabridge/{dev_eui}/{event}"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the fields that cannot fail lazily at runtime.
func (c *Config) Validate() error {
	if c.Device.JoinEUI != "" {
		if _, err := lorawan.ParseEUI64(c.Device.JoinEUI); err != nil {
			return fmt.Errorf("device.join_eui: %w", err)
		}
	}
	if c.Device.DevEUI != "" {
		if _, err := lorawan.ParseEUI64(c.Device.DevEUI); err != nil {
			return fmt.Errorf("device.dev_eui: %w", err)
		}
	}
	if c.Device.AppKey != "" {
		if _, err := lorawan.ParseAES128Key(c.Device.AppKey); err != nil {
			return fmt.Errorf("device.app_key: %w", err)
		}
	}
	if c.Device.NwkKey != "" {
		if _, err := lorawan.ParseAES128Key(c.Device.NwkKey); err != nil {
			return fmt.Errorf("device.nwk_key: %w", err)
		}
	}

	if _, err := lorawan.ParseDeviceClass(c.Device.Class); err != nil {
		return fmt.Errorf("device.class: %w", err)
	}
	if c.Device.SubBand > 8 {
		return fmt.Errorf("device.sub_band: %d out of range (0-8)", c.Device.SubBand)
	}
	if c.Device.PingSlotPeriodicity > 7 {
		return fmt.Errorf("device.ping_slot_periodicity: %d out of range (0-7)", c.Device.PingSlotPeriodicity)
	}

	if c.Simulator.DropRate < 0 || c.Simulator.DropRate >= 1 {
		return fmt.Errorf("simulator.drop_rate: %v out of range [0, 1)", c.Simulator.DropRate)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos: %d out of range (0-2)", c.MQTT.QoS)
	}

	return nil
}

// DeviceClass returns the parsed operating class. Call Validate first.
func (c *DeviceConfig) DeviceClass() lorawan.DeviceClass {
	dc, err := lorawan.ParseDeviceClass(c.Class)
	if err != nil {
		return lorawan.ClassA
	}
	return dc
}
