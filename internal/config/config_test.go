package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device:
  join_eui: "0000000000000001"
  dev_eui: "70b3d57ed0001234"
  app_key: "000102030405060708090a0b0c0d0e0f"
  nwk_key: "101112131415161718191a1b1c1d1e1f"
  sub_band: 2
  multi_sub_band: true
  class: "C"
uplink:
  interval: 30s
  port: 15
  confirmed: true
nats:
  url: "nats://nats.example:4222"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.SubBand != 2 || !cfg.Device.MultiSubBand {
		t.Errorf("device section not loaded: %+v", cfg.Device)
	}
	if cfg.Uplink.Interval != 30*time.Second || cfg.Uplink.Port != 15 || !cfg.Uplink.Confirmed {
		t.Errorf("uplink section not loaded: %+v", cfg.Uplink)
	}
	if cfg.NATS.URL != "nats://nats.example:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "device: {}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.Class != "A" {
		t.Errorf("default class = %q", cfg.Device.Class)
	}
	if cfg.Uplink.Interval != 60*time.Second {
		t.Errorf("default uplink interval = %v", cfg.Uplink.Interval)
	}
	if cfg.Uplink.Port != 10 {
		t.Errorf("default uplink port = %d", cfg.Uplink.Port)
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("default nats url = %q", cfg.NATS.URL)
	}
	if cfg.NATS.SubjectPrefix != "device" {
		t.Errorf("default subject prefix = %q", cfg.NATS.SubjectPrefix)
	}
	if cfg.MQTT.TopicTemplate != "lorabridge/{dev_eui}/{event}" {
		t.Errorf("default topic template = %q", cfg.MQTT.TopicTemplate)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q", cfg.Log.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://override:4222")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEVICE_APP_KEY", "ffeeddccbbaa99887766554433221100")

	cfg, err := Load(writeConfig(t, `
nats:
  url: "nats://from-file:4222"
log:
  level: warn
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NATS.URL != "nats://override:4222" {
		t.Errorf("env override lost: %q", cfg.NATS.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env override lost: %q", cfg.Log.Level)
	}
	if cfg.Device.AppKey != "ffeeddccbbaa99887766554433221100" {
		t.Errorf("env override lost: %q", cfg.Device.AppKey)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad class", "device:\n  class: X\n", "device.class"},
		{"bad sub band", "device:\n  sub_band: 9\n", "device.sub_band"},
		{"bad periodicity", "device:\n  ping_slot_periodicity: 8\n", "ping_slot_periodicity"},
		{"bad app key", "device:\n  app_key: nope\n", "device.app_key"},
		{"bad dev eui", "device:\n  dev_eui: zz\n", "device.dev_eui"},
		{"bad drop rate", "simulator:\n  drop_rate: 1.5\n", "drop_rate"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n", "mqtt.broker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDeviceClassHelper(t *testing.T) {
	d := DeviceConfig{Class: "b"}
	if got := d.DeviceClass(); got.String() != "B" {
		t.Errorf("DeviceClass() = %s", got)
	}
}
