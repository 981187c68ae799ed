package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HerbHall/modemwatch/internal/modem"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modemwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if cfg.Monitor.CheckInterval != 30*time.Second || cfg.Monitor.StatsInterval != 5*time.Minute {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}
	if len(cfg.Monitor.RebootTimes) != 1 || cfg.Monitor.RebootTimes[0] != "04:00" {
		t.Errorf("reboot times = %v", cfg.Monitor.RebootTimes)
	}
	if cfg.HNAP.MaxInactive != 600*time.Second {
		t.Errorf("max inactive = %v", cfg.HNAP.MaxInactive)
	}
	if cfg.Sink.Root != "devices" {
		t.Errorf("sink root = %q", cfg.Sink.Root)
	}
	if cfg.Server.Enabled() {
		t.Error("server enabled by default")
	}
	if ids := cfg.DeviceIDs(); len(ids) != 2 || ids[0] != "arris" || ids[1] != "motorola" {
		t.Errorf("DeviceIDs = %v", ids)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
monitor:
  check_interval: 45s
  reboot_times: ["03:30", "15:30"]
devices:
  arris:
    username: admin
    password: from-file
    supported_actions: [summary, events]
  basement:
    vendor: motorola
    scheme: http
    host: 10.0.0.1
    username: admin
    password: secret
    timezone: America/New_York
`)
	t.Setenv("MW_DEVICES_ARRIS_PASSWORD", "from-env")
	t.Setenv("MW_LOGGING_LEVEL", "debug")

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if cfg.Monitor.CheckInterval != 45*time.Second {
		t.Errorf("check interval = %v", cfg.Monitor.CheckInterval)
	}
	if len(cfg.Monitor.RebootTimes) != 2 {
		t.Errorf("reboot times = %v", cfg.Monitor.RebootTimes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want env override", cfg.Logging.Level)
	}

	arris, err := cfg.Device("arris")
	if err != nil {
		t.Fatalf("Device(arris): %v", err)
	}
	if arris.Password != "from-env" {
		t.Errorf("password = %q, want env override", arris.Password)
	}
	if arris.Host != "192.168.100.1" || arris.Scheme != "https" {
		t.Errorf("arris = %+v, want default address", arris)
	}

	basement, err := cfg.Device("basement")
	if err != nil {
		t.Fatalf("Device(basement): %v", err)
	}
	mc, err := basement.Modem("basement")
	if err != nil {
		t.Fatalf("Modem: %v", err)
	}
	if mc.Vendor != modem.VendorMotorola || mc.Scheme != "http" || mc.Location.String() != "America/New_York" {
		t.Errorf("modem config = %+v", mc)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "monitor: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestConfig_DeviceErrors(t *testing.T) {
	cfg := &Config{Devices: map[string]DeviceConfig{
		"arris":    {Vendor: "arris", Host: "192.168.100.1", Username: "admin"},
		"nohost":   {Vendor: "arris", Username: "admin", Password: "x"},
		"motorola": {Host: "192.168.100.1", Username: "admin", Password: "x"},
	}}

	if _, err := cfg.Device("netgear"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Device(netgear) = %v, want ErrUnknownDevice", err)
	}
	if _, err := cfg.Device("arris"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Device(arris) = %v, want ErrMissingCredentials", err)
	}
	if _, err := cfg.Device("nohost"); err == nil {
		t.Error("Device(nohost) succeeded without a host")
	}
	d, err := cfg.Device("motorola")
	if err != nil {
		t.Fatalf("Device(motorola): %v", err)
	}
	if d.Vendor != "motorola" {
		t.Errorf("vendor = %q, want id as default vendor", d.Vendor)
	}
}

func TestDeviceConfig_Modem_BadTimezone(t *testing.T) {
	d := DeviceConfig{Vendor: "arris", Host: "h", Timezone: "Mars/Olympus_Mons"}
	if _, err := d.Modem("arris"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestDeviceConfig_Stats(t *testing.T) {
	d := DeviceConfig{SupportedActions: []string{"details", "summary"}}
	got := d.Stats([]string{"summary", "events", "details"})
	if len(got) != 2 || got[0] != "summary" || got[1] != "details" {
		t.Errorf("Stats = %v, want [summary details]", got)
	}
}
