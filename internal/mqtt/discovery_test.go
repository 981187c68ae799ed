package mqtt

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSafeObjectID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple id", "arris", "arris"},
		{"dashes", "sb-8200", "sb_8200"},
		{"IP address", "192.168.100.1", "192_168_100_1"},
		{"uppercase", "Arris", "arris"},
		{"leading special chars", "---modem", "modem"},
		{"trailing special chars", "modem---", "modem"},
		{"empty string", "", "unknown"},
		{"only special chars", "---", "unknown"},
		{"underscores preserved", "my_modem_01", "my_modem_01"},
		{"spaces", "living room", "living_room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeObjectID(tt.input); got != tt.want {
				t.Errorf("SafeObjectID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildModemDiscoveryConfigs(t *testing.T) {
	configs := BuildModemDiscoveryConfigs("arris", "arris", "modemwatch", "homeassistant")
	if len(configs) != 4 {
		t.Fatalf("configs = %d, want 4", len(configs))
	}

	wantTopics := []string{
		"homeassistant/binary_sensor/modemwatch_arris/online/config",
		"homeassistant/binary_sensor/modemwatch_arris/stats/config",
		"homeassistant/sensor/modemwatch_arris/last_reboot/config",
		"homeassistant/sensor/modemwatch_arris/last_event/config",
	}
	for i, want := range wantTopics {
		if configs[i].Topic != want {
			t.Errorf("configs[%d].Topic = %q, want %q", i, configs[i].Topic, want)
		}
	}

	var online BinarySensorConfig
	if err := json.Unmarshal(configs[0].Payload, &online); err != nil {
		t.Fatalf("unmarshal online config: %v", err)
	}
	if online.StateTopic != "modemwatch/arris/online" {
		t.Errorf("StateTopic = %q", online.StateTopic)
	}
	if online.DeviceClass != "connectivity" || online.PayloadOn != "ON" || online.PayloadOff != "OFF" {
		t.Errorf("online config = %+v", online)
	}
	if len(online.Device.Identifiers) != 1 || online.Device.Identifiers[0] != "modemwatch_arris" {
		t.Errorf("Device.Identifiers = %v", online.Device.Identifiers)
	}

	var reboot SensorConfig
	if err := json.Unmarshal(configs[2].Payload, &reboot); err != nil {
		t.Fatalf("unmarshal reboot config: %v", err)
	}
	if reboot.DeviceClass != "timestamp" || reboot.StateTopic != "modemwatch/arris/last_reboot" {
		t.Errorf("reboot config = %+v", reboot)
	}
}

func TestBuildModemDiscoveryConfigs_UniqueIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, id := range []string{"arris", "motorola"} {
		for _, c := range BuildModemDiscoveryConfigs(id, id, "modemwatch", "homeassistant") {
			var payload struct {
				UniqueID string `json:"unique_id"`
			}
			if err := json.Unmarshal(c.Payload, &payload); err != nil {
				t.Fatalf("unmarshal %s: %v", c.Topic, err)
			}
			if seen[payload.UniqueID] {
				t.Errorf("duplicate unique_id %q", payload.UniqueID)
			}
			seen[payload.UniqueID] = true
		}
	}
}

func TestBuildModemDiscoveryConfigs_CustomPrefixes(t *testing.T) {
	for _, c := range BuildModemDiscoveryConfigs("Living Room", "motorola", "home/net", "ha") {
		if !strings.HasPrefix(c.Topic, "ha/") || !strings.Contains(c.Topic, "modemwatch_living_room") {
			t.Errorf("Topic = %q", c.Topic)
		}
		if !strings.Contains(string(c.Payload), `"state_topic":"home/net/Living Room/`) {
			t.Errorf("payload = %s", c.Payload)
		}
	}
}
