package mqtt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DiscoveryConfig holds a single HA MQTT discovery payload.
type DiscoveryConfig struct {
	Topic   string
	Payload []byte
}

// HADevice is the "device" block in HA discovery payloads.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// BinarySensorConfig is the HA discovery payload for binary_sensor.
type BinarySensorConfig struct {
	Name        string   `json:"name"`
	ObjectID    string   `json:"object_id"`
	UniqueID    string   `json:"unique_id"`
	StateTopic  string   `json:"state_topic"`
	DeviceClass string   `json:"device_class,omitempty"`
	PayloadOn   string   `json:"payload_on"`
	PayloadOff  string   `json:"payload_off"`
	Device      HADevice `json:"device"`
}

// SensorConfig is the HA discovery payload for sensor.
type SensorConfig struct {
	Name        string   `json:"name"`
	ObjectID    string   `json:"object_id"`
	UniqueID    string   `json:"unique_id"`
	StateTopic  string   `json:"state_topic"`
	DeviceClass string   `json:"device_class,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Device      HADevice `json:"device"`
}

// SafeObjectID lowercases s and replaces anything but letters, digits and
// underscores with underscores, for use as an HA object_id.
func SafeObjectID(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// StateTopic returns the topic a modem state value is published on.
func StateTopic(topicPrefix, deviceID, name string) string {
	return topicPrefix + "/" + deviceID + "/" + name
}

// BuildModemDiscoveryConfigs returns the HA entities for one monitored
// modem: an online binary_sensor driven by ping results, a stats
// binary_sensor driven by telemetry polls and sensors for the last reboot
// and the last client event.
func BuildModemDiscoveryConfigs(deviceID, vendor, topicPrefix, haPrefix string) []DiscoveryConfig {
	safeID := SafeObjectID(deviceID)
	dev := HADevice{
		Identifiers:  []string{"modemwatch_" + safeID},
		Name:         deviceID + " modem",
		Manufacturer: vendor,
	}
	objectID := func(entity string) string { return "modemwatch_" + safeID + "_" + entity }

	entities := []struct {
		component string
		entity    string
		cfg       any
	}{
		{"binary_sensor", "online", BinarySensorConfig{
			Name:        dev.Name + " Online",
			ObjectID:    objectID("online"),
			UniqueID:    objectID("online"),
			StateTopic:  StateTopic(topicPrefix, deviceID, "online"),
			DeviceClass: "connectivity",
			PayloadOn:   "ON",
			PayloadOff:  "OFF",
			Device:      dev,
		}},
		{"binary_sensor", "stats", BinarySensorConfig{
			Name:        dev.Name + " Stats",
			ObjectID:    objectID("stats"),
			UniqueID:    objectID("stats"),
			StateTopic:  StateTopic(topicPrefix, deviceID, "stats"),
			DeviceClass: "problem",
			PayloadOn:   "OFF",
			PayloadOff:  "ON",
			Device:      dev,
		}},
		{"sensor", "last_reboot", SensorConfig{
			Name:        dev.Name + " Last Reboot",
			ObjectID:    objectID("last_reboot"),
			UniqueID:    objectID("last_reboot"),
			StateTopic:  StateTopic(topicPrefix, deviceID, "last_reboot"),
			DeviceClass: "timestamp",
			Icon:        "mdi:restart",
			Device:      dev,
		}},
		{"sensor", "last_event", SensorConfig{
			Name:       dev.Name + " Last Event",
			ObjectID:   objectID("last_event"),
			UniqueID:   objectID("last_event"),
			StateTopic: StateTopic(topicPrefix, deviceID, "last_event"),
			Icon:       "mdi:message-alert",
			Device:     dev,
		}},
	}

	configs := make([]DiscoveryConfig, 0, len(entities))
	for _, e := range entities {
		payload, err := json.Marshal(e.cfg)
		if err != nil {
			continue
		}
		configs = append(configs, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/%s/modemwatch_%s/%s/config", haPrefix, e.component, safeID, e.entity),
			Payload: payload,
		})
	}
	return configs
}
