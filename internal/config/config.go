// Package config loads modemwatch settings from defaults, an optional config
// file and MW_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/modemwatch/internal/hnap"
	"github.com/HerbHall/modemwatch/internal/modem"
	"github.com/HerbHall/modemwatch/internal/monitor"
	"github.com/HerbHall/modemwatch/internal/mqtt"
	"github.com/HerbHall/modemwatch/internal/reach"
	"github.com/HerbHall/modemwatch/internal/server"
	"github.com/HerbHall/modemwatch/internal/sink"
)

// EnvPrefix prefixes every environment override: MW_DEVICES_ARRIS_PASSWORD.
const EnvPrefix = "MW"

var (
	ErrUnknownDevice      = errors.New("unknown device")
	ErrMissingCredentials = errors.New("missing credentials")
)

// LoggingConfig selects the log level, encoding and destination.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DeviceConfig is one row of the device table.
type DeviceConfig struct {
	Vendor           string   `mapstructure:"vendor"`
	Scheme           string   `mapstructure:"scheme"`
	Host             string   `mapstructure:"host"`
	Username         string   `mapstructure:"username"`
	Password         string   `mapstructure:"password"` //nolint:gosec // G101: config field name, not a credential
	Timezone         string   `mapstructure:"timezone"`
	SupportedActions []string `mapstructure:"supported_actions"`
}

// Config is the full settings tree.
type Config struct {
	Logging LoggingConfig           `mapstructure:"logging"`
	HNAP    hnap.Config             `mapstructure:"hnap"`
	Monitor monitor.Config          `mapstructure:"monitor"`
	Sink    sink.Config             `mapstructure:"sink"`
	Reach   reach.Config            `mapstructure:"reach"`
	Server  server.Config           `mapstructure:"server"`
	MQTT    mqtt.Config             `mapstructure:"mqtt"`
	Devices map[string]DeviceConfig `mapstructure:"devices"`
}

// Load reads configuration from file and environment variables. An empty
// configPath searches for modemwatch.yaml in the usual places; a missing
// file is not an error.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("modemwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/modemwatch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	h := hnap.DefaultConfig()
	v.SetDefault("hnap.connect_timeout", h.ConnectTimeout)
	v.SetDefault("hnap.read_timeout", h.ReadTimeout)
	v.SetDefault("hnap.max_inactive", h.MaxInactive)
	v.SetDefault("hnap.rate_limit", h.RateLimit)
	v.SetDefault("hnap.rate_burst", h.RateBurst)

	m := monitor.DefaultConfig()
	v.SetDefault("monitor.check_interval", m.CheckInterval)
	v.SetDefault("monitor.stats_interval", m.StatsInterval)
	v.SetDefault("monitor.reboot_times", m.RebootTimes)
	v.SetDefault("monitor.reboot_wait", m.RebootWait)
	v.SetDefault("monitor.tick", m.Tick)
	v.SetDefault("monitor.stats", m.Stats)
	v.SetDefault("monitor.probe_on_failure", m.ProbeOnFailure)
	v.SetDefault("monitor.max_history", m.MaxHistory)

	v.SetDefault("sink.root", sink.DefaultConfig().Root)

	r := reach.DefaultConfig()
	v.SetDefault("reach.count", r.Count)
	v.SetDefault("reach.timeout", r.Timeout)

	s := server.DefaultConfig()
	v.SetDefault("server.addr", s.Addr)
	v.SetDefault("server.rate_limit", s.RateLimit)
	v.SetDefault("server.rate_burst", s.RateBurst)

	q := mqtt.DefaultConfig()
	v.SetDefault("mqtt.broker_url", q.BrokerURL)
	v.SetDefault("mqtt.username", q.Username)
	v.SetDefault("mqtt.password", q.Password)
	v.SetDefault("mqtt.client_id", q.ClientID)
	v.SetDefault("mqtt.topic_prefix", q.TopicPrefix)
	v.SetDefault("mqtt.qos", q.QoS)
	v.SetDefault("mqtt.retain", q.Retain)
	v.SetDefault("mqtt.timeout", q.Timeout)
	v.SetDefault("mqtt.ha_discovery", q.HADiscovery)
	v.SetDefault("mqtt.ha_discovery_prefix", q.HADiscoveryPrefix)

	// Both supported modems answer on the cable-modem management address.
	// Setting every leaf lets MW_DEVICES_<ID>_PASSWORD override it.
	for _, vendor := range []modem.Vendor{modem.VendorArris, modem.VendorMotorola} {
		prefix := "devices." + string(vendor) + "."
		v.SetDefault(prefix+"vendor", string(vendor))
		v.SetDefault(prefix+"scheme", "https")
		v.SetDefault(prefix+"host", "192.168.100.1")
		v.SetDefault(prefix+"username", "admin")
		v.SetDefault(prefix+"password", "")
		v.SetDefault(prefix+"timezone", "")
		v.SetDefault(prefix+"supported_actions", m.Stats)
	}
}

// Decode unmarshals the whole settings tree.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// DeviceIDs returns the configured device ids, sorted.
func (c *Config) DeviceIDs() []string {
	ids := make([]string, 0, len(c.Devices))
	for id := range c.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Device resolves id into a validated device config.
func (c *Config) Device(id string) (DeviceConfig, error) {
	d, ok := c.Devices[id]
	if !ok {
		return DeviceConfig{}, fmt.Errorf("device %q: %w (configured: %s)",
			id, ErrUnknownDevice, strings.Join(c.DeviceIDs(), ", "))
	}
	if d.Host == "" {
		return DeviceConfig{}, fmt.Errorf("device %q: no host configured", id)
	}
	if d.Username == "" || d.Password == "" {
		return DeviceConfig{}, fmt.Errorf("device %q: %w: set devices.%s.username and devices.%s.password (or %s_DEVICES_%s_PASSWORD)",
			id, ErrMissingCredentials, id, id, EnvPrefix, strings.ToUpper(id))
	}
	if d.Vendor == "" {
		d.Vendor = id
	}
	return d, nil
}

// Modem converts d into the modem package's device config.
func (d DeviceConfig) Modem(id string) (modem.Config, error) {
	loc := time.Local
	if d.Timezone != "" {
		l, err := time.LoadLocation(d.Timezone)
		if err != nil {
			return modem.Config{}, fmt.Errorf("device %q timezone: %w", id, err)
		}
		loc = l
	}
	return modem.Config{
		ID:       id,
		Vendor:   modem.Vendor(d.Vendor),
		Scheme:   d.Scheme,
		Host:     d.Host,
		Username: d.Username,
		Password: d.Password,
		Location: loc,
	}, nil
}

// Stats returns the wanted stats the device supports, in wanted order.
func (d DeviceConfig) Stats(wanted []string) []string {
	supported := make(map[string]bool, len(d.SupportedActions))
	for _, a := range d.SupportedActions {
		supported[a] = true
	}
	out := make([]string, 0, len(wanted))
	for _, s := range wanted {
		if supported[s] {
			out = append(out, s)
		}
	}
	return out
}
