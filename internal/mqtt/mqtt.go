// Package mqtt forwards monitor job outcomes and client events to an MQTT
// broker, with optional Home Assistant auto-discovery.
package mqtt

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/event"
	"github.com/HerbHall/modemwatch/internal/monitor"
)

// Publisher subscribes to the event bus and publishes to a broker. With no
// broker configured it is a no-op.
type Publisher struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	client pahomqtt.Client

	annMu     sync.Mutex
	announced map[string]string // device id -> vendor

	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// New creates a publisher.
func New(cfg Config, logger *zap.Logger) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultConfig().TopicPrefix
	}
	if cfg.HADiscoveryPrefix == "" {
		cfg.HADiscoveryPrefix = DefaultConfig().HADiscoveryPrefix
	}
	return &Publisher{
		cfg:       cfg,
		logger:    logger,
		announced: make(map[string]string),
		newClient: pahomqtt.NewClient,
	}
}

// Enabled reports whether a broker is configured.
func (p *Publisher) Enabled() bool { return p.cfg.BrokerURL != "" }

// Start connects to the broker. A failed first connection is logged and
// retried in the background by the client. Discovery configs are sent on
// every successful (re)connect.
func (p *Publisher) Start(_ context.Context) error {
	if !p.Enabled() {
		p.logger.Info("mqtt publisher disabled: no broker configured")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(p.cfg.Timeout).
		SetOnConnectHandler(p.onConnect)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password) //nolint:gosec // G101: config field
	}

	client := p.newClient(opts)
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	token := client.Connect()
	switch {
	case !token.WaitTimeout(p.cfg.Timeout):
		p.logger.Warn("mqtt connection timed out; will reconnect in background")
	case token.Error() != nil:
		p.logger.Warn("mqtt connection failed; will reconnect in background", zap.Error(token.Error()))
	}
	return nil
}

// onConnect runs on paho's goroutine after each successful connection.
func (p *Publisher) onConnect(pahomqtt.Client) {
	p.logger.Info("mqtt connected to broker", zap.String("broker_url", p.cfg.BrokerURL))

	p.annMu.Lock()
	ids := make([]string, 0, len(p.announced))
	for id := range p.announced {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	vendors := make([]string, len(ids))
	for i, id := range ids {
		vendors[i] = p.announced[id]
	}
	p.annMu.Unlock()

	for i, id := range ids {
		p.publishDiscovery(id, vendors[i])
	}
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	}
}

// Subscribe registers the publisher's handlers on bus and returns a function
// that removes them.
func (p *Publisher) Subscribe(bus *event.Bus) (unsubscribe func()) {
	unJob := bus.Subscribe(monitor.TopicJob, p.handleJob)
	unClient := bus.Subscribe(monitor.TopicClientEvent, p.handleClientEvent)
	return func() {
		unJob()
		unClient()
	}
}

// Announce publishes the Home Assistant discovery configs for a device when
// discovery is enabled, and remembers the device so the configs are sent
// again after each reconnect.
func (p *Publisher) Announce(deviceID, vendor string) {
	if !p.cfg.HADiscovery {
		return
	}
	p.annMu.Lock()
	p.announced[deviceID] = vendor
	p.annMu.Unlock()

	p.publishDiscovery(deviceID, vendor)
}

func (p *Publisher) publishDiscovery(deviceID, vendor string) {
	if !p.cfg.HADiscovery {
		return
	}
	for _, c := range BuildModemDiscoveryConfigs(deviceID, vendor, p.cfg.TopicPrefix, p.cfg.HADiscoveryPrefix) {
		// Discovery configs are always retained so HA picks them up on restart.
		p.publish(c.Topic, true, c.Payload)
	}
}

func (p *Publisher) handleJob(_ context.Context, e event.Event) {
	je, ok := e.Payload.(monitor.JobEvent)
	if !ok {
		return
	}
	p.publishJSON(StateTopic(p.cfg.TopicPrefix, je.Device, "job"), je)

	s := je.Summary
	switch s.Name {
	case monitor.JobPing:
		p.publish(StateTopic(p.cfg.TopicPrefix, je.Device, "online"), true, onOff(s.Succeeded))
	case monitor.JobGetStats:
		p.publish(StateTopic(p.cfg.TopicPrefix, je.Device, "stats"), true, onOff(s.Succeeded))
	case monitor.JobReboot:
		p.publish(StateTopic(p.cfg.TopicPrefix, je.Device, "last_reboot"), true,
			[]byte(s.CompletedAt.Format(time.RFC3339)))
	}
}

func (p *Publisher) handleClientEvent(_ context.Context, e event.Event) {
	ce, ok := e.Payload.(monitor.ClientEvent)
	if !ok {
		return
	}
	p.publishJSON(StateTopic(p.cfg.TopicPrefix, ce.Device, "event"), ce)
	p.publish(StateTopic(p.cfg.TopicPrefix, ce.Device, "last_event"), true, []byte(ce.Entry.Description))
}

func (p *Publisher) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("failed to marshal MQTT payload", zap.String("mqtt_topic", topic), zap.Error(err))
		return
	}
	p.publish(topic, p.cfg.Retain, payload)
}

func (p *Publisher) publish(topic string, retain bool, payload []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.client == nil || !p.client.IsConnected() {
		return
	}

	token := p.client.Publish(topic, p.cfg.QoS, retain, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		p.logger.Warn("mqtt publish timed out", zap.String("mqtt_topic", topic))
		return
	}
	if token.Error() != nil {
		p.logger.Warn("mqtt publish failed", zap.String("mqtt_topic", topic), zap.Error(token.Error()))
		return
	}
	p.logger.Debug("mqtt published", zap.String("mqtt_topic", topic))
}

func onOff(b bool) []byte {
	if b {
		return []byte("ON")
	}
	return []byte("OFF")
}
