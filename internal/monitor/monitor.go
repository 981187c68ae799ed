// Package monitor drives one modem: periodic liveness pings, periodic
// telemetry polls and reboots, both at fixed times of day and when the job
// history shows the modem repeatedly failing between healthy runs.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/event"
	"github.com/HerbHall/modemwatch/internal/modem"
	"github.com/HerbHall/modemwatch/internal/reach"
)

// Bus topics.
const (
	TopicJob         = "monitor.job"
	TopicClientEvent = "monitor.client_event"
)

// JobEvent is the payload of TopicJob.
type JobEvent struct {
	Device  string        `json:"device"`
	Summary JobRunSummary `json:"summary"`
}

// ClientEvent is the payload of TopicClientEvent.
type ClientEvent struct {
	Device   string              `json:"device"`
	Severity string              `json:"severity"`
	Entry    modem.EventLogEntry `json:"entry"`
}

// Store persists telemetry and client events.
type Store interface {
	Prepare(deviceID string, stats []string, note string) error
	Store(deviceID, stat string, polledAt time.Time, result any, resultErr error) (string, error)
	AppendEvents(deviceID string, entries ...any) error
}

// Prober checks whether a host answers at the network level.
type Prober interface {
	Probe(ctx context.Context, host string) (reach.Result, error)
}

// Publisher receives monitor events.
type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

// Config holds the monitor settings.
type Config struct {
	CheckInterval  time.Duration `mapstructure:"check_interval"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	RebootTimes    []string      `mapstructure:"reboot_times"`
	RebootWait     time.Duration `mapstructure:"reboot_wait"`
	Tick           time.Duration `mapstructure:"tick"`
	Stats          []string      `mapstructure:"stats"`
	ProbeOnFailure bool          `mapstructure:"probe_on_failure"`
	MaxHistory     int           `mapstructure:"max_history"`
}

// DefaultConfig returns the default monitor settings.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  30 * time.Second,
		StatsInterval:  5 * time.Minute,
		RebootTimes:    []string{"04:00"},
		RebootWait:     60 * time.Second,
		Tick:           5 * time.Second,
		Stats:          []string{string(modem.StatSummary), string(modem.StatEvents), string(modem.StatDetails)},
		ProbeOnFailure: true,
		MaxHistory:     2880,
	}
}

// Validate checks the settings the scheduler depends on.
func (c Config) Validate() error {
	if c.CheckInterval < 30*time.Second || c.CheckInterval > 60*time.Second {
		return fmt.Errorf("check interval %s outside 30s..60s", c.CheckInterval)
	}
	if c.StatsInterval < time.Minute || c.StatsInterval > 5*time.Minute || c.StatsInterval%time.Minute != 0 {
		return fmt.Errorf("stats interval %s must be 1 to 5 whole minutes", c.StatsInterval)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick %s must be positive", c.Tick)
	}
	if c.RebootWait < 0 {
		return fmt.Errorf("reboot wait %s must not be negative", c.RebootWait)
	}
	for _, t := range c.RebootTimes {
		if _, err := ParseDailyAt(t); err != nil {
			return fmt.Errorf("reboot time: %w", err)
		}
	}
	for _, s := range c.Stats {
		if !knownStat(s) {
			return fmt.Errorf("stat %q: %w", s, modem.ErrNotSupported)
		}
	}
	return nil
}

func knownStat(s string) bool {
	for _, k := range modem.Stats {
		if string(k) == s {
			return true
		}
	}
	return false
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithPublisher sends job and client events to p.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) { m.bus = p }
}

// WithProber annotates failed pings with a network-level probe.
func WithProber(p Prober) Option {
	return func(m *Monitor) { m.prober = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor owns a device and its job history. Its jobs must run from one
// goroutine; History and Ready are safe to call concurrently.
type Monitor struct {
	cfg     Config
	device  modem.Device
	store   Store
	bus     Publisher
	prober  Prober
	history *History
	logger  *zap.Logger

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	localIP func() string

	ready atomic.Bool
}

// New creates a monitor for device.
func New(cfg Config, device modem.Device, store Store, logger *zap.Logger, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("monitor config: %w", err)
	}
	m := &Monitor{
		cfg:     cfg,
		device:  device,
		store:   store,
		history: NewHistory(cfg.MaxHistory),
		logger:  logger.With(zap.String("device", device.ID())),
		now:     time.Now,
		sleep:   sleepCtx,
		localIP: localIP,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DeviceID returns the monitored device id.
func (m *Monitor) DeviceID() string { return m.device.ID() }

// History returns a snapshot of the job run history.
func (m *Monitor) History() []JobRunSummary { return m.history.Snapshot() }

// Ready reports whether Setup has completed.
func (m *Monitor) Ready() bool { return m.ready.Load() }

// Setup prepares the stat directories, logs in and reads the device
// identity. Only a storage failure is fatal: a modem that is down at
// startup is handled by the ping job like any other outage.
func (m *Monitor) Setup(ctx context.Context, note string) error {
	if err := m.store.Prepare(m.device.ID(), m.cfg.Stats, note); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	if err := m.device.Login(ctx); err != nil {
		m.logger.Warn("initial login failed", zap.Error(err))
	} else if info, err := m.device.DeviceInfo(ctx); err != nil {
		if !errors.Is(err, modem.ErrNotSupported) {
			m.logger.Warn("device info unavailable", zap.Error(err))
		}
	} else {
		m.logger.Info("device identified",
			zap.String("model", info.Model),
			zap.String("serial_number", info.SerialNumber),
			zap.String("mac_address", info.MACAddress),
			zap.String("firmware_version", info.FirmwareVersion),
		)
	}

	m.ready.Store(true)
	m.logger.Info("setup complete", zap.Strings("stats", m.cfg.Stats))
	return nil
}

// Ping probes the device. A failure invalidates the session so the next
// request logs in again. Either way the history is then checked and a
// reboot is run when it is recommended.
func (m *Monitor) Ping(ctx context.Context) JobRunSummary {
	summary := newSummary(JobPing, m.now())

	if err := m.device.Ping(ctx); err != nil {
		summary.Succeeded = false
		msg := fmt.Sprintf("ping FAILED (%v) for %s", err, m.device.ID())
		if probe := m.probe(ctx); probe != "" {
			msg += "; " + probe
		}
		m.logger.Warn("ping failed", zap.Error(err), zap.String("summary_id", summary.ID.String()))
		m.recordClientEvent(ctx, modem.SeverityWarning, msg)
		m.device.InvalidateSession()
	}

	m.complete(ctx, &summary)
	m.logger.Debug("ping complete", zap.Bool("succeeded", summary.Succeeded))

	if v := Evaluate(m.history.Snapshot()); v.Recommended {
		rebootsRecommended.Inc()
		m.logger.Info("reboot recommended",
			zap.Int("succeeded", v.Succeeded),
			zap.Int("failed", v.Failed),
		)
		m.recordClientEvent(ctx, modem.SeverityInfo,
			fmt.Sprintf("Reboot is recommended since %d failures have occurred", v.Failed))
		m.Reboot(ctx)
	}
	return summary
}

func (m *Monitor) probe(ctx context.Context) string {
	if m.prober == nil || !m.cfg.ProbeOnFailure {
		return ""
	}
	res, err := m.prober.Probe(ctx, m.device.Host())
	if err != nil {
		m.logger.Debug("reachability probe failed", zap.Error(err))
		return ""
	}
	return res.Describe()
}

// GetStats collects each configured stat and stores one record per stat.
// The first failure is stored as an error record and ends the run.
func (m *Monitor) GetStats(ctx context.Context) JobRunSummary {
	summary := newSummary(JobGetStats, m.now())
	polledAt := summary.StartedAt

	for _, stat := range m.cfg.Stats {
		result, err := modem.Collect(ctx, m.device, modem.Stat(stat))
		if err != nil {
			summary.Succeeded = false
			msg := fmt.Sprintf("Get %s stats FAILED (%v) for %s", stat, err, m.device.ID())
			m.logger.Warn("stat collection failed", zap.String("stat", stat), zap.Error(err))
			m.recordClientEvent(ctx, modem.SeverityWarning, msg)
			if _, serr := m.store.Store(m.device.ID(), stat, polledAt, nil, err); serr != nil {
				m.logger.Error("storing error record failed", zap.String("stat", stat), zap.Error(serr))
			}
			break
		}

		path, err := m.store.Store(m.device.ID(), stat, polledAt, result, nil)
		if err != nil {
			summary.Succeeded = false
			m.logger.Error("storing stat failed", zap.String("stat", stat), zap.Error(err))
			break
		}
		m.logger.Debug("stat stored", zap.String("stat", stat), zap.String("path", path))
	}

	m.complete(ctx, &summary)
	if summary.Succeeded {
		m.logger.Info("get stats complete")
	}
	return summary
}

// Reboot restarts the device. After a successful reboot command it waits
// for the device to come back, unless ctx ends first. Every attempt replaces
// the history with its own summary.
func (m *Monitor) Reboot(ctx context.Context) JobRunSummary {
	summary := newSummary(JobReboot, m.now())

	m.logger.Info("reboot", zap.Stringers("history", m.history.Snapshot()))
	m.recordClientEvent(ctx, modem.SeverityCritical, fmt.Sprintf("Rebooting %s", m.device.ID()))

	if err := m.device.Reboot(ctx); err != nil {
		summary.Succeeded = false
		m.logger.Error("reboot failed", zap.Error(err))
	} else {
		m.logger.Info("waiting for device", zap.Duration("wait", m.cfg.RebootWait))
		if err := m.sleep(ctx, m.cfg.RebootWait); err != nil {
			m.logger.Info("reboot wait interrupted", zap.Error(err))
		}
	}

	summary.CompletedAt = m.now()
	m.history.Reset(summary)
	m.observe(ctx, summary, summary.CompletedAt.Sub(summary.StartedAt))
	m.logger.Info("reboot complete", zap.Bool("succeeded", summary.Succeeded))
	return summary
}

// complete stamps summary, appends it to the history and reports it.
func (m *Monitor) complete(ctx context.Context, summary *JobRunSummary) {
	summary.CompletedAt = m.now()
	m.history.Append(*summary)
	m.observe(ctx, *summary, summary.CompletedAt.Sub(summary.StartedAt))
}

func (m *Monitor) observe(ctx context.Context, summary JobRunSummary, took time.Duration) {
	jobRunsTotal.WithLabelValues(string(summary.Name), outcome(summary.Succeeded)).Inc()
	jobDuration.WithLabelValues(string(summary.Name)).Observe(took.Seconds())
	historyLength.Set(float64(m.history.Len()))

	if m.bus != nil {
		m.bus.Publish(ctx, event.Event{
			Topic:     TopicJob,
			Device:    m.device.ID(),
			Timestamp: summary.CompletedAt,
			Payload:   JobEvent{Device: m.device.ID(), Summary: summary},
		})
	}
}

// recordClientEvent writes a "(Client <ip>): ..." entry into the device's
// event history using the vendor's priority names.
func (m *Monitor) recordClientEvent(ctx context.Context, sev modem.Severity, desc string) {
	entry := modem.EventLogEntry{
		Timestamp:   m.now(),
		Priority:    m.device.EventPriority(sev),
		Description: fmt.Sprintf("(Client %s): %s", m.localIP(), desc),
	}
	if err := m.store.AppendEvents(m.device.ID(), entry); err != nil {
		m.logger.Error("recording client event failed", zap.Error(err))
	}

	if m.bus != nil {
		m.bus.Publish(ctx, event.Event{
			Topic:     TopicClientEvent,
			Device:    m.device.ID(),
			Timestamp: entry.Timestamp,
			Payload:   ClientEvent{Device: m.device.ID(), Severity: sev.String(), Entry: entry},
		})
	}
}

// Run sets up the schedule and blocks until ctx is done, then logs out.
// Ping and stats run once immediately; reboots wait for their time of day.
func (m *Monitor) Run(ctx context.Context) error {
	sched := NewScheduler(m.cfg.Tick, m.logger.Named("scheduler"))

	jobs := []*Job{
		{Name: string(JobPing), Schedule: Every(m.cfg.CheckInterval), RunAtStart: true,
			Run: func(ctx context.Context) { m.Ping(ctx) }},
		{Name: string(JobGetStats), Schedule: AlignedEvery(m.cfg.StatsInterval), RunAtStart: true,
			Run: func(ctx context.Context) { m.GetStats(ctx) }},
	}
	for _, t := range m.cfg.RebootTimes {
		at, err := ParseDailyAt(t)
		if err != nil {
			return fmt.Errorf("reboot time: %w", err)
		}
		jobs = append(jobs, &Job{Name: string(JobReboot), Schedule: at,
			Run: func(ctx context.Context) { m.Reboot(ctx) }})
	}
	for _, j := range jobs {
		sched.Add(j)
		m.logger.Info("job scheduled",
			zap.String("job", j.Name),
			zap.Stringer("schedule", j.Schedule),
			zap.Time("next_run", j.NextRun()),
			zap.Bool("run_at_start", j.RunAtStart),
		)
	}

	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()

	m.device.Logout()
	m.logger.Info("monitor stopped")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// localIP returns the address this host uses to reach the internet.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "unknown"
}
