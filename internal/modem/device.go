// Package modem exposes Arris and Motorola cable modems through one Device
// interface backed by vendor HNAP command catalogs.
package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/hnap"
)

// ErrNotSupported is returned when a device cannot provide an operation.
var ErrNotSupported = errors.New("operation not supported by device")

// ErrUnknownVendor is returned by New for a vendor without a catalog.
var ErrUnknownVendor = errors.New("unknown modem vendor")

// Vendor names a device family.
type Vendor string

// Supported vendors.
const (
	VendorArris    Vendor = "arris"
	VendorMotorola Vendor = "motorola"
)

// Device is the uniform capability set of a cable modem. A Device owns one
// HNAP session and must be driven by a single goroutine.
type Device interface {
	ID() string
	Vendor() Vendor
	Host() string

	Login(ctx context.Context) error
	Logout()
	InvalidateSession()

	// Commands returns the vendor command catalog, including mutating
	// commands.
	Commands() []hnap.Command
	DoCommand(ctx context.Context, cmd hnap.Command, args hnap.Args) (hnap.Response, error)
	Capabilities(ctx context.Context) (string, error)

	DeviceInfo(ctx context.Context) (*DeviceInfo, error)
	ConnectionSummary(ctx context.Context) (*ConnectionSummary, error)
	ConnectionDetails(ctx context.Context) (*ConnectionDetails, error)
	Events(ctx context.Context) ([]EventLogEntry, error)

	// Reboot restarts the modem and always invalidates the session.
	Reboot(ctx context.Context) error
	// Ping is a liveness probe: it either succeeds or returns an error.
	Ping(ctx context.Context) error

	// EventPriority maps a client severity to the vendor's log priority.
	EventPriority(sev Severity) string
}

// Config identifies and addresses one device.
type Config struct {
	ID       string
	Vendor   Vendor
	Scheme   string
	Host     string
	Username string
	Password string
	// Location is the zone modem log timestamps are read in. Defaults to
	// time.Local.
	Location *time.Location
}

// New creates the Device for cfg.Vendor. The session is created here but
// no request is made until the first operation.
func New(cfg Config, client *hnap.Client, sessionOpts []hnap.SessionOption, logger *zap.Logger) (Device, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	c := conn{
		id:      cfg.ID,
		vendor:  cfg.Vendor,
		session: hnap.NewSession(cfg.Scheme, cfg.Host, cfg.Username, cfg.Password, sessionOpts...),
		client:  client,
		loc:     cfg.Location,
		logger:  logger.With(zap.String("device", cfg.ID), zap.String("vendor", string(cfg.Vendor))),
	}

	switch cfg.Vendor {
	case VendorArris:
		return &Arris{conn: c}, nil
	case VendorMotorola:
		return &Motorola{conn: c}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, cfg.Vendor)
	}
}

var (
	_ Device = (*Arris)(nil)
	_ Device = (*Motorola)(nil)
)

// conn carries what every vendor shares: identity and the HNAP session.
type conn struct {
	id      string
	vendor  Vendor
	session *hnap.Session
	client  *hnap.Client
	loc     *time.Location
	logger  *zap.Logger
}

func (c *conn) ID() string     { return c.id }
func (c *conn) Vendor() Vendor { return c.vendor }
func (c *conn) Host() string   { return c.session.Host() }

func (c *conn) String() string {
	return fmt.Sprintf("%s(%s@%s)", c.vendor, c.id, c.session.Host())
}

// Login forces a fresh login sequence.
func (c *conn) Login(ctx context.Context) error {
	return c.client.Login(ctx, c.session)
}

// Logout drops the session. HNAP has no logout operation; the modem
// forgets the session after its inactivity window.
func (c *conn) Logout() {
	c.session.Invalidate()
	c.logger.Info("logged out")
}

func (c *conn) InvalidateSession() {
	c.session.Invalidate()
	c.logger.Debug("session invalidated")
}

func (c *conn) DoCommand(ctx context.Context, cmd hnap.Command, args hnap.Args) (hnap.Response, error) {
	return c.client.Execute(ctx, c.session, cmd, args)
}

func (c *conn) Capabilities(ctx context.Context) (string, error) {
	return c.client.Capabilities(ctx, c.session)
}

func (c *conn) Ping(ctx context.Context) error {
	if _, err := c.DoCommand(ctx, hnap.NewCommand("GetHomeConnection"), nil); err != nil {
		return fmt.Errorf("ping %s: %w", c, err)
	}
	return nil
}

// reboot issues the vendor reboot command. The session is invalidated even
// when the command fails, since the modem may already be going down.
func (c *conn) reboot(ctx context.Context, cmd hnap.Command) error {
	c.logger.Warn("rebooting", zap.String("operation", cmd.Operation))
	defer c.session.Invalidate()
	if _, err := c.DoCommand(ctx, cmd, nil); err != nil {
		return fmt.Errorf("reboot %s: %w", c, err)
	}
	return nil
}

// summary maps the home page batch shared by both vendors.
func (c *conn) summary(ctx context.Context, softwareOp string) (*ConnectionSummary, error) {
	resp, err := c.DoCommand(ctx, hnap.Batch(
		hnap.NewCommand("GetHomeAddress"),
		hnap.NewCommand("GetHomeConnection"),
		hnap.NewCommand(softwareOp),
	), nil)
	if err != nil {
		return nil, fmt.Errorf("connection summary: %w", err)
	}

	addr := resp.Section("GetHomeAddressResponse")
	sw := resp.Section(softwareOp + "Response")
	home := resp.Section("GetHomeConnectionResponse")
	return &ConnectionSummary{
		IPAddress:              addr.String("MotoHomeIpAddress"),
		MACAddress:             addr.String("MotoHomeMacAddress"),
		HWVersion:              sw.String("StatusSoftwareHdVer"),
		SWCertStatus:           sw.String("StatusSoftwareCertificate"),
		SWCustomerVersion:      sw.String("StatusSoftwareCustomerVer"),
		SWSerial:               sw.String("StatusSoftwareSerialNum"),
		SWSpecVersion:          sw.String("StatusSoftwareSpecVer"),
		SWVersion:              sw.String("StatusSoftwareSfVer"),
		DownstreamChannelCount: home.Int("MotoHomeDownNum", 0),
		UpstreamChannelCount:   home.Int("MotoHomeUpNum", 0),
	}, nil
}

// detailOps names the four status operations behind the details page and
// the field prefix the vendor uses in their responses.
type detailOps struct {
	prefix     string
	startup    string
	connection string
	downstream string
	upstream   string
}

func (c *conn) details(ctx context.Context, ops detailOps) (*ConnectionDetails, error) {
	resp, err := c.DoCommand(ctx, hnap.Batch(
		hnap.NewCommand(ops.startup),
		hnap.NewCommand(ops.connection),
		hnap.NewCommand(ops.downstream),
		hnap.NewCommand(ops.upstream),
	), nil)
	if err != nil {
		return nil, fmt.Errorf("connection details: %w", err)
	}

	p := ops.prefix
	connInfo := resp.Section(ops.connection + "Response")
	seq := resp.Section(ops.startup + "Response")

	details := &ConnectionDetails{
		NetworkAccess: connInfo.String(p + "ConnNetworkAccess"),
		Uptime:        connInfo.String(p + "ConnSystemUpTime"),
		StartupSteps: StartupSteps{
			Downstream: StartupStep{Status: seq.String(p + "ConnDSFreq"), Comment: seq.String(p + "ConnDSComment")},
			Upstream:   StartupStep{Status: seq.String(p + "ConnConnectivityStatus"), Comment: seq.String(p + "ConnConnectivityComment")},
			Boot:       StartupStep{Status: seq.String(p + "ConnBootStatus"), Comment: seq.String(p + "ConnBootComment")},
			ConfigFile: StartupStep{Status: seq.String(p + "ConnConfigurationFileStatus"), Comment: seq.String(p + "ConnConfigurationFileComment")},
			Security:   StartupStep{Status: seq.String(p + "ConnSecurityStatus"), Comment: seq.String(p + "ConnSecurityComment")},
		},
	}

	details.DownstreamChannels, err = parseDownstreamChannels(
		resp.Section(ops.downstream + "Response").String(p + "ConnDownstreamChannel"))
	if err != nil {
		return nil, fmt.Errorf("connection details: %w", err)
	}
	details.UpstreamChannels, err = parseUpstreamChannels(
		resp.Section(ops.upstream + "Response").String(p + "ConnUpstreamChannel"))
	if err != nil {
		return nil, fmt.Errorf("connection details: %w", err)
	}

	c.logger.Debug("parsed channels",
		zap.Int("downstream", len(details.DownstreamChannels)),
		zap.Int("upstream", len(details.UpstreamChannels)),
	)
	return details, nil
}

func (c *conn) events(ctx context.Context, op, field string, layout eventLayout) ([]EventLogEntry, error) {
	resp, err := c.DoCommand(ctx, hnap.NewCommand(op), nil)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	events, err := parseEvents(resp.String(field), layout, c.loc)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	c.logger.Debug("parsed events", zap.Int("count", len(events)))
	return events, nil
}

func priorityFor(table map[Severity]string, sev Severity) string {
	if p, ok := table[sev]; ok {
		return p
	}
	return fmt.Sprintf("UNKNOWN %d", int(sev))
}

// Stat names a telemetry kind collected by the monitor.
type Stat string

// Stat kinds.
const (
	StatSummary Stat = "summary"
	StatEvents  Stat = "events"
	StatDetails Stat = "details"
)

// Stats lists every stat kind in collection order.
var Stats = []Stat{StatSummary, StatEvents, StatDetails}

// Collect fetches one stat kind from d.
func Collect(ctx context.Context, d Device, stat Stat) (any, error) {
	switch stat {
	case StatSummary:
		return d.ConnectionSummary(ctx)
	case StatEvents:
		return d.Events(ctx)
	case StatDetails:
		return d.ConnectionDetails(ctx)
	default:
		return nil, fmt.Errorf("stat %q: %w", stat, ErrNotSupported)
	}
}
