// Package reach probes whether a modem answers ICMP echo, to tell a dead
// web server apart from a dead device.
package reach

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// Config holds the probe settings.
type Config struct {
	Count   int           `mapstructure:"count"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the default probe settings.
func DefaultConfig() Config {
	return Config{Count: 3, Timeout: 3 * time.Second}
}

// Result is the outcome of one probe.
type Result struct {
	Host  string        `json:"host"`
	Alive bool          `json:"alive"`
	Sent  int           `json:"sent"`
	Recv  int           `json:"recv"`
	RTT   time.Duration `json:"rtt"`
}

// Describe renders r for a client event.
func (r Result) Describe() string {
	if !r.Alive {
		return fmt.Sprintf("host %s unreachable (0/%d echo replies)", r.Host, r.Sent)
	}
	return fmt.Sprintf("host %s reachable (%d/%d echo replies, avg rtt %s)",
		r.Host, r.Recv, r.Sent, r.RTT.Round(time.Microsecond))
}

// Prober sends ICMP echo requests with pro-bing.
type Prober struct {
	count   int
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber creates a prober.
func NewProber(cfg Config, logger *zap.Logger) *Prober {
	if cfg.Count < 1 {
		cfg.Count = DefaultConfig().Count
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Prober{count: cfg.Count, timeout: cfg.Timeout, logger: logger}
}

// Probe pings host, which may carry a port. An error means no probe could be
// sent; an unreachable host is reported through Result.Alive.
func (p *Prober) Probe(ctx context.Context, host string) (Result, error) {
	host = hostOnly(host)
	res := Result{Host: host}

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return res, fmt.Errorf("probe %s: %w", host, err)
	}
	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case err := <-done:
		if err != nil {
			return res, fmt.Errorf("probe %s: %w", host, err)
		}
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return res, ctx.Err()
	}

	stats := pinger.Statistics()
	res.Sent = stats.PacketsSent
	res.Recv = stats.PacketsRecv
	res.Alive = stats.PacketsRecv > 0
	res.RTT = stats.AvgRtt

	p.logger.Debug("probe complete",
		zap.String("host", host),
		zap.Bool("alive", res.Alive),
		zap.Duration("rtt", res.RTT),
	)
	return res, nil
}

// hostOnly strips an optional port from host.
func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
