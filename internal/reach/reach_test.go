package reach

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHostOnly(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"192.168.100.1", "192.168.100.1"},
		{"192.168.100.1:443", "192.168.100.1"},
		{"modem.lan:8443", "modem.lan"},
		{"[fe80::1]:443", "fe80::1"},
		{"fe80::1", "fe80::1"},
	}
	for _, tt := range tests {
		if got := hostOnly(tt.in); got != tt.want {
			t.Errorf("hostOnly(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResult_Describe(t *testing.T) {
	up := Result{Host: "192.168.100.1", Alive: true, Sent: 3, Recv: 2, RTT: 1500 * time.Microsecond}
	if got := up.Describe(); !strings.Contains(got, "reachable (2/3") || !strings.Contains(got, "1.5ms") {
		t.Errorf("Describe() = %q", got)
	}

	down := Result{Host: "192.168.100.1", Sent: 3}
	if got := down.Describe(); !strings.Contains(got, "unreachable (0/3") {
		t.Errorf("Describe() = %q", got)
	}
}

func TestNewProber_Defaults(t *testing.T) {
	p := NewProber(Config{}, zap.NewNop())
	if p.count != 3 || p.timeout != 3*time.Second {
		t.Errorf("prober = count %d timeout %v, want defaults", p.count, p.timeout)
	}
}
