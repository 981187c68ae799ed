package modem

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/hnap"
	"github.com/HerbHall/modemwatch/internal/hnap/hnaptest"
)

func newTestDevice(t *testing.T, vendor Vendor) (Device, *hnaptest.Server) {
	t.Helper()
	srv := hnaptest.NewServer(t, "admin", "password")
	cfg := hnap.DefaultConfig()
	cfg.RateLimit = 0
	d, err := New(Config{
		ID:       string(vendor),
		Vendor:   vendor,
		Scheme:   "http",
		Host:     srv.Host(),
		Username: "admin",
		Password: "password",
		Location: time.UTC,
	}, hnap.NewClient(cfg, zap.NewNop()), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, srv
}

func handleHome(srv *hnaptest.Server, softwareOp string) {
	srv.Handle("GetHomeAddress", map[string]any{
		"MotoHomeIpAddress":  "10.0.0.2",
		"MotoHomeMacAddress": "00:11:22:33:44:55",
	})
	srv.Handle("GetHomeConnection", map[string]any{
		"MotoHomeOnline":  "Connected",
		"MotoHomeDownNum": "32",
		"MotoHomeUpNum":   "4",
	})
	srv.Handle(softwareOp, map[string]any{
		"StatusSoftwareHdVer":       "V1.0",
		"StatusSoftwareSfVer":       "8600-19.3.18",
		"StatusSoftwareSerialNum":   "SN123",
		"StatusSoftwareCertificate": "Installed",
		"StatusSoftwareCustomerVer": "Prod_19.3",
		"StatusSoftwareSpecVer":     "DOCSIS 3.1",
	})
}

func TestNew_UnknownVendor(t *testing.T) {
	_, err := New(Config{ID: "x", Vendor: "netgear", Host: "h"}, hnap.NewClient(hnap.DefaultConfig(), zap.NewNop()), nil, zap.NewNop())
	if !errors.Is(err, ErrUnknownVendor) {
		t.Errorf("err = %v, want ErrUnknownVendor", err)
	}
}

func TestDevice_Ping(t *testing.T) {
	d, srv := newTestDevice(t, VendorMotorola)
	handleHome(srv, "GetMotoStatusSoftware")

	if err := d.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	srv.SetResult("GetHomeConnection", "ERROR")
	err := d.Ping(context.Background())
	var perr *hnap.ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("Ping err = %v, want ProtocolError", err)
	}
}

func TestDevice_ConnectionSummary(t *testing.T) {
	for _, tc := range []struct {
		vendor     Vendor
		softwareOp string
	}{
		{VendorArris, "GetCustomerStatusSoftware"},
		{VendorMotorola, "GetMotoStatusSoftware"},
	} {
		t.Run(string(tc.vendor), func(t *testing.T) {
			d, srv := newTestDevice(t, tc.vendor)
			handleHome(srv, tc.softwareOp)

			got, err := d.ConnectionSummary(context.Background())
			if err != nil {
				t.Fatalf("ConnectionSummary: %v", err)
			}
			want := ConnectionSummary{
				IPAddress:              "10.0.0.2",
				MACAddress:             "00:11:22:33:44:55",
				DownstreamChannelCount: 32,
				UpstreamChannelCount:   4,
				HWVersion:              "V1.0",
				SWVersion:              "8600-19.3.18",
				SWSpecVersion:          "DOCSIS 3.1",
				SWSerial:               "SN123",
				SWCertStatus:           "Installed",
				SWCustomerVersion:      "Prod_19.3",
			}
			if *got != want {
				t.Errorf("summary = %+v, want %+v", *got, want)
			}
		})
	}
}

func TestDevice_ConnectionDetails(t *testing.T) {
	d, srv := newTestDevice(t, VendorArris)
	srv.Handle("GetCustomerStatusStartupSequence", map[string]any{
		"CustomerConnDSFreq":                  "495000000",
		"CustomerConnDSComment":               "Locked",
		"CustomerConnConnectivityStatus":      "OK",
		"CustomerConnConnectivityComment":     "Operational",
		"CustomerConnBootStatus":              "OK",
		"CustomerConnConfigurationFileStatus": "OK",
		"CustomerConnSecurityStatus":          "Enabled",
		"CustomerConnSecurityComment":         "BPI+",
	})
	srv.Handle("GetCustomerStatusConnectionInfo", map[string]any{
		"CustomerConnSystemUpTime":  "0 days 01h:02m:03s",
		"CustomerConnNetworkAccess": "Allowed",
	})
	srv.Handle("GetCustomerStatusDownstreamChannelInfo", map[string]any{
		"CustomerConnDownstreamChannel": "1^Locked^QAM256^32^495.0^-7.8^39.9^0^0^|+|2^Locked^QAM256^1^303.0^2.1^41.2^5^1^",
	})
	srv.Handle("GetCustomerStatusUpstreamChannelInfo", map[string]any{
		"CustomerConnUpstreamChannel": "1^Locked^SC-QAM^1^5120^35.5^50.0^",
	})

	got, err := d.ConnectionDetails(context.Background())
	if err != nil {
		t.Fatalf("ConnectionDetails: %v", err)
	}
	if got.Uptime != "0 days 01h:02m:03s" || got.NetworkAccess != "Allowed" {
		t.Errorf("connection info = %q, %q", got.Uptime, got.NetworkAccess)
	}
	if got.StartupSteps.Downstream.Status != "495000000" || got.StartupSteps.Security.Comment != "BPI+" {
		t.Errorf("startup steps = %+v", got.StartupSteps)
	}
	if len(got.DownstreamChannels) != 2 || len(got.UpstreamChannels) != 1 {
		t.Fatalf("channels = %d down, %d up", len(got.DownstreamChannels), len(got.UpstreamChannels))
	}
	if got.DownstreamChannels[1].Corrected != 5 {
		t.Errorf("downstream[1] = %+v", got.DownstreamChannels[1])
	}
}

func TestDevice_ConnectionDetailsMissingSubResponse(t *testing.T) {
	d, srv := newTestDevice(t, VendorMotorola)
	srv.Handle("GetMotoStatusStartupSequence", map[string]any{})
	srv.Handle("GetMotoStatusConnectionInfo", map[string]any{})

	_, err := d.ConnectionDetails(context.Background())
	if !errors.Is(err, hnap.ErrMissingEnvelope) {
		t.Errorf("err = %v, want ErrMissingEnvelope", err)
	}
}

func TestDevice_Events(t *testing.T) {
	d, srv := newTestDevice(t, VendorMotorola)
	srv.Handle("GetMotoStatusLog", map[string]any{
		"MotoStatusLogList": "12:14:11^Tue Aug 16 2022\n^Critical (3)^Started Unicast Maintenance Ranging}-{12:18:05^Tue Aug 16 2022^Notice (6)^Honoring MDD",
	})

	got, err := d.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if want := time.Date(2022, 8, 16, 12, 18, 5, 0, time.UTC); !got[1].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", got[1].Timestamp, want)
	}
}

func TestArris_DeviceInfo(t *testing.T) {
	d, srv := newTestDevice(t, VendorArris)
	srv.Handle("GetArrisRegisterInfo", map[string]any{
		"ModelName":    "SB8200",
		"SerialNumber": "ABC123",
		"MacAddress":   "00:11:22:33:44:55",
	})
	srv.Handle("GetArrisDeviceStatus", map[string]any{
		"FirmwareVersion":     "AB01.02.053",
		"DownstreamFrequency": "495000000 Hz",
	})

	got, err := d.DeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("DeviceInfo: %v", err)
	}
	if got.Model != "SB8200" || got.SerialNumber != "ABC123" || got.FirmwareVersion != "AB01.02.053" {
		t.Errorf("info = %+v", got)
	}
	if s := d.(*Arris).String(); s != "arris(arris@"+srv.Host()+") SB8200" {
		t.Errorf("String() = %q", s)
	}
}

func TestDevice_RebootInvalidatesSession(t *testing.T) {
	tests := []struct {
		vendor    Vendor
		operation string
	}{
		{VendorArris, "SetArrisConfigurationInfo"},
		{VendorMotorola, "SetStatusSecuritySettings"},
	}
	for _, tt := range tests {
		t.Run(string(tt.vendor), func(t *testing.T) {
			d, srv := newTestDevice(t, tt.vendor)
			handleHome(srv, "GetMotoStatusSoftware")
			srv.Handle(tt.operation, map[string]any{})

			if err := d.Reboot(context.Background()); err != nil {
				t.Fatalf("Reboot: %v", err)
			}
			if err := d.Ping(context.Background()); err != nil {
				t.Fatalf("Ping after reboot: %v", err)
			}
			if srv.Logins() != 2 {
				t.Errorf("logins = %d, want 2 (reboot drops the session)", srv.Logins())
			}
		})
	}
}

func TestDevice_RebootFailureStillInvalidates(t *testing.T) {
	d, srv := newTestDevice(t, VendorArris)
	handleHome(srv, "GetCustomerStatusSoftware")
	srv.Handle("SetArrisConfigurationInfo", map[string]any{})
	srv.SetResult("SetArrisConfigurationInfo", "ERROR")

	if err := d.Reboot(context.Background()); err == nil {
		t.Fatal("Reboot succeeded, want error")
	}
	if err := d.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if srv.Logins() != 2 {
		t.Errorf("logins = %d, want 2", srv.Logins())
	}
}

func TestDevice_Commands(t *testing.T) {
	for _, vendor := range []Vendor{VendorArris, VendorMotorola} {
		d, _ := newTestDevice(t, vendor)
		var mutating int
		for _, c := range d.Commands() {
			if !c.ReadOnly {
				mutating++
			}
		}
		if mutating != 1 {
			t.Errorf("%s: %d mutating commands, want 1 (reboot)", vendor, mutating)
		}
	}
}

func TestDevice_EventPriority(t *testing.T) {
	arris, _ := newTestDevice(t, VendorArris)
	moto, _ := newTestDevice(t, VendorMotorola)

	tests := []struct {
		sev      Severity
		arris    string
		motorola string
	}{
		{SeverityInfo, "6", "Notice (6)"},
		{SeverityWarning, "5", "Warning (5)"},
		{SeverityError, "4", "Error (4)"},
		{SeverityCritical, "3", "Critical (3)"},
		{Severity(42), "UNKNOWN 42", "UNKNOWN 42"},
	}
	for _, tt := range tests {
		if got := arris.EventPriority(tt.sev); got != tt.arris {
			t.Errorf("arris %v = %q, want %q", tt.sev, got, tt.arris)
		}
		if got := moto.EventPriority(tt.sev); got != tt.motorola {
			t.Errorf("motorola %v = %q, want %q", tt.sev, got, tt.motorola)
		}
	}
}

type stubDevice struct {
	Device
	summaryCalls int
}

func (s *stubDevice) ConnectionSummary(context.Context) (*ConnectionSummary, error) {
	s.summaryCalls++
	return &ConnectionSummary{IPAddress: "10.0.0.2"}, nil
}

func TestCollect(t *testing.T) {
	d := &stubDevice{}
	got, err := Collect(context.Background(), d, StatSummary)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if s, ok := got.(*ConnectionSummary); !ok || s.IPAddress != "10.0.0.2" {
		t.Errorf("Collect = %#v", got)
	}

	if _, err := Collect(context.Background(), d, Stat("weather")); !errors.Is(err, ErrNotSupported) {
		t.Errorf("err = %v, want ErrNotSupported", err)
	}
}
