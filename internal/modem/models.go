package modem

import "time"

// DeviceInfo identifies the hardware behind a device.
type DeviceInfo struct {
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	MACAddress      string `json:"mac_address"`
	HWVersion       string `json:"hw_version,omitempty"`
	FirmwareVersion string `json:"firmware_version"`
	DownstreamFreq  string `json:"downstream_freq,omitempty"`
	DownstreamPower string `json:"downstream_power,omitempty"`
	DownstreamSNR   string `json:"downstream_snr,omitempty"`
}

// ConnectionSummary is the short status shown on a modem's home page.
type ConnectionSummary struct {
	IPAddress              string `json:"ip_address"`
	MACAddress             string `json:"mac_address"`
	DownstreamChannelCount int    `json:"downstream_channel_count"`
	UpstreamChannelCount   int    `json:"upstream_channel_count"`
	HWVersion              string `json:"hw_version"`
	SWVersion              string `json:"sw_version"`
	SWSpecVersion          string `json:"sw_spec_version"`
	SWSerial               string `json:"sw_serial"`
	SWCertStatus           string `json:"sw_cert_status"`
	SWCustomerVersion      string `json:"sw_customer_version"`
}

// StartupStep is one stage of the DOCSIS startup sequence.
type StartupStep struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// StartupSteps lists the startup stages in the order the modem runs them.
type StartupSteps struct {
	Downstream StartupStep `json:"downstream"`
	Upstream   StartupStep `json:"upstream"`
	Boot       StartupStep `json:"boot"`
	ConfigFile StartupStep `json:"config_file"`
	Security   StartupStep `json:"security"`
}

// ChannelStats holds the fields shared by downstream and upstream channels.
type ChannelStats struct {
	ChannelID  int     `json:"channel_id"`
	LockStatus string  `json:"lock_status"`
	FreqMHz    float64 `json:"freq_mhz"`
	PowerDBmV  float64 `json:"power_dbmv"`
}

// DownstreamChannel is one bonded downstream channel.
type DownstreamChannel struct {
	ChannelStats
	Modulation  string  `json:"modulation"`
	SNR         float64 `json:"snr"`
	Corrected   int     `json:"corrected"`
	Uncorrected int     `json:"uncorrected"`
}

// UpstreamChannel is one bonded upstream channel.
type UpstreamChannel struct {
	ChannelStats
	ChannelType string  `json:"channel_type"`
	SymbolRate  float64 `json:"symb_rate"`
}

// ConnectionDetails is the full connection status page.
type ConnectionDetails struct {
	StartupSteps       StartupSteps        `json:"startup_steps"`
	Uptime             string              `json:"uptime"`
	NetworkAccess      string              `json:"network_access"`
	DownstreamChannels []DownstreamChannel `json:"downstream_channels"`
	UpstreamChannels   []UpstreamChannel   `json:"upstream_channels"`
}

// EventLogEntry is one line of the modem event log.
type EventLogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Priority    string    `json:"priority"`
	Description string    `json:"desc"`
}

// Severity is a client-side event level, mapped to the vendor's priority
// vocabulary by Device.EventPriority.
type Severity int

// Event severities.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}
