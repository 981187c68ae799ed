package modem

import (
	"context"
	"fmt"

	"github.com/HerbHall/modemwatch/internal/hnap"
)

// Arris drives Arris SURFboard modems.
type Arris struct {
	conn

	info *DeviceInfo
}

var arrisPriorities = map[Severity]string{
	SeverityInfo:     "6",
	SeverityWarning:  "5",
	SeverityError:    "4",
	SeverityCritical: "3",
}

// Arris log lines look like "0^00:01:11^1/1/1970^3^SYNC Timing ...", with
// the date written day first.
var arrisEventLayout = eventLayout{time: 1, date: 2, priority: 3, desc: 4, dateTime: "2/1/2006 15:04:05"}

var arrisDetailOps = detailOps{
	prefix:     "Customer",
	startup:    "GetCustomerStatusStartupSequence",
	connection: "GetCustomerStatusConnectionInfo",
	downstream: "GetCustomerStatusDownstreamChannelInfo",
	upstream:   "GetCustomerStatusUpstreamChannelInfo",
}

func arrisReboot() hnap.Command {
	return hnap.NewMutatingCommand("SetArrisConfigurationInfo", func(hnap.Args) any {
		return map[string]string{
			"Action":       "reboot",
			"SetEEEEnable": "0",
			"LED_Status":   "2",
		}
	})
}

func (a *Arris) Commands() []hnap.Command {
	return []hnap.Command{
		hnap.NewCommand("GetHomeAddress"),
		hnap.NewCommand("GetHomeConnection"),
		hnap.NewCommand("GetArrisConfigurationInfo"),
		hnap.NewCommand("GetArrisDeviceStatus"),
		hnap.NewCommand("GetArrisRegisterInfo"),
		hnap.NewCommand("GetArrisRegisterStatus"),
		hnap.NewCommand("GetCustomerStatusConnectionInfo"),
		hnap.NewCommand("GetCustomerStatusDownstreamChannelInfo"),
		hnap.NewCommand("GetCustomerStatusLog"),
		hnap.NewCommand("GetCustomerStatusSecAccount"),
		hnap.NewCommand("GetCustomerStatusSoftware"),
		hnap.NewCommand("GetCustomerStatusStartupSequence"),
		hnap.NewCommand("GetCustomerStatusUpstreamChannelInfo"),
		arrisReboot(),
	}
}

// DeviceInfo reads the registration and device status pages. The result
// is cached on the device.
func (a *Arris) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	resp, err := a.DoCommand(ctx, hnap.Batch(
		hnap.NewCommand("GetArrisDeviceStatus"),
		hnap.NewCommand("GetArrisRegisterInfo"),
	), nil)
	if err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}

	reg := resp.Section("GetArrisRegisterInfoResponse")
	status := resp.Section("GetArrisDeviceStatusResponse")
	a.info = &DeviceInfo{
		Model:           reg.String("ModelName"),
		SerialNumber:    reg.String("SerialNumber"),
		MACAddress:      reg.String("MacAddress"),
		FirmwareVersion: status.String("FirmwareVersion"),
		DownstreamFreq:  status.String("DownstreamFrequency"),
		DownstreamPower: status.String("DownstreamSignalPower"),
		DownstreamSNR:   status.String("DownstreamSignalSnr"),
	}
	return a.info, nil
}

func (a *Arris) ConnectionSummary(ctx context.Context) (*ConnectionSummary, error) {
	return a.summary(ctx, "GetCustomerStatusSoftware")
}

func (a *Arris) ConnectionDetails(ctx context.Context) (*ConnectionDetails, error) {
	return a.details(ctx, arrisDetailOps)
}

func (a *Arris) Events(ctx context.Context) ([]EventLogEntry, error) {
	return a.events(ctx, "GetCustomerStatusLog", "CustomerStatusLogList", arrisEventLayout)
}

func (a *Arris) Reboot(ctx context.Context) error {
	return a.reboot(ctx, arrisReboot())
}

func (a *Arris) EventPriority(sev Severity) string {
	return priorityFor(arrisPriorities, sev)
}

func (a *Arris) String() string {
	if a.info != nil && a.info.Model != "" {
		return fmt.Sprintf("%s %s", a.conn.String(), a.info.Model)
	}
	return a.conn.String()
}
