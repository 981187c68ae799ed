package modem

import (
	"context"
	"fmt"

	"github.com/HerbHall/modemwatch/internal/hnap"
)

// Motorola drives Motorola MB-series modems.
type Motorola struct {
	conn
}

var motorolaPriorities = map[Severity]string{
	SeverityInfo:     "Notice (6)",
	SeverityWarning:  "Warning (5)",
	SeverityError:    "Error (4)",
	SeverityCritical: "Critical (3)",
}

// Motorola log lines look like "12:14:11^Tue Aug 16 2022^Critical (3)^...".
var motorolaEventLayout = eventLayout{time: 0, date: 1, priority: 2, desc: 3, dateTime: "Mon Jan 2 2006 15:04:05"}

var motorolaDetailOps = detailOps{
	prefix:     "Moto",
	startup:    "GetMotoStatusStartupSequence",
	connection: "GetMotoStatusConnectionInfo",
	downstream: "GetMotoStatusDownstreamChannelInfo",
	upstream:   "GetMotoStatusUpstreamChannelInfo",
}

func motorolaReboot() hnap.Command {
	return hnap.NewMutatingCommand("SetStatusSecuritySettings", func(hnap.Args) any {
		return map[string]string{
			"MotoStatusSecurityAction": "1",
			"MotoStatusSecXXX":         "XXX",
		}
	})
}

func (m *Motorola) Commands() []hnap.Command {
	return []hnap.Command{
		hnap.NewCommand("GetHomeAddress"),
		hnap.NewCommand("GetHomeConnection"),
		hnap.NewCommand("GetMotoStatusSoftware"),
		hnap.NewCommand("GetMotoStatusStartupSequence"),
		hnap.NewCommand("GetMotoStatusConnectionInfo"),
		hnap.NewCommand("GetMotoStatusDownstreamChannelInfo"),
		hnap.NewCommand("GetMotoStatusUpstreamChannelInfo"),
		hnap.NewCommand("GetMotoLagStatus"),
		hnap.NewCommand("GetMotoStatusLog"),
		hnap.NewCommand("GetMotoStatusSecAccount"),
		motorolaReboot(),
	}
}

// DeviceInfo is assembled from the software status page; Motorola firmware
// does not report a model name over HNAP.
func (m *Motorola) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	resp, err := m.DoCommand(ctx, hnap.Batch(
		hnap.NewCommand("GetHomeAddress"),
		hnap.NewCommand("GetMotoStatusSoftware"),
	), nil)
	if err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}

	addr := resp.Section("GetHomeAddressResponse")
	sw := resp.Section("GetMotoStatusSoftwareResponse")
	return &DeviceInfo{
		SerialNumber:    sw.String("StatusSoftwareSerialNum"),
		MACAddress:      addr.String("MotoHomeMacAddress"),
		HWVersion:       sw.String("StatusSoftwareHdVer"),
		FirmwareVersion: sw.String("StatusSoftwareSfVer"),
	}, nil
}

func (m *Motorola) ConnectionSummary(ctx context.Context) (*ConnectionSummary, error) {
	return m.summary(ctx, "GetMotoStatusSoftware")
}

func (m *Motorola) ConnectionDetails(ctx context.Context) (*ConnectionDetails, error) {
	return m.details(ctx, motorolaDetailOps)
}

func (m *Motorola) Events(ctx context.Context) ([]EventLogEntry, error) {
	return m.events(ctx, "GetMotoStatusLog", "MotoStatusLogList", motorolaEventLayout)
}

func (m *Motorola) Reboot(ctx context.Context) error {
	return m.reboot(ctx, motorolaReboot())
}

func (m *Motorola) EventPriority(sev Severity) string {
	return priorityFor(motorolaPriorities, sev)
}
