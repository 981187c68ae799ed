package modem

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Delimiters of the vendor text formats.
const (
	fieldSep   = "^"
	channelSep = "|+|"
	eventSep   = "}-{"
)

// splitRecords splits raw on sep and drops blank records. Modems usually
// terminate the list with a trailing separator.
func splitRecords(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitFields(record string) []string {
	fields := strings.Split(record, fieldSep)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// parseInt parses a trimmed integer field.
func parseInt(field string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(field))
}

// parseFloat parses the leading number of a field such as "495.0" or
// "495.0 MHz".
func parseFloat(field string) (float64, error) {
	tokens := strings.Fields(field)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("empty number")
	}
	return strconv.ParseFloat(tokens[0], 64)
}

// parseDownstreamChannels parses records such as
// "1^Locked^QAM256^32^495.0^-7.8^39.9^0^0^|+|2^Locked^QAM256^...".
func parseDownstreamChannels(raw string) ([]DownstreamChannel, error) {
	records := splitRecords(raw, channelSep)
	out := make([]DownstreamChannel, 0, len(records))
	for i, rec := range records {
		f := splitFields(rec)
		if len(f) < 9 {
			return nil, fmt.Errorf("downstream channel %d: want 9 fields, got %d", i+1, len(f))
		}
		var (
			ch  DownstreamChannel
			err error
		)
		ch.LockStatus = f[1]
		ch.Modulation = f[2]
		if ch.ChannelID, err = parseInt(f[3]); err != nil {
			return nil, fmt.Errorf("downstream channel %d id: %w", i+1, err)
		}
		if ch.FreqMHz, err = parseFloat(f[4]); err != nil {
			return nil, fmt.Errorf("downstream channel %d frequency: %w", i+1, err)
		}
		if ch.PowerDBmV, err = parseFloat(f[5]); err != nil {
			return nil, fmt.Errorf("downstream channel %d power: %w", i+1, err)
		}
		if ch.SNR, err = parseFloat(f[6]); err != nil {
			return nil, fmt.Errorf("downstream channel %d snr: %w", i+1, err)
		}
		if ch.Corrected, err = parseInt(f[7]); err != nil {
			return nil, fmt.Errorf("downstream channel %d corrected: %w", i+1, err)
		}
		if ch.Uncorrected, err = parseInt(f[8]); err != nil {
			return nil, fmt.Errorf("downstream channel %d uncorrected: %w", i+1, err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// parseUpstreamChannels parses records such as
// "1^Locked^SC-QAM^1^5120^35.5^50.0^|+|2^Locked^SC-QAM^2^...".
func parseUpstreamChannels(raw string) ([]UpstreamChannel, error) {
	records := splitRecords(raw, channelSep)
	out := make([]UpstreamChannel, 0, len(records))
	for i, rec := range records {
		f := splitFields(rec)
		if len(f) < 7 {
			return nil, fmt.Errorf("upstream channel %d: want 7 fields, got %d", i+1, len(f))
		}
		var (
			ch  UpstreamChannel
			err error
		)
		ch.LockStatus = f[1]
		ch.ChannelType = f[2]
		if ch.ChannelID, err = parseInt(f[3]); err != nil {
			return nil, fmt.Errorf("upstream channel %d id: %w", i+1, err)
		}
		if ch.SymbolRate, err = parseFloat(f[4]); err != nil {
			return nil, fmt.Errorf("upstream channel %d symbol rate: %w", i+1, err)
		}
		if ch.FreqMHz, err = parseFloat(f[5]); err != nil {
			return nil, fmt.Errorf("upstream channel %d frequency: %w", i+1, err)
		}
		if ch.PowerDBmV, err = parseFloat(f[6]); err != nil {
			return nil, fmt.Errorf("upstream channel %d power: %w", i+1, err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// eventLayout describes where a vendor puts the event fields.
type eventLayout struct {
	time, date, priority, desc int
	// dateTime is the time layout of "<date> <time>".
	dateTime string
}

// parseEvents parses "}-{" separated log entries. An entry whose timestamp
// cannot be parsed is stamped one second after the previous entry so the
// log keeps its order.
func parseEvents(raw string, layout eventLayout, loc *time.Location) ([]EventLogEntry, error) {
	minFields := max(layout.time, layout.date, layout.priority, layout.desc) + 1

	records := splitRecords(raw, eventSep)
	out := make([]EventLogEntry, 0, len(records))
	var prev time.Time
	for i, rec := range records {
		f := splitFields(rec)
		if len(f) < minFields {
			return nil, fmt.Errorf("event %d: want %d fields, got %d", i+1, minFields, len(f))
		}
		ts, err := time.ParseInLocation(layout.dateTime, f[layout.date]+" "+f[layout.time], loc)
		if err != nil {
			ts = prev.Add(time.Second)
		}
		prev = ts
		out = append(out, EventLogEntry{
			Timestamp:   ts,
			Priority:    f[layout.priority],
			Description: f[layout.desc],
		})
	}
	return out, nil
}
