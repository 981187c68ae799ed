package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HerbHall/modemwatch/internal/modem"
)

var queryActions = []string{"test", "device", "summary", "details", "events", "reboot", "capabilities"}

// errRebootNotConfirmed guards the one mutating action.
var errRebootNotConfirmed = errors.New("reboot requires --yes")

func newQueryCmd(load func() (*app, error)) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "query <device_id> <action>",
		Short: "Run one action against a modem and print the result as JSON",
		Long: `Run one action against a modem and print the result.

Actions:
  test          run every read-only command in the vendor catalog
  device        model, serial number, MAC and firmware
  summary       addresses, channel counts and firmware versions
  details       startup steps and per-channel downstream and upstream stats
  events        the modem's event log
  reboot        restart the modem (requires --yes)
  capabilities  the raw HNAP capability document`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: queryActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			d, _, err := a.openDevice(args[0])
			if err != nil {
				return err
			}
			defer d.Logout()
			return runQuery(cmd.Context(), d, args[1], confirm, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the reboot action")
	return cmd
}

// runQuery performs action on d and writes the result to w.
func runQuery(ctx context.Context, d modem.Device, action string, confirm bool, w io.Writer) error {
	var (
		result any
		err    error
	)
	switch action {
	case "test":
		result = testCommands(ctx, d)
	case "device":
		result, err = d.DeviceInfo(ctx)
	case "summary":
		result, err = d.ConnectionSummary(ctx)
	case "details":
		result, err = d.ConnectionDetails(ctx)
	case "events":
		result, err = d.Events(ctx)
	case "reboot":
		if !confirm {
			return errRebootNotConfirmed
		}
		if err := d.Reboot(ctx); err != nil {
			return err
		}
		result = map[string]string{"device": d.ID(), "status": "rebooting"}
	case "capabilities":
		doc, err := d.Capabilities(ctx)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, strings.TrimRight(doc, "\n")+"\n")
		return err
	default:
		return fmt.Errorf("unknown action %q: want one of %s", action, strings.Join(queryActions, ", "))
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", d.ID(), action, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// commandResult is one entry of the test action's output.
type commandResult struct {
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func testCommands(ctx context.Context, d modem.Device) map[string]commandResult {
	out := make(map[string]commandResult)
	for _, cmd := range d.Commands() {
		if !cmd.ReadOnly {
			continue
		}
		resp, err := d.DoCommand(ctx, cmd, nil)
		if err != nil {
			out[cmd.Operation] = commandResult{Error: err.Error()}
			continue
		}
		out[cmd.Operation] = commandResult{Response: resp}
	}
	return out
}
