package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/config"
	"github.com/HerbHall/modemwatch/internal/hnap"
	"github.com/HerbHall/modemwatch/internal/modem"
	"github.com/HerbHall/modemwatch/internal/version"
)

// app holds what every subcommand needs after configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "modemwatch",
		Short: "Monitor and reboot HNAP cable modems",
		Long: `modemwatch talks to Arris and Motorola cable modems over HNAP.

It pings the modem on a short interval, stores connection telemetry as JSON
under devices/<id>/, and reboots the modem at fixed times of day or when
repeated failures are bounded by healthy runs.

Examples:
  modemwatch monitor arris
  modemwatch monitor motorola --check-interval 45 --reboot-times 03:30,15:30
  modemwatch query arris summary`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")

	load := func() (*app, error) {
		v, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg, err := config.Decode(v)
		if err != nil {
			return nil, err
		}
		logger, err := config.NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
		if f := v.ConfigFileUsed(); f != "" {
			logger.Info("configuration loaded", zap.String("component", "config"), zap.String("source", f))
		} else {
			logger.Warn("no configuration file found, using defaults", zap.String("component", "config"))
		}
		return &app{cfg: cfg, logger: logger}, nil
	}

	root.AddCommand(
		newMonitorCmd(load),
		newQueryCmd(load),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// openDevice resolves id from the device table and builds its Device.
func (a *app) openDevice(id string) (modem.Device, config.DeviceConfig, error) {
	dc, err := a.cfg.Device(id)
	if err != nil {
		return nil, dc, err
	}
	mc, err := dc.Modem(id)
	if err != nil {
		return nil, dc, err
	}
	client := hnap.NewClient(a.cfg.HNAP, a.logger.Named("hnap"))
	d, err := modem.New(mc, client, a.cfg.HNAP.SessionOptions(), a.logger.Named("modem"))
	if err != nil {
		return nil, dc, err
	}
	return d, dc, nil
}
