package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/event"
	"github.com/HerbHall/modemwatch/internal/monitor"
	"github.com/HerbHall/modemwatch/internal/mqtt"
	"github.com/HerbHall/modemwatch/internal/reach"
	"github.com/HerbHall/modemwatch/internal/server"
	"github.com/HerbHall/modemwatch/internal/sink"
	"github.com/HerbHall/modemwatch/internal/version"
)

type monitorFlags struct {
	note          string
	rebootTimes   []string
	checkInterval int
	statsInterval int
}

func newMonitorCmd(load func() (*app, error)) *cobra.Command {
	var f monitorFlags

	cmd := &cobra.Command{
		Use:   "monitor <device_id>",
		Short: "Ping, poll and reboot a modem until interrupted",
		Long: `Run the monitor loop for one device from the device table.

Ping runs every --check-interval seconds and stats every --stats-interval
minutes at second :00; both also run once at startup. Reboots run daily at
each --reboot-times entry and whenever failed runs bounded by successful
runs reach the failure threshold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			mc := a.cfg.Monitor
			if cmd.Flags().Changed("reboot-times") {
				mc.RebootTimes = f.rebootTimes
			}
			if cmd.Flags().Changed("check-interval") {
				mc.CheckInterval = time.Duration(f.checkInterval) * time.Second
			}
			if cmd.Flags().Changed("stats-interval") {
				mc.StatsInterval = time.Duration(f.statsInterval) * time.Minute
			}
			if err := mc.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					a.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
					cancel()
				case <-ctx.Done():
				}
			}()

			return a.runMonitor(ctx, args[0], mc, f.note)
		},
	}

	defaults := monitor.DefaultConfig()
	cmd.Flags().StringVar(&f.note, "note", "", "append this note to each stat directory's README.txt")
	cmd.Flags().StringSliceVar(&f.rebootTimes, "reboot-times", defaults.RebootTimes, "times of day (HH:MM) to reboot the device")
	cmd.Flags().IntVar(&f.checkInterval, "check-interval", int(defaults.CheckInterval/time.Second), "ping every S seconds [30-60]")
	cmd.Flags().IntVar(&f.statsInterval, "stats-interval", int(defaults.StatsInterval/time.Minute), "get stats every M minutes [1-5]")
	return cmd
}

func (a *app) runMonitor(ctx context.Context, deviceID string, mc monitor.Config, note string) error {
	logger := a.logger
	logger.Info("modemwatch starting", zap.String("version", version.Short()), zap.String("device", deviceID))

	device, dc, err := a.openDevice(deviceID)
	if err != nil {
		return err
	}
	mc.Stats = dc.Stats(mc.Stats)

	bus := event.NewBus(logger.Named("event"))
	defer bus.SubscribeAll(event.DebugLog(logger.Named("event")))()

	pub := mqtt.New(a.cfg.MQTT, logger.Named("mqtt"))
	if err := pub.Start(ctx); err != nil {
		return fmt.Errorf("starting mqtt publisher: %w", err)
	}
	defer pub.Stop()
	defer pub.Subscribe(bus)()
	pub.Announce(deviceID, string(device.Vendor()))

	store := sink.New(a.cfg.Sink, logger.Named("sink"))
	prober := reach.NewProber(a.cfg.Reach, logger.Named("reach"))

	mon, err := monitor.New(mc, device, store, logger.Named("monitor"),
		monitor.WithPublisher(bus),
		monitor.WithProber(prober),
	)
	if err != nil {
		return err
	}

	if a.cfg.Server.Enabled() {
		srv := server.New(a.cfg.Server, logger.Named("server"), mon)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("HTTP server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown", zap.Error(err))
			}
		}()
	}

	if err := mon.Setup(ctx, note); err != nil {
		return err
	}
	return mon.Run(ctx)
}
