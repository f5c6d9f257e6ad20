package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fieldware/fieldsync/internal/config"
	"github.com/fieldware/fieldsync/internal/dashboard"
	"github.com/fieldware/fieldsync/internal/engine"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync agent",
	Long: `Run fieldsync as a long-lived agent.

The daemon polls connectivity, syncs on a fixed interval while online, and
syncs immediately whenever the device comes back online. When a dashboard
address is configured it also serves a WebSocket feed of sync activity.

Edits to the config file take effect without a restart where they can
(log level); connection settings need one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := app.monitor.Start(ctx); err != nil {
			return err
		}
		defer app.monitor.Stop()

		var lastSync atomic.Int64

		var dash *dashboard.Server
		if app.cfg.DashboardAddr != "" {
			dash = dashboard.NewServer(app.cfg.DashboardAddr, func() dashboard.Snapshot {
				depth, _ := app.db.QueueDepth(ctx)
				snap := dashboard.Snapshot{
					Online:     app.monitor.Online(),
					QueueDepth: depth,
				}
				if ts := lastSync.Load(); ts > 0 {
					snap.LastSync = time.Unix(ts, 0)
				}
				return snap
			}, app.logger)
			if err := dash.Start(); err != nil {
				return err
			}
			defer dash.Stop()
		}

		app.onEvent = func(e engine.Event) {
			if e.Type == engine.EventSyncCompleted {
				lastSync.Store(e.At.Unix())
			}
			if dash != nil {
				dash.PublishSyncEvent(e)
			}
		}

		if dash != nil {
			events, cancel := app.monitor.Subscribe()
			defer cancel()
			go func() {
				for event := range events {
					dash.PublishConnectivity(event.Online)
				}
			}()
		}

		// Log level follows the config file while running.
		app.loader.Watch(func(cfg *config.Config) {
			if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
				app.logger.SetLevel(level)
			}
		})

		fmt.Println("fieldsync daemon running, Ctrl-C to stop")
		runner := engine.NewRunner(app.engine, app.monitor, app.cfg.SyncInterval, app.logger)
		if err := runner.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
