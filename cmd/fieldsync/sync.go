package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldware/fieldsync/internal/engine"
	"github.com/fieldware/fieldsync/internal/ui"
)

var syncPushOnly bool
var syncPullOnly bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the local cache with the server",
	Long: `Run one full synchronization cycle.

A full cycle pushes first and pulls second:
  1. Replays queued offline mutations against the server, in the order
     they were made
  2. Refreshes the local cache from the server's collections

Fails immediately when the device is offline; queued mutations stay put
until connectivity returns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPushOnly && syncPullOnly {
			return fmt.Errorf("--push and --pull are mutually exclusive")
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		online := app.probe(ctx)
		fmt.Println(ui.Connectivity(online))

		start := time.Now()
		switch {
		case syncPushOnly:
			report, err := app.engine.SyncToServer(ctx)
			if err != nil {
				return err
			}
			printPush(report)

		case syncPullOnly:
			if err := app.engine.SyncFromServer(ctx); err != nil {
				return err
			}
			fmt.Printf("%s Cache refreshed in %v\n", ui.Online.Render("✓"), time.Since(start).Round(time.Millisecond))

		default:
			report, err := app.engine.FullSync(ctx)
			if report != nil && report.Push != nil {
				printPush(report.Push)
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s Sync complete in %v\n", ui.Online.Render("✓"), time.Since(start).Round(time.Millisecond))
		}
		return nil
	},
}

func printPush(report *engine.PushReport) {
	if len(report.Succeeded) == 0 && len(report.Failed) == 0 && len(report.Skipped) == 0 {
		fmt.Println(ui.Muted.Render("queue empty, nothing to push"))
		return
	}
	fmt.Printf("Pushed %d queued mutation(s)\n", len(report.Succeeded))
	for _, f := range report.Failed {
		fmt.Printf("  %s %s %s %s: %s\n", ui.Warn.Render("✗"), f.Entry.Op, f.Entry.Resource, f.Entry.TargetID, f.Reason)
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("  %s %d entr(ies) waiting on unsynced parents\n", ui.Muted.Render("…"), len(report.Skipped))
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncPushOnly, "push", false, "only replay queued mutations")
	syncCmd.Flags().BoolVar(&syncPullOnly, "pull", false, "only refresh the cache from the server")
	rootCmd.AddCommand(syncCmd)
}
