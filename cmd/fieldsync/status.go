package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldware/fieldsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, cache, and queue state",
	Long: `Display the current sync state:

  - Connectivity (one probe against the server)
  - Cached record counts per collection
  - Pending offline mutations waiting for replay`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		online := app.probe(ctx)

		fmt.Printf("\n%s\n\n", ui.Connectivity(online))

		fmt.Println(ui.Header.Render("Cache"))
		if info, err := os.Stat(app.cfg.DBPath); err == nil {
			fmt.Printf("  %s  %s\n", app.cfg.DBPath, ui.Muted.Render(fmt.Sprintf("(%d KB)", info.Size()/1024)))
		} else {
			fmt.Printf("  %s\n", app.cfg.DBPath)
		}

		tasks, _ := app.db.ListTasks(ctx)
		stores, _ := app.db.ListStores(ctx)
		products, _ := app.db.ListProducts(ctx)
		schedules, _ := app.db.ListSchedules(ctx)
		recordings, _ := app.db.ListRecordings(ctx)
		fmt.Printf("  Tasks: %d   Stores: %d   Products: %d   Schedules: %d   Recordings: %d\n\n",
			len(tasks), len(stores), len(products), len(schedules), len(recordings))

		depth, err := app.db.QueueDepth(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ui.Header.Render("Queue"))
		if depth == 0 {
			fmt.Printf("  %s\n\n", ui.Muted.Render("empty"))
		} else {
			fmt.Printf("  %s\n\n", ui.Warn.Render(fmt.Sprintf("%d mutation(s) pending replay", depth)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
