package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldware/fieldsync/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the offline mutation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued mutations in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.db.PendingMutations(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(ui.Muted.Render("queue empty"))
			return nil
		}

		for _, e := range entries {
			target := e.TargetID.String()
			if e.TargetID.IsTemp() {
				target = ui.Temp.Render(target)
			}
			line := fmt.Sprintf("#%-4d %-7s %-15s %s", e.ID, e.Op, e.Resource, target)
			if e.Retries > 0 {
				line += "  " + ui.Warn.Render(fmt.Sprintf("(%d failed attempts)", e.Retries))
			}
			fmt.Println(line)
			fmt.Println("      " + ui.Muted.Render(e.EnqueuedAt.Format("2006-01-02 15:04:05")))
		}
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all queued mutations",
	Long: `Discard every queued mutation without replaying it.

This throws away offline work that has not reached the server. Use it only
to recover from a queue wedged by bad data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		depth, err := app.db.QueueDepth(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.db.ClearQueue(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Discarded %d queued mutation(s)\n", depth)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
