// Command fieldsync is the offline-first sync agent for field sales data
// capture. It keeps a local SQLite cache of tasks, stores, products, and
// call activity, queues mutations made while offline, and reconciles with
// the backend whenever connectivity allows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync for field sales data capture",
	Long: `fieldsync keeps a local cache of the data a field rep works with and
reconciles it with the backend server.

Reads always answer from somewhere: the server when reachable, the local
cache when not. Writes made offline are applied to the cache immediately
and queued for replay; the daemon drains the queue as soon as the device
is back online.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.fieldsync)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
