package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldware/fieldsync/internal/config"
)

var (
	initServerURL string
	initToken     string
	initUserID    int64
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Create the config directory and write a starter config file.

Refuses to overwrite an existing config. Values not passed as flags can be
filled in by editing the file afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.WriteDefault(configDir, &config.Config{
			ServerURL: initServerURL,
			APIToken:  initToken,
			UserID:    initUserID,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initServerURL, "server", "", "backend API base URL")
	initCmd.Flags().StringVar(&initToken, "token", "", "API bearer token")
	initCmd.Flags().Int64Var(&initUserID, "user", 0, "rep user id")
	rootCmd.AddCommand(initCmd)
}
