package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/fieldware/fieldsync/internal/record"
	"github.com/fieldware/fieldsync/internal/ui"
)

var scheduleDate string

var scheduleCmd = &cobra.Command{
	Use:   "schedule <store-id>",
	Short: "Get or create the call schedule for a store visit",
	Long: `Get or create the call schedule tying this rep to a store on a date.

A schedule is identified by (store, date, rep); asking twice returns the
same schedule. Offline, a temporary schedule is created locally and
reconciled on the next sync.

The date accepts natural language:

  fieldsync schedule 42
  fieldsync schedule 42 --date tomorrow
  fieldsync schedule 42 --date "next monday"
  fieldsync schedule 42 --date 2026-09-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		storeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("store id must be a number: %q", args[0])
		}

		date, err := parseCallDate(scheduleDate)
		if err != nil {
			return err
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		online := app.probe(ctx)

		schedule, err := app.gateways.Schedules.GetOrCreate(ctx, record.FromInt(storeID), date, app.cfg.UserID)
		if err != nil {
			return err
		}

		id := schedule.ID.String()
		if schedule.ID.IsTemp() {
			id = ui.Temp.Render(id) + ui.Muted.Render(" (local, will sync)")
		}
		fmt.Printf("%s\nSchedule %s  store=%d  date=%s\n", ui.Connectivity(online), id, storeID, schedule.CallDate)
		return nil
	},
}

// parseCallDate accepts an exact date or natural language like "tomorrow".
func parseCallDate(text string) (record.Date, error) {
	if text == "" {
		return today(), nil
	}
	if d, err := record.ParseDate(text); err == nil {
		return d, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(text, time.Now())
	if err != nil || result == nil {
		return record.Date{}, fmt.Errorf("cannot parse date %q", text)
	}
	return record.DateOf(result.Time), nil
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleDate, "date", "", "call date (default today)")
	rootCmd.AddCommand(scheduleCmd)
}
