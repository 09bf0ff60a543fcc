package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Wake due sessions once and purge expired ones",
	Long: `Runs a single scheduler pass against the configured session store: every sleeping
session whose wake time has passed is ticked, and terminal sessions older than the
retention are deleted. Suitable for an external cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		res, ran, err := app.Scheduler.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		if !ran {
			fmt.Println("Another replica holds the scheduler lock; nothing done.")
			return nil
		}
		fmt.Printf("due=%d woken=%d skipped=%d failed=%d\n", res.Due, res.Woken, res.Skipped, res.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
