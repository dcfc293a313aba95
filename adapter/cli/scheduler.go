package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepJSON bool

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the subscription lifecycle scheduler",
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one lifecycle pass over all active subscriptions",
	Long: `Send renewal reminders, renewal-due notices and cancel subscriptions
that are past their grace period. Notices already sent for the current
billing date are not repeated, so the sweep is safe to run more than once
a day.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if app == nil || app.Scheduler == nil {
			return ErrNoApp
		}

		report, err := app.Scheduler.Sweep(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if sweepJSON {
			output, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal report: %w", err)
			}
			fmt.Fprintln(out, string(output))
			return nil
		}

		fmt.Fprintf(out, "Checked:     %d\n", report.Checked)
		fmt.Fprintf(out, "Reminders:   %d\n", report.Reminders)
		fmt.Fprintf(out, "Renewal due: %d\n", report.RenewalDue)
		fmt.Fprintf(out, "Cancelled:   %d\n", report.Cancelled)
		fmt.Fprintf(out, "Duplicates:  %d\n", report.Duplicates)
		fmt.Fprintf(out, "Failed:      %d\n", report.Failed)
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "output as JSON")
	schedulerCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(schedulerCmd)
}
