package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check storage and broker health",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			return ErrNoApp
		}

		report := app.Health.Check(cmd.Context())
		out := cmd.OutOrStdout()

		names := make([]string, 0, len(report.Checks))
		for name := range report.Checks {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			check := report.Checks[name]
			fmt.Fprintf(out, "%-10s %s", name, check.Status)
			if check.Message != "" {
				fmt.Fprintf(out, " (%s)", check.Message)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "overall    %s\n", report.Status)

		if report.Status == observability.HealthStatusUnhealthy {
			return errors.New("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
