package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app == nil || app.Migrate == nil {
			return ErrNoApp
		}
		applied, err := app.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			fmt.Fprintln(out, "Schema is up to date.")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintf(out, "Applied %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
