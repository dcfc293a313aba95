package ledger

import (
	"fmt"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/spf13/cobra"
)

var grantCmd = &cobra.Command{
	Use:   "grant <package-tag>",
	Short: "Grant a catalog package without a payment",
	Long: `Apply a package from the catalog. One-time packages add problem
credits and set the base discussion allowance, discussion packs add
discussion credits, and subscription packages activate or renew the plan.
Unknown users are registered first.

Examples:
  counsel ledger grant starter --user tg-42
  counsel ledger grant discussion_5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		userID, err := app.ResolveUser(cmd.Context(), userFlag, true)
		if err != nil {
			return err
		}
		if err := app.Ledger.Grant(cmd.Context(), userID, args[0]); err != nil {
			return fmt.Errorf("failed to grant %s: %w", args[0], err)
		}

		balance, err := app.Ledger.Balance(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Granted %s.\n", args[0])
		printBalance(cmd.OutOrStdout(), balance)
		return nil
	},
}
