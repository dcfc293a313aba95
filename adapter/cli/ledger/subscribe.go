package ledger

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/spf13/cobra"
)

var cancelReason string

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <plan>",
	Short: "Activate or renew a subscription plan",
	Long: `Activate the plan (standard or premium), or renew the active
subscription and move its billing date forward by one period.`,
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
		renewed, err := app.Ledger.CreateOrRenewSubscription(cmd.Context(), userID, args[0])
		if err != nil {
			return err
		}

		balance, err := app.Ledger.Balance(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if renewed {
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s renewed.\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s activated.\n", args[0])
		}
		printBalance(cmd.OutOrStdout(), balance)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active subscription",
	Long:  `Cancel the user's subscription. Remaining credits are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		userID, err := app.ResolveUser(cmd.Context(), userFlag, false)
		if err != nil {
			return err
		}
		cancelled, err := app.Ledger.CancelSubscription(cmd.Context(), ledgerApp.CancelSubscriptionCommand{
			UserID: userID,
			Reason: cancelReason,
		})
		if errors.Is(err, ledgerDomain.ErrNoActiveSubscription) {
			fmt.Fprintln(cmd.OutOrStdout(), "No subscription found.")
			return nil
		}
		if err != nil {
			return err
		}
		if !cancelled {
			fmt.Fprintln(cmd.OutOrStdout(), "Subscription is not active.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Subscription cancelled.")
		return nil
	},
}

func init() {
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "operator", "cancellation reason")
}
