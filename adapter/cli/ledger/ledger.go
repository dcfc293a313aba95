package ledger

import (
	"github.com/spf13/cobra"
)

// userFlag selects the user by external id; empty means the current user.
var userFlag string

// Cmd is the ledger command group.
var Cmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and adjust user entitlements",
	Long: `Show balances, grant packages, manage subscriptions, referrals and
confirmed payments. Every command acts on the current user unless --user
names another external id.`,
}

func init() {
	Cmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "external id of the user (default: current user)")

	Cmd.AddCommand(balanceCmd)
	Cmd.AddCommand(grantCmd)
	Cmd.AddCommand(subscribeCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(referralCmd)
	Cmd.AddCommand(paymentCmd)
}
