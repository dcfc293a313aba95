package ledger

import (
	"fmt"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/spf13/cobra"
)

var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Manage referral codes and rewards",
}

var referralCodeCmd = &cobra.Command{
	Use:   "code",
	Short: "Show the user's referral code, creating it on first use",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		userID, err := app.ResolveUser(cmd.Context(), userFlag, true)
		if err != nil {
			return err
		}
		code, err := app.Ledger.EnsureReferralCode(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	},
}

var referralApplyCmd = &cobra.Command{
	Use:   "apply <referrer-external-id>",
	Short: "Record that the user was referred by another user",
	Long: `Reward both users with one problem credit. A user can be referred
only once; repeated referrals change nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		referrerID, err := app.ResolveUser(cmd.Context(), args[0], false)
		if err != nil {
			return fmt.Errorf("referrer %s: %w", args[0], err)
		}
		referredID, err := app.ResolveUser(cmd.Context(), userFlag, true)
		if err != nil {
			return err
		}
		applied, err := app.Ledger.RegisterReferral(cmd.Context(), referrerID, referredID)
		if err != nil {
			return err
		}
		if !applied {
			fmt.Fprintln(cmd.OutOrStdout(), "Referral already recorded.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Referral recorded, both users received a credit.")
		return nil
	},
}

func init() {
	referralCmd.AddCommand(referralCodeCmd)
	referralCmd.AddCommand(referralApplyCmd)
}
