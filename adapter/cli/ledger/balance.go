package ledger

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	"github.com/spf13/cobra"
)

var balanceJSON bool

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a user's credits, allowance and subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		userID, err := app.ResolveUser(cmd.Context(), userFlag, false)
		if err != nil {
			return err
		}
		balance, err := app.Ledger.Balance(cmd.Context(), userID)
		if err != nil {
			return err
		}

		if balanceJSON {
			output, err := json.MarshalIndent(balance, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal balance: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		}
		printBalance(cmd.OutOrStdout(), balance)
		return nil
	},
}

func printBalance(out io.Writer, b *ledgerApp.Balance) {
	fmt.Fprintf(out, "User:                 %s\n", b.ExternalID)
	fmt.Fprintf(out, "Problem credits:      %d\n", b.ProblemCredits)
	fmt.Fprintf(out, "Discussion credits:   %d\n", b.DiscussionCredits)
	fmt.Fprintf(out, "Discussion allowance: %d (base %d)\n", b.DiscussionAllowance, b.BaseAllowance)
	if b.LastPurchasedPackage != "" {
		fmt.Fprintf(out, "Package:              %s\n", b.LastPurchasedPackage)
	}
	if s := b.Subscription; s != nil {
		fmt.Fprintf(out, "Subscription:         %s (%s)\n", s.Plan, s.Status)
		fmt.Fprintf(out, "Next billing:         %s\n", s.NextBillingDate.Format("2006-01-02"))
	}
	if b.ReferralCode != "" {
		fmt.Fprintf(out, "Referral code:        %s\n", b.ReferralCode)
	}
	fmt.Fprintf(out, "Referrals:            %d (%d credits earned)\n", b.Referrals, b.ReferralCredits)
}

func init() {
	balanceCmd.Flags().BoolVar(&balanceJSON, "json", false, "output as JSON")
}
