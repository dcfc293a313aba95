package ledger

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	paymentID       string
	paymentProvider string
	paymentAmount   string
	paymentCurrency string
)

var paymentCmd = &cobra.Command{
	Use:   "payment <package-tag>",
	Short: "Apply a confirmed payment",
	Long: `Apply the grant for a payment the provider confirmed. Each provider
payment id is applied at most once; repeating the command reports the
duplicate and changes nothing. The amount defaults to the catalog price.

Examples:
  counsel ledger payment starter --id pay_123 --user tg-42
  counsel ledger payment subscription_premium --id pay_124 --amount 999`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		if paymentID == "" {
			return errors.New("--id is required")
		}
		pkg, err := ledgerDomain.LookupPackage(args[0])
		if err != nil {
			return err
		}
		amount := pkg.Price
		if paymentAmount != "" {
			amount, err = decimal.NewFromString(paymentAmount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", paymentAmount, err)
			}
		}

		userID, err := app.ResolveUser(cmd.Context(), userFlag, true)
		if err != nil {
			return err
		}
		result, err := app.Ledger.ConfirmPayment(cmd.Context(), ledgerApp.ConfirmPaymentCommand{
			Provider:   paymentProvider,
			PaymentID:  paymentID,
			UserID:     userID,
			PackageTag: pkg.Tag,
			Amount:     amount,
			Currency:   paymentCurrency,
		})
		if err != nil {
			return err
		}

		if result.Applied {
			fmt.Fprintf(cmd.OutOrStdout(), "Payment %s applied.\n", paymentID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Payment %s was already applied.\n", paymentID)
		}
		if result.Balance != nil {
			printBalance(cmd.OutOrStdout(), result.Balance)
		}
		return nil
	},
}

func init() {
	paymentCmd.Flags().StringVar(&paymentID, "id", "", "provider payment id")
	paymentCmd.Flags().StringVar(&paymentProvider, "provider", "manual", "payment provider")
	paymentCmd.Flags().StringVar(&paymentAmount, "amount", "", "paid amount (default: catalog price)")
	paymentCmd.Flags().StringVar(&paymentCurrency, "currency", "", "currency code (default: catalog currency)")
}
