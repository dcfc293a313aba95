package application

import (
	"fmt"

	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
)

const dateLayout = "2006-01-02"

// ReminderMessage announces the upcoming billing date.
func ReminderMessage(sub ledgerApp.SubscriptionView) string {
	return fmt.Sprintf("Your %s subscription renews on %s. Renew it in time to keep your monthly credits coming.",
		sub.Plan, sub.NextBillingDate.Format(dateLayout))
}

// RenewalDueMessage asks the user to renew manually; payments are never
// charged automatically.
func RenewalDueMessage(sub ledgerApp.SubscriptionView) string {
	return fmt.Sprintf("Your %s subscription is due today, %s: %s %s. Purchase it again to renew; if it is not renewed within %d days it will be cancelled.",
		sub.Plan, sub.NextBillingDate.Format(dateLayout), sub.Price, ledgerDomain.CatalogCurrency, -GraceDays)
}

// CancelledMessage tells the user the subscription ended.
func CancelledMessage(sub ledgerApp.SubscriptionView) string {
	return fmt.Sprintf("Your %s subscription was cancelled because it was not renewed. Your remaining credits stay on your balance.",
		sub.Plan)
}
