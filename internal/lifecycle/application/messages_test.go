package application_test

import (
	"testing"
	"time"

	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	"github.com/felixgeelhaar/counsel/internal/lifecycle/application"
	"github.com/stretchr/testify/assert"
)

func TestMessages(t *testing.T) {
	sub := ledgerApp.SubscriptionView{
		Plan:            "standard",
		Price:           "599.00",
		NextBillingDate: time.Date(2026, 5, 31, 8, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		got  string
		want []string
	}{
		{"reminder", application.ReminderMessage(sub), []string{"standard", "2026-05-31"}},
		{"renewal due", application.RenewalDueMessage(sub), []string{"due today, 2026-05-31: 599.00 RUB", "within 3 days"}},
		{"cancelled", application.CancelledMessage(sub), []string{"standard subscription was cancelled"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				assert.Contains(t, tt.got, want)
			}
		})
	}
}
