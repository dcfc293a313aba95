package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/counsel/internal/ledger/application"
	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/ledger/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *application.Service
	clock   *sharedApplication.ManualClock
	outbox  outbox.Repository
	metrics *observability.InMemoryMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	repos := persistence.NewRepositories(conn)
	clock := sharedApplication.NewManualClock(start)
	outboxRepo := outbox.NewRepository(conn)
	metrics := observability.NewInMemoryMetrics()

	svc := application.NewService(application.Dependencies{
		Users:      repos.Users,
		Referrals:  repos.Referrals,
		Payments:   repos.Payments,
		Outbox:     outboxRepo,
		UnitOfWork: database.NewUnitOfWork(conn),
		Clock:      clock,
		Metrics:    metrics,
	})
	return &fixture{svc: svc, clock: clock, outbox: outboxRepo, metrics: metrics}
}

func (f *fixture) register(t *testing.T, externalID string) uuid.UUID {
	t.Helper()
	res, err := f.svc.RegisterUser(context.Background(), application.RegisterUserCommand{ExternalID: externalID})
	require.NoError(t, err)
	return res.UserID
}

func (f *fixture) routingKeys(t *testing.T) []string {
	t.Helper()
	msgs, err := f.outbox.GetPending(context.Background(), f.clock.Now().Add(time.Hour), 1000)
	require.NoError(t, err)
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

func TestRegisterUser_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RegisterUser(ctx, application.RegisterUserCommand{ExternalID: "tg-1", DisplayName: "Ann"})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := f.svc.RegisterUser(ctx, application.RegisterUserCommand{ExternalID: "tg-1"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.UserID, second.UserID)

	balance, err := f.svc.Balance(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewUserProblemCredits, balance.ProblemCredits)
	assert.Equal(t, domain.FreeTierAllowance, balance.DiscussionAllowance)
	assert.Contains(t, f.routingKeys(t), domain.RoutingUserRegistered)
}

func TestDebitProblemCredit_RefusesEmptyBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "tg-1")

	remaining, err := f.svc.DebitProblemCredit(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	ok, err := f.svc.CanStartProblem(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.DebitProblemCredit(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
}

func TestGrant_DispatchesByKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "tg-1")

	require.NoError(t, f.svc.Grant(ctx, userID, "medium"))
	require.NoError(t, f.svc.Grant(ctx, userID, "discussion_5"))

	balance, err := f.svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 16, balance.ProblemCredits)
	assert.Equal(t, 5, balance.DiscussionCredits)
	assert.Equal(t, 20, balance.DiscussionAllowance)

	require.NoError(t, f.svc.Grant(ctx, userID, "subscription_premium"))
	balance, err = f.svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 46, balance.ProblemCredits)
	assert.Equal(t, 30, balance.DiscussionAllowance)
	require.NotNil(t, balance.Subscription)
	assert.Equal(t, "premium", balance.Subscription.Plan)

	assert.ErrorIs(t, f.svc.Grant(ctx, userID, "gold"), domain.ErrUnknownPackage)
	assert.ErrorIs(t, f.svc.GrantPackage(ctx, userID, "discussion_5"), domain.ErrPackageKindMismatch)
	assert.EqualValues(t, 1, f.metrics.GetCounter(observability.MetricLedgerGrants, observability.T("kind", "one_time")))
	assert.EqualValues(t, 1, f.metrics.GetCounter(observability.MetricLedgerGrants, observability.T("kind", "discussion_pack")))
	assert.EqualValues(t, 1, f.metrics.GetCounter(observability.MetricLedgerGrants, observability.T("kind", "subscription")))
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "tg-1")

	renewed, err := f.svc.CreateOrRenewSubscription(ctx, userID, "standard")
	require.NoError(t, err)
	assert.False(t, renewed)

	f.clock.Advance(10 * 24 * time.Hour)
	renewed, err = f.svc.CreateOrRenewSubscription(ctx, userID, "standard")
	require.NoError(t, err)
	assert.True(t, renewed)

	active, err := f.svc.ActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tg-1", active[0].ExternalID)
	assert.Equal(t, start.Add(60*24*time.Hour), active[0].NextBillingDate)

	sent, err := f.svc.IssueNotice(ctx, application.IssueNoticeCommand{
		UserID:  userID,
		Stage:   domain.NoticeReminder,
		Message: "renewal in 3 days",
	})
	require.NoError(t, err)
	assert.True(t, sent)
	sent, err = f.svc.IssueNotice(ctx, application.IssueNoticeCommand{
		UserID:  userID,
		Stage:   domain.NoticeReminder,
		Message: "renewal in 3 days",
	})
	require.NoError(t, err)
	assert.False(t, sent)

	cancelled, err := f.svc.CancelSubscription(ctx, application.CancelSubscriptionCommand{
		UserID: userID,
		Reason: "user",
		Notice: "your subscription was cancelled",
	})
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = f.svc.CancelSubscription(ctx, application.CancelSubscriptionCommand{UserID: userID})
	require.NoError(t, err)
	assert.False(t, cancelled)

	balance, err := f.svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 31, balance.ProblemCredits)
	assert.Equal(t, domain.FreeTierAllowance, balance.DiscussionAllowance)

	active, err = f.svc.ActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	keys := f.routingKeys(t)
	assert.Contains(t, keys, domain.RoutingSubscriptionRenewed)
	assert.Contains(t, keys, domain.RoutingSubscriptionCancelled)
	assert.Contains(t, keys, domain.RoutingNotificationsPrefix+string(domain.NoticeCancelled))
}

func TestCancelSubscription_ExpectedBillingDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "tg-1")
	_, err := f.svc.CreateOrRenewSubscription(ctx, userID, "standard")
	require.NoError(t, err)
	first := start.Add(domain.BillingCycle)

	_, err = f.svc.CreateOrRenewSubscription(ctx, userID, "standard")
	require.NoError(t, err)

	cancelled, err := f.svc.CancelSubscription(ctx, application.CancelSubscriptionCommand{
		UserID:              userID,
		Reason:              "not renewed",
		ExpectedBillingDate: first,
	})
	require.NoError(t, err)
	assert.False(t, cancelled)

	sent, err := f.svc.IssueNotice(ctx, application.IssueNoticeCommand{
		UserID:      userID,
		Stage:       domain.NoticeReminder,
		Message:     "renewal in 3 days",
		BillingDate: first,
	})
	require.NoError(t, err)
	assert.False(t, sent)

	cancelled, err = f.svc.CancelSubscription(ctx, application.CancelSubscriptionCommand{
		UserID:              userID,
		Reason:              "not renewed",
		ExpectedBillingDate: first.Add(domain.BillingCycle),
	})
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestCancelSubscription_WithoutSubscription(t *testing.T) {
	f := newFixture(t)
	userID := f.register(t, "tg-1")
	_, err := f.svc.CancelSubscription(context.Background(), application.CancelSubscriptionCommand{UserID: userID})
	assert.ErrorIs(t, err, domain.ErrNoActiveSubscription)
}

func TestDebitDiscussionUnit_SpendsPurchasedBeyondBase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "tg-1")
	require.NoError(t, f.svc.GrantDiscussionPack(ctx, userID, "discussion_5"))

	for used := 0; used < domain.FreeTierAllowance; used++ {
		debit, err := f.svc.DebitDiscussionUnit(ctx, userID, used)
		require.NoError(t, err)
		assert.False(t, debit.Purchased)
		assert.Equal(t, 10-(used+1), debit.Remaining)
	}

	debit, err := f.svc.DebitDiscussionUnit(ctx, userID, domain.FreeTierAllowance)
	require.NoError(t, err)
	assert.True(t, debit.Purchased)
	assert.Equal(t, 4, debit.Remaining)

	balance, err := f.svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, balance.DiscussionCredits)
}

func TestRegisterReferral_AppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	referrer := f.register(t, "tg-1")

	code, err := f.svc.EnsureReferralCode(ctx, referrer)
	require.NoError(t, err)
	assert.True(t, domain.IsValidReferralCode(code))

	again, err := f.svc.EnsureReferralCode(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, code, again)

	res, err := f.svc.RegisterUser(ctx, application.RegisterUserCommand{ExternalID: "tg-2", ReferralCode: code})
	require.NoError(t, err)
	assert.True(t, res.ReferralApplied)

	applied, err := f.svc.RegisterReferral(ctx, referrer, res.UserID)
	require.NoError(t, err)
	assert.False(t, applied)

	referrerBalance, err := f.svc.Balance(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, 2, referrerBalance.ProblemCredits)
	assert.Equal(t, 1, referrerBalance.ReferralCredits)
	assert.Equal(t, 1, referrerBalance.Referrals)

	referredBalance, err := f.svc.Balance(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, referredBalance.ProblemCredits)

	_, err = f.svc.RegisterReferral(ctx, referrer, referrer)
	assert.ErrorIs(t, err, domain.ErrSelfReferral)
}

func TestRegisterUser_UnknownReferralCodeIsIgnored(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.RegisterUser(context.Background(), application.RegisterUserCommand{ExternalID: "tg-1", ReferralCode: "NOPE0000"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.ReferralApplied)
}

func TestConfirmPayment_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "tg-1")

	cmd := application.ConfirmPaymentCommand{
		Provider:   "yookassa",
		PaymentID:  "pay-1",
		ExternalID: "tg-1",
		PackageTag: "medium",
		Amount:     decimal.RequireFromString("699.00"),
		Currency:   "RUB",
	}
	first, err := f.svc.ConfirmPayment(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, 16, first.Balance.ProblemCredits)

	second, err := f.svc.ConfirmPayment(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, 16, second.Balance.ProblemCredits)

	assert.EqualValues(t, 1, f.metrics.GetCounter(observability.MetricPaymentsApplied, observability.T("package", "medium")))
	assert.EqualValues(t, 1, f.metrics.GetCounter(observability.MetricPaymentsDuplicate))
	assert.Contains(t, f.routingKeys(t), domain.RoutingPaymentApplied)
}

func TestConfirmPayment_RejectsUnderpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "tg-1")

	_, err := f.svc.ConfirmPayment(ctx, application.ConfirmPaymentCommand{
		Provider:   "yookassa",
		PaymentID:  "pay-1",
		UserID:     userID,
		PackageTag: "large",
		Amount:     decimal.NewFromInt(100),
		Currency:   "RUB",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	balance, err := f.svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.ProblemCredits)
}

func TestConfirmPayment_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConfirmPayment(context.Background(), application.ConfirmPaymentCommand{
		Provider:   "yookassa",
		PaymentID:  "pay-1",
		ExternalID: "ghost",
		PackageTag: "starter",
		Amount:     decimal.NewFromInt(299),
		Currency:   "RUB",
	})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "tg-1")
	require.NoError(t, f.svc.GrantPackage(ctx, userID, "starter"))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.DebitProblemCredit(ctx, userID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	balance, err := f.svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, balance.ProblemCredits)
}
