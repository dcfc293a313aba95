package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	conversationApp "github.com/felixgeelhaar/counsel/internal/conversation/application"
	conversationDomain "github.com/felixgeelhaar/counsel/internal/conversation/domain"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	"github.com/felixgeelhaar/counsel/internal/lifecycle/infrastructure/notify"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{}

func (stubGenerator) GenerateQuestion(_ context.Context, _ string, _ conversationDomain.History, step int) (string, error) {
	return fmt.Sprintf("question %d?", step), nil
}

func (stubGenerator) GenerateSolution(_ context.Context, description string, _ conversationDomain.History) (string, error) {
	return "try this for " + description, nil
}

func (stubGenerator) GenerateDiscussionAnswer(_ context.Context, req conversationApp.DiscussionRequest) (string, error) {
	return "answer to " + req.Question, nil
}

type discardPresenter struct{}

func (discardPresenter) Present(context.Context, uuid.UUID, conversationApp.Outcome) error {
	return nil
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:               "development",
		DatabaseDriver:       "auto",
		SQLitePath:           filepath.Join(t.TempDir(), "counsel.db"),
		SessionTTL:           time.Hour,
		OutboxPollInterval:   10 * time.Millisecond,
		OutboxBatchSize:      100,
		OutboxMaxRetries:     3,
		SchedulerRunAt:       "03:00",
		SchedulerRetryDelay:  time.Hour,
		SchedulerConcurrency: 2,
		SchedulerItemTimeout: 5 * time.Second,
	}
}

func newLocalContainer(t *testing.T, clock sharedApplication.Clock, out io.Writer) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), localConfig(t), Options{
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:              clock,
		Generator:          stubGenerator{},
		NotificationSender: notify.NewWriterSender(out),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewContainer_LocalMode(t *testing.T) {
	c := newLocalContainer(t, sharedApplication.SystemClock{}, io.Discard)

	assert.Equal(t, database.DriverSQLite, c.DBDriver)
	assert.Nil(t, c.RedisClient)
	assert.NotNil(t, c.InProcessEventBus)
	assert.NotNil(t, c.Notifications)
	assert.NotNil(t, c.Scheduler)
	assert.NotNil(t, c.OutboxProcessor)

	health := c.Health.Check(context.Background())
	assert.Equal(t, observability.HealthStatusHealthy, health.Status)
	assert.Contains(t, health.Checks, "database")
}

func TestNewContainer_InvalidSchedulerTime(t *testing.T) {
	cfg := localConfig(t)
	cfg.SchedulerRunAt = "25:99"

	_, err := NewContainer(context.Background(), cfg, Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Generator: stubGenerator{},
	})
	require.Error(t, err)
}

func TestNewContainer_FallsBackWithoutAPIKey(t *testing.T) {
	c, err := NewContainer(context.Background(), localConfig(t), Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Generator.GenerateQuestion(context.Background(), "x", nil, 1)
	assert.ErrorIs(t, err, conversationDomain.ErrGenerationFailed)
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	cfg := database.Config{Driver: database.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "m.db")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	applied, err := RunMigrations(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	applied, err = RunMigrations(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

// A free user works through one problem, subscribes, and receives the
// renewal reminder relayed from the outbox to the notification sender.
func TestContainer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := sharedApplication.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	var notices bytes.Buffer
	c := newLocalContainer(t, clock, &notices)
	engine := c.NewEngine(discardPresenter{})

	reg, err := c.Ledger.RegisterUser(ctx, ledgerApp.RegisterUserCommand{ExternalID: "tg-1", DisplayName: "Ann"})
	require.NoError(t, err)
	userID := reg.UserID

	out, err := engine.StartProblem(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, conversationApp.OutcomeAskProblem, out.Kind)

	out, err = engine.HandleInput(ctx, userID, "my team misses deadlines")
	require.NoError(t, err)
	require.Equal(t, conversationApp.OutcomeQuestion, out.Kind)

	for i := 1; i <= conversationDomain.QuestionRounds; i++ {
		out, err = engine.HandleInput(ctx, userID, fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
	}
	require.Equal(t, conversationApp.OutcomeSolution, out.Kind)
	assert.Equal(t, 5, out.Remaining)

	out, err = engine.HandleInput(ctx, userID, "what first?")
	require.NoError(t, err)
	assert.Equal(t, conversationApp.OutcomeAnswer, out.Kind)
	assert.Equal(t, 4, out.Remaining)

	problems, err := engine.RecentProblems(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, conversationDomain.ProblemStatusSolved, problems[0].Status)

	balance, err := c.Ledger.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, balance.ProblemCredits)

	result, err := c.Ledger.ConfirmPayment(ctx, ledgerApp.ConfirmPaymentCommand{
		Provider:   "test",
		PaymentID:  "pay-1",
		UserID:     userID,
		PackageTag: "subscription_standard",
		Amount:     decimal.NewFromInt(599),
		Currency:   "RUB",
	})
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.NotNil(t, result.Balance.Subscription)
	assert.Equal(t, 15, result.Balance.ProblemCredits)

	clock.Set(result.Balance.Subscription.NextBillingDate.AddDate(0, 0, -3))
	report, err := c.Scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reminders)

	require.NoError(t, c.OutboxProcessor.ProcessOnce(ctx))
	assert.Contains(t, notices.String(), "[reminder] tg-1:")
}

func TestContainer_MigrateReportsUpToDate(t *testing.T) {
	c := newLocalContainer(t, sharedApplication.SystemClock{}, io.Discard)

	applied, err := c.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}
