package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/ledger/infrastructure/persistence"
	"github.com/felixgeelhaar/counsel/internal/lifecycle/infrastructure/notify"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSender struct{}

func (failingSender) Send(context.Context, notify.Notification) error {
	return errors.New("transport down")
}

func TestConsumer_DeliversRelayedNotice(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	repos := persistence.NewRepositories(conn)
	outboxRepo := outbox.NewRepository(conn)
	clock := sharedApplication.NewManualClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	ledger := ledgerApp.NewService(ledgerApp.Dependencies{
		Users:      repos.Users,
		Referrals:  repos.Referrals,
		Payments:   repos.Payments,
		Outbox:     outboxRepo,
		UnitOfWork: database.NewUnitOfWork(conn),
		Clock:      clock,
	})

	res, err := ledger.RegisterUser(ctx, ledgerApp.RegisterUserCommand{ExternalID: "tg-7"})
	require.NoError(t, err)
	_, err = ledger.CreateOrRenewSubscription(ctx, res.UserID, "standard")
	require.NoError(t, err)
	sent, err := ledger.IssueNotice(ctx, ledgerApp.IssueNoticeCommand{
		UserID:  res.UserID,
		Stage:   ledgerDomain.NoticeReminder,
		Message: "renew soon",
	})
	require.NoError(t, err)
	require.True(t, sent)

	var out bytes.Buffer
	bus := eventbus.NewInProcessEventBus(nil)
	bus.RegisterConsumer(notify.NewConsumer(notify.NewWriterSender(&out), nil))

	msgs, err := outboxRepo.GetPending(ctx, clock.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	for _, msg := range msgs {
		envelope, err := msg.Envelope()
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, msg.RoutingKey, envelope))
	}

	assert.Equal(t, "[reminder] tg-7: renew soon\n", out.String())
}

func TestConsumer_SenderFailureIsReturned(t *testing.T) {
	consumer := notify.NewConsumer(failingSender{}, nil)
	payload, err := json.Marshal(notify.Notification{UserID: uuid.New(), Message: "hello"})
	require.NoError(t, err)

	err = consumer.Handle(context.Background(), &eventbus.ConsumedEvent{
		RoutingKey: "notifications.subscription.reminder",
		Payload:    payload,
	})
	assert.ErrorContains(t, err, "transport down")
}

func TestConsumer_SkipsEmptyMessages(t *testing.T) {
	var out bytes.Buffer
	consumer := notify.NewConsumer(notify.NewWriterSender(&out), nil)

	err := consumer.Handle(context.Background(), &eventbus.ConsumedEvent{
		RoutingKey: "notifications.subscription.reminder",
		Payload:    json.RawMessage(`{"user_id":"` + uuid.NewString() + `"}`),
	})
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Equal(t, []string{"notifications.#"}, consumer.EventTypes())
}

func TestConsumer_RejectsMalformedPayload(t *testing.T) {
	consumer := notify.NewConsumer(notify.NewLogSender(nil), nil)
	err := consumer.Handle(context.Background(), &eventbus.ConsumedEvent{Payload: json.RawMessage(`[`)})
	assert.Error(t, err)
}
