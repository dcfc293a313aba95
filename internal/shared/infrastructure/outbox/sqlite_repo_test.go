package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type creditsGranted struct {
	domain.BaseEvent
	ProblemCredits int `json:"problem_credits"`
}

func newMessages(t *testing.T, at time.Time, n int) []*outbox.Message {
	t.Helper()
	events := make([]domain.DomainEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, &creditsGranted{
			BaseEvent:      domain.NewBaseEvent(uuid.New(), "User", "ledger.credits.granted", at.Add(time.Duration(i)*time.Second)),
			ProblemCredits: i + 1,
		})
	}
	msgs, err := outbox.NewMessages(events)
	require.NoError(t, err)
	return msgs
}

func TestSQLiteRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	repo := outbox.NewRepository(conn)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msgs := newMessages(t, now, 3)
	require.NoError(t, repo.SaveBatch(ctx, msgs))
	for _, msg := range msgs {
		assert.NotZero(t, msg.ID)
	}

	pending, err := repo.GetPending(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, msgs[0].EventID, pending[0].EventID)
	assert.JSONEq(t, `{"problem_credits":1}`, string(pending[0].Payload))

	require.NoError(t, repo.MarkPublished(ctx, pending[0].ID, now))
	require.NoError(t, repo.MarkFailed(ctx, pending[1].ID, "broker down", now.Add(time.Minute)))
	require.NoError(t, repo.MarkDead(ctx, pending[2].ID, "poison", now))

	pending, err = repo.GetPending(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed message waits for its retry time")

	pending, err = repo.GetPending(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "broker down", *pending[0].LastError)

	deleted, err := repo.DeleteOld(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestSQLiteRepository_SaveJoinsUnitOfWork(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	repo := outbox.NewRepository(conn)
	uow := database.NewUnitOfWork(conn)
	now := time.Now().UTC()

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.SaveBatch(txCtx, newMessages(t, now, 1)))
	require.NoError(t, uow.Rollback(txCtx))

	pending, err := repo.GetPending(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
