package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	published [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, payload)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestProcessor_ProcessOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes envelopes and marks them", func(t *testing.T) {
		conn := dbtest.NewSQLite(t)
		repo := outbox.NewRepository(conn)
		msgs := newMessages(t, time.Now().UTC().Add(-time.Minute), 2)
		require.NoError(t, repo.SaveBatch(ctx, msgs))

		pub := &fakePublisher{}
		metrics := observability.NewInMemoryMetrics()
		p := outbox.NewProcessor(repo, pub, outbox.DefaultProcessorConfig(), metrics, nil)

		require.NoError(t, p.ProcessOnce(ctx))

		require.Equal(t, 2, pub.count())
		var envelope eventbus.ConsumedEvent
		require.NoError(t, json.Unmarshal(pub.published[0], &envelope))
		assert.Equal(t, msgs[0].EventID, envelope.EventID)
		assert.Equal(t, "ledger.credits.granted", envelope.RoutingKey)
		assert.JSONEq(t, `{"problem_credits":1}`, string(envelope.Payload))

		assert.Equal(t, uint64(2), p.GetStats().PublishedCount)
		assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricOutboxPublished,
			observability.T("routing_key", "ledger.credits.granted")))

		pending, err := repo.GetPending(ctx, time.Now().UTC().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("schedules a retry on failure", func(t *testing.T) {
		conn := dbtest.NewSQLite(t)
		repo := outbox.NewRepository(conn)
		require.NoError(t, repo.SaveBatch(ctx, newMessages(t, time.Now().UTC(), 1)))

		pub := &fakePublisher{failures: 1}
		p := outbox.NewProcessor(repo, pub, outbox.DefaultProcessorConfig(), nil, nil)

		require.NoError(t, p.ProcessOnce(ctx))
		assert.Equal(t, 0, pub.count())
		assert.Equal(t, uint64(1), p.GetStats().FailedCount)

		pending, err := repo.GetPending(ctx, time.Now().UTC().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, 1, pending[0].RetryCount)
	})

	t.Run("dead-letters after max retries", func(t *testing.T) {
		conn := dbtest.NewSQLite(t)
		repo := outbox.NewRepository(conn)
		require.NoError(t, repo.SaveBatch(ctx, newMessages(t, time.Now().UTC(), 1)))

		cfg := outbox.DefaultProcessorConfig()
		cfg.MaxRetries = 1
		p := outbox.NewProcessor(repo, &fakePublisher{failures: 5}, cfg, nil, nil)

		require.NoError(t, p.ProcessOnce(ctx))
		assert.Equal(t, uint64(1), p.GetStats().DeadCount)

		pending, err := repo.GetPending(ctx, time.Now().UTC().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestProcessor_StartStop(t *testing.T) {
	conn := dbtest.NewSQLite(t)
	repo := outbox.NewRepository(conn)
	require.NoError(t, repo.SaveBatch(context.Background(), newMessages(t, time.Now().UTC(), 1)))

	cfg := outbox.DefaultProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	pub := &fakePublisher{}
	p := outbox.NewProcessor(repo, pub, cfg, nil, nil)

	p.Start(context.Background())
	assert.True(t, p.IsRunning())
	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())
	p.Stop()
}
