package sessionstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func sampleSession(userID uuid.UUID) *domain.Session {
	s := domain.NewSession(userID, now)
	s.Transition(domain.AskingQuestions{
		ProblemID:     uuid.New(),
		Description:   "I keep postponing my thesis",
		History:       domain.History{}.Append(domain.SpeakerAssistant, "When did it start?"),
		QuestionIndex: 1,
	}, now)
	return s
}

func TestMemoryStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0, nil)
	userID := uuid.New()

	missing, err := store.Load(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	session := sampleSession(userID)
	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Load(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, domain.PhaseAskingQuestions, loaded.Phase())
	assert.Equal(t, session.State, loaded.State)

	require.NoError(t, store.Delete(ctx, userID))
	loaded, err = store.Load(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0, nil)
	userID := uuid.New()
	require.NoError(t, store.Save(ctx, sampleSession(userID)))

	loaded, err := store.Load(ctx, userID)
	require.NoError(t, err)
	loaded.Reset(now)

	again, err := store.Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAskingQuestions, again.Phase())
}

func TestMemoryStore_ExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	clock := sharedApplication.NewManualClock(now)
	store := NewMemoryStore(time.Hour, clock)
	userID := uuid.New()
	require.NoError(t, store.Save(ctx, sampleSession(userID)))

	clock.Advance(59 * time.Minute)
	loaded, err := store.Load(ctx, userID)
	require.NoError(t, err)
	assert.NotNil(t, loaded)

	clock.Advance(time.Minute)
	loaded, err = store.Load(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Zero(t, store.Len())
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, time.Minute)
	require.NoError(t, store.Ping(ctx))

	userID := uuid.New()
	require.NoError(t, store.Save(ctx, sampleSession(userID)))
	t.Cleanup(func() { _ = store.Delete(ctx, userID) })

	loaded, err := store.Load(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, domain.PhaseAskingQuestions, loaded.Phase())

	ttl, err := client.TTL(ctx, sessionKey(userID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
