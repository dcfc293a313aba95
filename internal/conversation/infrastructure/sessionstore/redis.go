package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/counsel/internal/conversation/application"
	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces session keys.
const KeyPrefix = "counsel:session:"

// RedisStore keeps sessions in Redis as JSON. The TTL is refreshed on every
// save, so it acts as the idle timeout of a conversation.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl disables expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(userID uuid.UUID) string {
	return KeyPrefix + userID.String()
}

func (r *RedisStore) Load(ctx context.Context, userID uuid.UUID) (*domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.client.Del(ctx, sessionKey(userID)).Err()
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ application.SessionStore = (*RedisStore)(nil)
