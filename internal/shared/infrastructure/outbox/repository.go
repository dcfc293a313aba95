package outbox

import (
	"context"
	"time"
)

// Repository persists outbox messages. Save calls join the caller's unit of work.
type Repository interface {
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetPending returns unpublished, live messages whose retry time has come.
	GetPending(ctx context.Context, now time.Time, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string, at time.Time) error

	// DeleteOld removes messages published before the cutoff.
	DeleteOld(ctx context.Context, before time.Time) (int64, error)
}
