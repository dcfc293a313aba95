package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/sqlite"
	"github.com/google/uuid"
)

// SQLiteRepository stores outbox messages in SQLite.
type SQLiteRepository struct {
	conn database.Connection
}

// NewSQLiteRepository creates a SQLite outbox repository.
func NewSQLiteRepository(conn database.Connection) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

// SaveBatch inserts messages using the transaction in ctx when present.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	ex := database.ExecutorFromContext(ctx, r.conn)
	for _, msg := range msgs {
		var id int64
		err := ex.QueryRow(ctx, `
			INSERT INTO outbox (event_id, aggregate_type, aggregate_id, routing_key, payload, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			msg.EventID.String(), msg.AggregateType, msg.AggregateID.String(), msg.RoutingKey,
			string(msg.Payload), string(msg.Metadata), sqlite.FormatTime(msg.CreatedAt),
		).Scan(&id)
		if err != nil {
			return err
		}
		msg.ID = id
	}
	return nil
}

// GetPending returns messages ready to publish, oldest first.
func (r *SQLiteRepository) GetPending(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, routing_key, payload, metadata,
		       created_at, next_retry_at, retry_count, last_error
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id
		LIMIT ?`, sqlite.FormatTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			msg         Message
			eventID     string
			aggregateID string
			payload     string
			metadata    sql.NullString
			createdAt   string
			nextRetryAt sql.NullString
			lastError   sql.NullString
		)
		if err := rows.Scan(&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.RoutingKey,
			&payload, &metadata, &createdAt, &nextRetryAt, &msg.RetryCount, &lastError); err != nil {
			return nil, err
		}
		msg.EventID, _ = uuid.Parse(eventID)
		msg.AggregateID, _ = uuid.Parse(aggregateID)
		msg.Payload = []byte(payload)
		if metadata.Valid {
			msg.Metadata = []byte(metadata.String)
		}
		msg.CreatedAt = sqlite.ParseTime(createdAt)
		msg.NextRetryAt = sqlite.ParseNullTime(nextRetryAt)
		if lastError.Valid {
			msg.LastError = &lastError.String
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET published_at = ? WHERE id = ?`, sqlite.FormatTime(at), id)
	return err
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?`,
		errMsg, sqlite.FormatTime(nextRetryAt), id)
	return err
}

func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`,
		sqlite.FormatTime(at), reason, id)
	return err
}

func (r *SQLiteRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`, sqlite.FormatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ Repository = (*SQLiteRepository)(nil)
