package outbox

import (
	"context"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
)

// PostgresRepository stores outbox messages in PostgreSQL.
type PostgresRepository struct {
	conn database.Connection
}

// NewPostgresRepository creates a PostgreSQL outbox repository.
func NewPostgresRepository(conn database.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// SaveBatch inserts messages using the transaction in ctx when present.
func (r *PostgresRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	ex := database.ExecutorFromContext(ctx, r.conn)
	for _, msg := range msgs {
		err := ex.QueryRow(ctx, `
			INSERT INTO outbox (event_id, aggregate_type, aggregate_id, routing_key, payload, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			msg.EventID, msg.AggregateType, msg.AggregateID, msg.RoutingKey,
			[]byte(msg.Payload), []byte(msg.Metadata), msg.CreatedAt,
		).Scan(&msg.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetPending returns messages ready to publish, oldest first.
func (r *PostgresRepository) GetPending(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, routing_key, payload, metadata,
		       created_at, next_retry_at, retry_count, last_error
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			msg      Message
			payload  []byte
			metadata []byte
		)
		if err := rows.Scan(&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.RoutingKey,
			&payload, &metadata, &msg.CreatedAt, &msg.NextRetryAt, &msg.RetryCount, &msg.LastError); err != nil {
			return nil, err
		}
		msg.Payload = payload
		msg.Metadata = metadata
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = $2`, at, id)
	return err
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = $1, next_retry_at = $2 WHERE id = $3`,
		errMsg, nextRetryAt, id)
	return err
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, dead_lettered_at = $1, dead_letter_reason = $2 WHERE id = $3`,
		at, reason, id)
	return err
}

func (r *PostgresRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NewRepository picks the outbox implementation for the connection's driver.
func NewRepository(conn database.Connection) Repository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresRepository(conn)
	}
	return NewSQLiteRepository(conn)
}

var _ Repository = (*PostgresRepository)(nil)
