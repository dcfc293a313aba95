package persistence

import (
	"context"
	"time"

	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// PostgresReferralRepository persists referrals in PostgreSQL.
type PostgresReferralRepository struct {
	conn database.Connection
}

// NewPostgresReferralRepository creates a PostgreSQL referral repository.
func NewPostgresReferralRepository(conn database.Connection) *PostgresReferralRepository {
	return &PostgresReferralRepository{conn: conn}
}

func (r *PostgresReferralRepository) Save(ctx context.Context, referral *domain.Referral) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, reward_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		referral.ID(), referral.ReferrerID(), referral.ReferredID(), referral.RewardAmount(), referral.CreatedAt(),
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateReferral
	}
	return err
}

func (r *PostgresReferralRepository) FindByReferred(ctx context.Context, referredID uuid.UUID) (*domain.Referral, error) {
	var (
		id, referrerID, referred uuid.UUID
		reward                   int
		createdAt                time.Time
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, `
		SELECT id, referrer_id, referred_id, reward_amount, created_at
		FROM referrals WHERE referred_id = $1`, referredID,
	).Scan(&id, &referrerID, &referred, &reward, &createdAt)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.RehydrateReferral(id, referrerID, referred, reward, createdAt), nil
}

func (r *PostgresReferralRepository) CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int, error) {
	var n int
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`, referrerID).Scan(&n)
	return n, err
}

var _ domain.ReferralRepository = (*PostgresReferralRepository)(nil)
