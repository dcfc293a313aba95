package persistence

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/sqlite"
	"github.com/google/uuid"
)

// SQLiteReferralRepository persists referrals in SQLite.
type SQLiteReferralRepository struct {
	conn database.Connection
}

// NewSQLiteReferralRepository creates a SQLite referral repository.
func NewSQLiteReferralRepository(conn database.Connection) *SQLiteReferralRepository {
	return &SQLiteReferralRepository{conn: conn}
}

// Save inserts a referral. A second referral for the same user is a duplicate.
func (r *SQLiteReferralRepository) Save(ctx context.Context, referral *domain.Referral) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, reward_amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		referral.ID().String(), referral.ReferrerID().String(), referral.ReferredID().String(),
		referral.RewardAmount(), sqlite.FormatTime(referral.CreatedAt()),
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateReferral
	}
	return err
}

// FindByReferred returns the referral that brought in the user.
func (r *SQLiteReferralRepository) FindByReferred(ctx context.Context, referredID uuid.UUID) (*domain.Referral, error) {
	var id, referrerID, referred, createdAt string
	var reward int
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, `
		SELECT id, referrer_id, referred_id, reward_amount, created_at
		FROM referrals WHERE referred_id = ?`, referredID.String(),
	).Scan(&id, &referrerID, &referred, &reward, &createdAt)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rid, err1 := uuid.Parse(id)
	refID, err2 := uuid.Parse(referrerID)
	redID, err3 := uuid.Parse(referred)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("parse referral %s: invalid uuid", id)
	}
	return domain.RehydrateReferral(rid, refID, redID, reward, sqlite.ParseTime(createdAt)), nil
}

// CountByReferrer counts users brought in by the referrer.
func (r *SQLiteReferralRepository) CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int, error) {
	var n int
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = ?`, referrerID.String()).Scan(&n)
	return n, err
}

var _ domain.ReferralRepository = (*SQLiteReferralRepository)(nil)
