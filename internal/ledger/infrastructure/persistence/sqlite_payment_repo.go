package persistence

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SQLitePaymentRepository persists payments in SQLite.
type SQLitePaymentRepository struct {
	conn database.Connection
}

// NewSQLitePaymentRepository creates a SQLite payment repository.
func NewSQLitePaymentRepository(conn database.Connection) *SQLitePaymentRepository {
	return &SQLitePaymentRepository{conn: conn}
}

// Save records the payment; the provider id pair must be new.
func (r *SQLitePaymentRepository) Save(ctx context.Context, p *domain.Payment) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO payments (id, provider, provider_payment_id, user_id, package_tag, amount, currency, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID().String(), p.Provider(), p.ProviderPaymentID(), p.UserID().String(), p.PackageTag(),
		p.Amount().String(), p.Currency(), p.Status(), sqlite.FormatTime(p.CreatedAt()),
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicatePayment
	}
	return err
}

// FindByProviderID returns a previously applied payment.
func (r *SQLitePaymentRepository) FindByProviderID(ctx context.Context, provider, providerPaymentID string) (*domain.Payment, error) {
	var (
		id, userID, tag, amount, currency, status, createdAt string
		prov, provID                                         string
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, `
		SELECT id, provider, provider_payment_id, user_id, package_tag, amount, currency, status, created_at
		FROM payments WHERE provider = ? AND provider_payment_id = ?`, provider, providerPaymentID,
	).Scan(&id, &prov, &provID, &userID, &tag, &amount, &currency, &status, &createdAt)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse payment id: %w", err)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse payment user id: %w", err)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse payment amount: %w", err)
	}

	return domain.RehydratePayment(domain.PaymentSnapshot{
		ID:                pid,
		Provider:          prov,
		ProviderPaymentID: provID,
		UserID:            uid,
		PackageTag:        tag,
		Amount:            value,
		Currency:          currency,
		Status:            status,
		CreatedAt:         sqlite.ParseTime(createdAt),
	}), nil
}

var _ domain.PaymentRepository = (*SQLitePaymentRepository)(nil)
