package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostgresPaymentRepository persists payments in PostgreSQL.
type PostgresPaymentRepository struct {
	conn database.Connection
}

// NewPostgresPaymentRepository creates a PostgreSQL payment repository.
func NewPostgresPaymentRepository(conn database.Connection) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{conn: conn}
}

func (r *PostgresPaymentRepository) Save(ctx context.Context, p *domain.Payment) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO payments (id, provider, provider_payment_id, user_id, package_tag, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9)`,
		p.ID(), p.Provider(), p.ProviderPaymentID(), p.UserID(), p.PackageTag(),
		p.Amount().String(), p.Currency(), p.Status(), p.CreatedAt(),
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicatePayment
	}
	return err
}

func (r *PostgresPaymentRepository) FindByProviderID(ctx context.Context, provider, providerPaymentID string) (*domain.Payment, error) {
	var (
		id, userID                                  uuid.UUID
		prov, provID, tag, amount, currency, status string
		createdAt                                   time.Time
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, `
		SELECT id, provider, provider_payment_id, user_id, package_tag, amount::text, currency, status, created_at
		FROM payments WHERE provider = $1 AND provider_payment_id = $2`, provider, providerPaymentID,
	).Scan(&id, &prov, &provID, &userID, &tag, &amount, &currency, &status, &createdAt)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse payment amount: %w", err)
	}
	return domain.RehydratePayment(domain.PaymentSnapshot{
		ID:                id,
		Provider:          prov,
		ProviderPaymentID: provID,
		UserID:            userID,
		PackageTag:        tag,
		Amount:            value,
		Currency:          currency,
		Status:            status,
		CreatedAt:         createdAt,
	}), nil
}

var _ domain.PaymentRepository = (*PostgresPaymentRepository)(nil)
