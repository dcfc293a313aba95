package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatusApplied marks a payment whose grant was applied.
const PaymentStatusApplied = "applied"

// Payment is a confirmed purchase, unique per provider and provider id.
type Payment struct {
	id                uuid.UUID
	provider          string
	providerPaymentID string
	userID            uuid.UUID
	packageTag        string
	amount            decimal.Decimal
	currency          string
	status            string
	createdAt         time.Time
}

// NewPayment validates that amount covers the package price in its currency.
func NewPayment(provider, providerPaymentID string, userID uuid.UUID, pkg Package, amount decimal.Decimal, currency string, now time.Time) (*Payment, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = pkg.Currency
	}
	if currency != pkg.Currency || amount.LessThan(pkg.Price) {
		return nil, ErrInvalidAmount
	}
	return &Payment{
		id:                uuid.New(),
		provider:          provider,
		providerPaymentID: providerPaymentID,
		userID:            userID,
		packageTag:        pkg.Tag,
		amount:            amount,
		currency:          currency,
		status:            PaymentStatusApplied,
		createdAt:         now.UTC(),
	}, nil
}

// PaymentSnapshot carries persisted payment state.
type PaymentSnapshot struct {
	ID                uuid.UUID
	Provider          string
	ProviderPaymentID string
	UserID            uuid.UUID
	PackageTag        string
	Amount            decimal.Decimal
	Currency          string
	Status            string
	CreatedAt         time.Time
}

// RehydratePayment rebuilds a payment from storage.
func RehydratePayment(s PaymentSnapshot) *Payment {
	return &Payment{
		id:                s.ID,
		provider:          s.Provider,
		providerPaymentID: s.ProviderPaymentID,
		userID:            s.UserID,
		packageTag:        s.PackageTag,
		amount:            s.Amount,
		currency:          s.Currency,
		status:            s.Status,
		createdAt:         s.CreatedAt.UTC(),
	}
}

func (p *Payment) ID() uuid.UUID             { return p.id }
func (p *Payment) Provider() string          { return p.provider }
func (p *Payment) ProviderPaymentID() string { return p.providerPaymentID }
func (p *Payment) UserID() uuid.UUID         { return p.userID }
func (p *Payment) PackageTag() string        { return p.packageTag }
func (p *Payment) Amount() decimal.Decimal   { return p.amount }
func (p *Payment) Currency() string          { return p.currency }
func (p *Payment) Status() string            { return p.status }
func (p *Payment) CreatedAt() time.Time      { return p.createdAt }
