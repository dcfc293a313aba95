package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists users together with their current subscription.
// Find methods return nil, nil when nothing matches. Inside a unit of work
// FindByID locks the row where the database supports it.
type UserRepository interface {
	Save(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	FindByReferralCode(ctx context.Context, code string) (*User, error)
	ListWithActiveSubscription(ctx context.Context) ([]*User, error)
}

// ReferralRepository persists referrals.
type ReferralRepository interface {
	Save(ctx context.Context, referral *Referral) error
	FindByReferred(ctx context.Context, referredID uuid.UUID) (*Referral, error)
	CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int, error)
}

// PaymentRepository persists applied payments. Save returns
// ErrDuplicatePayment when the provider id was already recorded.
type PaymentRepository interface {
	Save(ctx context.Context, payment *Payment) error
	FindByProviderID(ctx context.Context, provider, providerPaymentID string) (*Payment, error)
}
