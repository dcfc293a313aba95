package domain

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	referralCodeLength   = 8
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Referral records that one user brought in another. It never changes.
type Referral struct {
	id           uuid.UUID
	referrerID   uuid.UUID
	referredID   uuid.UUID
	rewardAmount int
	createdAt    time.Time
}

// NewReferral links referrer and referred with the standard reward.
func NewReferral(referrerID, referredID uuid.UUID, now time.Time) (*Referral, error) {
	if referrerID == referredID {
		return nil, ErrSelfReferral
	}
	return &Referral{
		id:           uuid.New(),
		referrerID:   referrerID,
		referredID:   referredID,
		rewardAmount: ReferralReward,
		createdAt:    now.UTC(),
	}, nil
}

// RehydrateReferral rebuilds a referral from storage.
func RehydrateReferral(id, referrerID, referredID uuid.UUID, rewardAmount int, createdAt time.Time) *Referral {
	return &Referral{
		id:           id,
		referrerID:   referrerID,
		referredID:   referredID,
		rewardAmount: rewardAmount,
		createdAt:    createdAt.UTC(),
	}
}

func (r *Referral) ID() uuid.UUID         { return r.id }
func (r *Referral) ReferrerID() uuid.UUID { return r.referrerID }
func (r *Referral) ReferredID() uuid.UUID { return r.referredID }
func (r *Referral) RewardAmount() int     { return r.rewardAmount }
func (r *Referral) CreatedAt() time.Time  { return r.createdAt }

// GenerateReferralCode returns a random code of uppercase letters and digits.
func GenerateReferralCode() (string, error) {
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	code := make([]byte, referralCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// IsValidReferralCode checks the shape of a code.
func IsValidReferralCode(code string) bool {
	if len(code) != referralCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
