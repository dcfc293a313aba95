package application

import (
	"time"

	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/google/uuid"
)

// SubscriptionView is a read model of a subscription.
type SubscriptionView struct {
	ID              uuid.UUID                 `json:"id"`
	UserID          uuid.UUID                 `json:"user_id"`
	ExternalID      string                    `json:"external_id"`
	Plan            string                    `json:"plan"`
	Price           string                    `json:"price"`
	DiscussionLimit int                       `json:"discussion_limit"`
	Status          domain.SubscriptionStatus `json:"status"`
	NextBillingDate time.Time                 `json:"next_billing_date"`
	CancelledAt     *time.Time                `json:"cancelled_at,omitempty"`
	LastNotice      domain.NoticeStage        `json:"last_notice,omitempty"`
}

// Balance is a snapshot of everything a user may still do.
type Balance struct {
	UserID               uuid.UUID         `json:"user_id"`
	ExternalID           string            `json:"external_id"`
	DisplayName          string            `json:"display_name,omitempty"`
	ProblemCredits       int               `json:"problem_credits"`
	DiscussionCredits    int               `json:"discussion_credits"`
	BaseAllowance        int               `json:"base_allowance"`
	DiscussionAllowance  int               `json:"discussion_allowance"`
	LastPurchasedPackage string            `json:"last_purchased_package,omitempty"`
	Subscription         *SubscriptionView `json:"subscription,omitempty"`
	ReferralCode         string            `json:"referral_code,omitempty"`
	ReferralCredits      int               `json:"referral_credits"`
	Referrals            int               `json:"referrals"`
}

func toSubscriptionView(u *domain.User, s *domain.Subscription) *SubscriptionView {
	if s == nil {
		return nil
	}
	return &SubscriptionView{
		ID:              s.ID(),
		UserID:          u.ID(),
		ExternalID:      u.ExternalID(),
		Plan:            s.Plan(),
		Price:           s.Price().StringFixed(2),
		DiscussionLimit: s.DiscussionLimit(),
		Status:          s.Status(),
		NextBillingDate: s.NextBillingDate(),
		CancelledAt:     s.CancelledAt(),
		LastNotice:      s.LastNotice(),
	}
}

func toBalance(u *domain.User, referrals int) *Balance {
	return &Balance{
		UserID:               u.ID(),
		ExternalID:           u.ExternalID(),
		DisplayName:          u.DisplayName(),
		ProblemCredits:       u.ProblemCredits(),
		DiscussionCredits:    u.DiscussionCredits(),
		BaseAllowance:        u.BaseDiscussionAllowance(),
		DiscussionAllowance:  u.DiscussionAllowance(),
		LastPurchasedPackage: u.LastPurchasedPackage(),
		Subscription:         toSubscriptionView(u, u.Subscription()),
		ReferralCode:         u.ReferralCode(),
		ReferralCredits:      u.ReferralCredits(),
		Referrals:            referrals,
	}
}
