package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
)

const aggregateType = "User"

// Routing keys of ledger events.
const (
	RoutingUserRegistered        = "ledger.user.registered"
	RoutingCreditsGranted        = "ledger.credits.granted"
	RoutingProblemCreditDebited  = "ledger.problem_credit.debited"
	RoutingDiscussionUnitDebited = "ledger.discussion_unit.debited"
	RoutingSubscriptionActivated = "ledger.subscription.activated"
	RoutingSubscriptionRenewed   = "ledger.subscription.renewed"
	RoutingSubscriptionCancelled = "ledger.subscription.cancelled"
	RoutingReferralRegistered    = "ledger.referral.registered"
	RoutingPaymentApplied        = "ledger.payment.applied"
	RoutingNotificationsPrefix   = "notifications.subscription."
	RoutingNotificationsBinding  = "notifications.#"
)

// GrantSource says why credits were added.
type GrantSource string

const (
	GrantSourcePackage        GrantSource = "package"
	GrantSourceDiscussionPack GrantSource = "discussion_pack"
	GrantSourceReferral       GrantSource = "referral"
)

// UserRegistered is emitted when a user is created.
type UserRegistered struct {
	sharedDomain.BaseEvent
	UserID         uuid.UUID `json:"user_id"`
	ExternalID     string    `json:"external_id"`
	ProblemCredits int       `json:"problem_credits"`
}

func NewUserRegistered(u *User, now time.Time) *UserRegistered {
	return &UserRegistered{
		BaseEvent:      sharedDomain.NewBaseEvent(u.ID(), aggregateType, RoutingUserRegistered, now),
		UserID:         u.ID(),
		ExternalID:     u.ExternalID(),
		ProblemCredits: u.ProblemCredits(),
	}
}

// CreditsGranted is emitted when problem or discussion credits are added.
type CreditsGranted struct {
	sharedDomain.BaseEvent
	UserID            uuid.UUID   `json:"user_id"`
	Source            GrantSource `json:"source"`
	PackageTag        string      `json:"package_tag,omitempty"`
	ProblemCredits    int         `json:"problem_credits"`
	DiscussionCredits int         `json:"discussion_credits"`
}

func NewCreditsGranted(u *User, source GrantSource, tag string, problems, discussions int, now time.Time) *CreditsGranted {
	return &CreditsGranted{
		BaseEvent:         sharedDomain.NewBaseEvent(u.ID(), aggregateType, RoutingCreditsGranted, now),
		UserID:            u.ID(),
		Source:            source,
		PackageTag:        tag,
		ProblemCredits:    problems,
		DiscussionCredits: discussions,
	}
}

// ProblemCreditDebited is emitted when a problem is started.
type ProblemCreditDebited struct {
	sharedDomain.BaseEvent
	UserID    uuid.UUID `json:"user_id"`
	Remaining int       `json:"remaining"`
}

func NewProblemCreditDebited(u *User, now time.Time) *ProblemCreditDebited {
	return &ProblemCreditDebited{
		BaseEvent: sharedDomain.NewBaseEvent(u.ID(), aggregateType, RoutingProblemCreditDebited, now),
		UserID:    u.ID(),
		Remaining: u.ProblemCredits(),
	}
}

// DiscussionUnitDebited is emitted when a purchased discussion credit is spent.
type DiscussionUnitDebited struct {
	sharedDomain.BaseEvent
	UserID            uuid.UUID `json:"user_id"`
	DiscussionCredits int       `json:"discussion_credits"`
}

func NewDiscussionUnitDebited(u *User, now time.Time) *DiscussionUnitDebited {
	return &DiscussionUnitDebited{
		BaseEvent:         sharedDomain.NewBaseEvent(u.ID(), aggregateType, RoutingDiscussionUnitDebited, now),
		UserID:            u.ID(),
		DiscussionCredits: u.DiscussionCredits(),
	}
}

// SubscriptionChanged is the body of activation, renewal and cancellation events.
type SubscriptionChanged struct {
	sharedDomain.BaseEvent
	UserID          uuid.UUID          `json:"user_id"`
	SubscriptionID  uuid.UUID          `json:"subscription_id"`
	Plan            string             `json:"plan"`
	Status          SubscriptionStatus `json:"status"`
	NextBillingDate time.Time          `json:"next_billing_date"`
	ProblemCredits  int                `json:"problem_credits"`
	Reason          string             `json:"reason,omitempty"`
}

func newSubscriptionChanged(u *User, s *Subscription, routingKey, reason string, now time.Time) *SubscriptionChanged {
	return &SubscriptionChanged{
		BaseEvent:       sharedDomain.NewBaseEvent(u.ID(), aggregateType, routingKey, now),
		UserID:          u.ID(),
		SubscriptionID:  s.ID(),
		Plan:            s.Plan(),
		Status:          s.Status(),
		NextBillingDate: s.NextBillingDate(),
		ProblemCredits:  u.ProblemCredits(),
		Reason:          reason,
	}
}

func NewSubscriptionActivated(u *User, s *Subscription, now time.Time) *SubscriptionChanged {
	return newSubscriptionChanged(u, s, RoutingSubscriptionActivated, "", now)
}

func NewSubscriptionRenewed(u *User, s *Subscription, now time.Time) *SubscriptionChanged {
	return newSubscriptionChanged(u, s, RoutingSubscriptionRenewed, "", now)
}

func NewSubscriptionCancelled(u *User, s *Subscription, reason string, now time.Time) *SubscriptionChanged {
	return newSubscriptionChanged(u, s, RoutingSubscriptionCancelled, reason, now)
}

// SubscriptionNoticeIssued carries a lifecycle notification to the user.
type SubscriptionNoticeIssued struct {
	sharedDomain.BaseEvent
	UserID          uuid.UUID   `json:"user_id"`
	ExternalID      string      `json:"external_id"`
	SubscriptionID  uuid.UUID   `json:"subscription_id"`
	Plan            string      `json:"plan"`
	Stage           NoticeStage `json:"stage"`
	Message         string      `json:"message"`
	NextBillingDate time.Time   `json:"next_billing_date"`
}

func NewSubscriptionNoticeIssued(u *User, s *Subscription, stage NoticeStage, message string, now time.Time) *SubscriptionNoticeIssued {
	return &SubscriptionNoticeIssued{
		BaseEvent:       sharedDomain.NewBaseEvent(u.ID(), aggregateType, RoutingNotificationsPrefix+string(stage), now),
		UserID:          u.ID(),
		ExternalID:      u.ExternalID(),
		SubscriptionID:  s.ID(),
		Plan:            s.Plan(),
		Stage:           stage,
		Message:         message,
		NextBillingDate: s.NextBillingDate(),
	}
}

// ReferralRegistered is emitted on the referrer when a referral is recorded.
type ReferralRegistered struct {
	sharedDomain.BaseEvent
	ReferralID   uuid.UUID `json:"referral_id"`
	ReferrerID   uuid.UUID `json:"referrer_id"`
	ReferredID   uuid.UUID `json:"referred_id"`
	RewardAmount int       `json:"reward_amount"`
}

func NewReferralRegistered(u *User, r *Referral, now time.Time) *ReferralRegistered {
	return &ReferralRegistered{
		BaseEvent:    sharedDomain.NewBaseEvent(u.ID(), aggregateType, RoutingReferralRegistered, now),
		ReferralID:   r.ID(),
		ReferrerID:   r.ReferrerID(),
		ReferredID:   r.ReferredID(),
		RewardAmount: r.RewardAmount(),
	}
}

// PaymentApplied is emitted once per confirmed payment.
type PaymentApplied struct {
	sharedDomain.BaseEvent
	UserID            uuid.UUID `json:"user_id"`
	PaymentID         uuid.UUID `json:"payment_id"`
	Provider          string    `json:"provider"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	PackageTag        string    `json:"package_tag"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
}

func NewPaymentApplied(u *User, p *Payment, now time.Time) *PaymentApplied {
	return &PaymentApplied{
		BaseEvent:         sharedDomain.NewBaseEvent(u.ID(), aggregateType, RoutingPaymentApplied, now),
		UserID:            u.ID(),
		PaymentID:         p.ID(),
		Provider:          p.Provider(),
		ProviderPaymentID: p.ProviderPaymentID(),
		PackageTag:        p.PackageTag(),
		Amount:            p.Amount().StringFixed(2),
		Currency:          p.Currency(),
	}
}
