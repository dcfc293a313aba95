package domain

import (
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
)

// NewUserProblemCredits is the free problem every new user starts with.
const NewUserProblemCredits = 1

// ReferralReward is granted to both sides of a referral.
const ReferralReward = 1

// User is the aggregate root for all balances of one person.
type User struct {
	sharedDomain.BaseAggregateRoot
	externalID           string
	displayName          string
	problemCredits       int
	discussionCredits    int
	lastPurchasedPackage string
	referralCode         string
	referralCredits      int
	referredBy           *uuid.UUID
	subscription         *Subscription
}

// NewUser registers a user with the free starting balance.
func NewUser(externalID, displayName string, now time.Time) (*User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrEmptyExternalID
	}

	u := &User{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		externalID:        externalID,
		displayName:       strings.TrimSpace(displayName),
		problemCredits:    NewUserProblemCredits,
	}
	u.AddDomainEvent(NewUserRegistered(u, now))
	return u, nil
}

// UserSnapshot carries persisted user state.
type UserSnapshot struct {
	ID                   uuid.UUID
	ExternalID           string
	DisplayName          string
	ProblemCredits       int
	DiscussionCredits    int
	LastPurchasedPackage string
	ReferralCode         string
	ReferralCredits      int
	ReferredBy           *uuid.UUID
	Subscription         *Subscription
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RehydrateUser rebuilds a user from storage.
func RehydrateUser(s UserSnapshot) *User {
	return &User{
		BaseAggregateRoot:    sharedDomain.RehydrateBaseAggregateRoot(s.ID, s.CreatedAt, s.UpdatedAt, s.Version),
		externalID:           s.ExternalID,
		displayName:          s.DisplayName,
		problemCredits:       s.ProblemCredits,
		discussionCredits:    s.DiscussionCredits,
		lastPurchasedPackage: s.LastPurchasedPackage,
		referralCode:         s.ReferralCode,
		referralCredits:      s.ReferralCredits,
		referredBy:           s.ReferredBy,
		subscription:         s.Subscription,
	}
}

// Getters
func (u *User) ExternalID() string           { return u.externalID }
func (u *User) DisplayName() string          { return u.displayName }
func (u *User) ProblemCredits() int          { return u.problemCredits }
func (u *User) DiscussionCredits() int       { return u.discussionCredits }
func (u *User) LastPurchasedPackage() string { return u.lastPurchasedPackage }
func (u *User) ReferralCode() string         { return u.referralCode }
func (u *User) ReferralCredits() int         { return u.referralCredits }
func (u *User) ReferredBy() *uuid.UUID       { return u.referredBy }
func (u *User) Subscription() *Subscription  { return u.subscription }

// ActiveSubscription returns the subscription only while it is active.
func (u *User) ActiveSubscription() *Subscription {
	if u.subscription != nil && u.subscription.IsActive() {
		return u.subscription
	}
	return nil
}

// CanStartProblem reports whether a problem credit is available.
func (u *User) CanStartProblem() bool {
	return u.problemCredits > 0
}

// DebitProblemCredit spends one problem credit. An empty balance is refused.
func (u *User) DebitProblemCredit(now time.Time) error {
	if u.problemCredits <= 0 {
		return ErrInsufficientCredits
	}
	u.problemCredits--
	u.Touch(now)
	u.AddDomainEvent(NewProblemCreditDebited(u, now))
	return nil
}

// BaseDiscussionAllowance is the rate-limited part of the allowance. An
// active subscription replaces the package-derived base entirely.
func (u *User) BaseDiscussionAllowance() int {
	if sub := u.ActiveSubscription(); sub != nil {
		return sub.DiscussionLimit()
	}
	return BaseAllowance(u.lastPurchasedPackage)
}

// DiscussionAllowance is the base allowance plus purchased discussion credits.
func (u *User) DiscussionAllowance() int {
	return u.BaseDiscussionAllowance() + u.discussionCredits
}

// DebitDiscussionUnit consumes the unit after sessionUsed units. Units
// inside the base allowance cost nothing; units beyond it spend one
// purchased credit, clamped at zero. It returns the remaining count
// computed against the allowance before the debit and whether a
// purchased credit was spent.
func (u *User) DebitDiscussionUnit(sessionUsed int, now time.Time) (remaining int, purchased bool) {
	allowance := u.DiscussionAllowance()
	if sessionUsed >= u.BaseDiscussionAllowance() && u.discussionCredits > 0 {
		u.discussionCredits--
		purchased = true
		u.Touch(now)
		u.AddDomainEvent(NewDiscussionUnitDebited(u, now))
	}
	return allowance - (sessionUsed + 1), purchased
}

// GrantPackage applies a one-time package.
func (u *User) GrantPackage(pkg Package, now time.Time) error {
	if pkg.Kind != KindOneTime {
		return ErrPackageKindMismatch
	}
	u.problemCredits += pkg.Solutions
	u.lastPurchasedPackage = pkg.Tag
	u.Touch(now)
	u.AddDomainEvent(NewCreditsGranted(u, GrantSourcePackage, pkg.Tag, pkg.Solutions, 0, now))
	return nil
}

// GrantDiscussionPack adds purchased discussion credits.
func (u *User) GrantDiscussionPack(pkg Package, now time.Time) error {
	if pkg.Kind != KindDiscussionPack {
		return ErrPackageKindMismatch
	}
	u.discussionCredits += pkg.Discussions
	u.Touch(now)
	u.AddDomainEvent(NewCreditsGranted(u, GrantSourceDiscussionPack, pkg.Tag, 0, pkg.Discussions, now))
	return nil
}

// ActivateOrRenewSubscription starts a subscription, or renews the active
// one by one billing cycle. Each call adds the monthly solutions on top of
// the current balance. It reports whether an existing subscription was renewed.
func (u *User) ActivateOrRenewSubscription(pkg Package, now time.Time) (bool, error) {
	if pkg.Kind != KindSubscription {
		return false, ErrPackageKindMismatch
	}

	renewed := false
	if sub := u.ActiveSubscription(); sub != nil {
		sub.renew(pkg, now)
		renewed = true
	} else {
		u.subscription = newSubscription(u.ID(), pkg, now)
	}

	u.problemCredits += pkg.Solutions
	u.Touch(now)
	if renewed {
		u.AddDomainEvent(NewSubscriptionRenewed(u, u.subscription, now))
	} else {
		u.AddDomainEvent(NewSubscriptionActivated(u, u.subscription, now))
	}
	return renewed, nil
}

// CancelSubscription cancels the active subscription. Credits are kept.
// Cancelling a subscription that is no longer active is a no-op and
// reports false.
func (u *User) CancelSubscription(reason string, now time.Time) (bool, error) {
	if u.subscription == nil {
		return false, ErrNoActiveSubscription
	}
	if !u.subscription.IsActive() {
		return false, nil
	}
	u.subscription.cancel(now)
	u.Touch(now)
	u.AddDomainEvent(NewSubscriptionCancelled(u, u.subscription, reason, now))
	return true, nil
}

// BillsOn reports whether the active subscription's next billing date is
// date. A renewal moves the date, so a caller holding an older view can
// detect that it is stale.
func (u *User) BillsOn(date time.Time) bool {
	sub := u.ActiveSubscription()
	return sub != nil && sub.NextBillingDate().Equal(date)
}

// IssueNotice records a lifecycle notice for the current billing date.
// It reports false when the same stage was already issued for that date.
func (u *User) IssueNotice(stage NoticeStage, message string, now time.Time) (bool, error) {
	if u.subscription == nil {
		return false, ErrNoActiveSubscription
	}
	if u.subscription.NoticeSent(stage) {
		return false, nil
	}
	u.subscription.recordNotice(stage, now)
	u.Touch(now)
	u.AddDomainEvent(NewSubscriptionNoticeIssued(u, u.subscription, stage, message, now))
	return true, nil
}

// RewardReferrer credits the referrer side of a referral.
func (u *User) RewardReferrer(referral *Referral, now time.Time) {
	u.problemCredits += referral.RewardAmount()
	u.referralCredits++
	u.Touch(now)
	u.AddDomainEvent(NewReferralRegistered(u, referral, now))
	u.AddDomainEvent(NewCreditsGranted(u, GrantSourceReferral, "", referral.RewardAmount(), 0, now))
}

// AcceptReferral credits the referred side and remembers the referrer.
func (u *User) AcceptReferral(referral *Referral, now time.Time) {
	referrer := referral.ReferrerID()
	u.problemCredits += referral.RewardAmount()
	u.referredBy = &referrer
	u.Touch(now)
	u.AddDomainEvent(NewCreditsGranted(u, GrantSourceReferral, "", referral.RewardAmount(), 0, now))
}

// AssignReferralCode sets the referral code once.
func (u *User) AssignReferralCode(code string, now time.Time) error {
	if u.referralCode != "" {
		return ErrReferralCodeTaken
	}
	u.referralCode = code
	u.Touch(now)
	return nil
}

// RecordPayment notes that a confirmed payment was applied to this user.
func (u *User) RecordPayment(payment *Payment, now time.Time) {
	u.Touch(now)
	u.AddDomainEvent(NewPaymentApplied(u, payment, now))
}
