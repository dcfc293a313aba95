package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCycle is the period between two billing dates.
const BillingCycle = 30 * 24 * time.Hour

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// NoticeStage identifies a lifecycle notification.
type NoticeStage string

const (
	NoticeNone       NoticeStage = ""
	NoticeReminder   NoticeStage = "reminder"
	NoticeRenewalDue NoticeStage = "renewal_due"
	NoticeCancelled  NoticeStage = "cancelled"
)

// Subscription is a monthly plan owned by exactly one user.
type Subscription struct {
	sharedDomain.BaseEntity
	userID            uuid.UUID
	plan              string
	packageTag        string
	price             decimal.Decimal
	solutionsPerMonth int
	discussionLimit   int
	status            SubscriptionStatus
	nextBillingDate   time.Time
	cancelledAt       *time.Time
	lastNotice        NoticeStage
	lastNoticeFor     *time.Time
}

func newSubscription(userID uuid.UUID, pkg Package, now time.Time) *Subscription {
	now = now.UTC()
	return &Subscription{
		BaseEntity:        sharedDomain.NewBaseEntity(now),
		userID:            userID,
		plan:              pkg.Plan,
		packageTag:        pkg.Tag,
		price:             pkg.Price,
		solutionsPerMonth: pkg.Solutions,
		discussionLimit:   pkg.DiscussionBase,
		status:            SubscriptionActive,
		nextBillingDate:   now.Add(BillingCycle),
	}
}

// SubscriptionSnapshot carries persisted subscription state.
type SubscriptionSnapshot struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Plan              string
	PackageTag        string
	Price             decimal.Decimal
	SolutionsPerMonth int
	DiscussionLimit   int
	Status            SubscriptionStatus
	NextBillingDate   time.Time
	CancelledAt       *time.Time
	LastNotice        NoticeStage
	LastNoticeFor     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RehydrateSubscription rebuilds a subscription from storage.
func RehydrateSubscription(s SubscriptionSnapshot) *Subscription {
	return &Subscription{
		BaseEntity:        sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt),
		userID:            s.UserID,
		plan:              s.Plan,
		packageTag:        s.PackageTag,
		price:             s.Price,
		solutionsPerMonth: s.SolutionsPerMonth,
		discussionLimit:   s.DiscussionLimit,
		status:            s.Status,
		nextBillingDate:   s.NextBillingDate.UTC(),
		cancelledAt:       s.CancelledAt,
		lastNotice:        s.LastNotice,
		lastNoticeFor:     s.LastNoticeFor,
	}
}

func (s *Subscription) UserID() uuid.UUID          { return s.userID }
func (s *Subscription) Plan() string               { return s.plan }
func (s *Subscription) PackageTag() string         { return s.packageTag }
func (s *Subscription) Price() decimal.Decimal     { return s.price }
func (s *Subscription) SolutionsPerMonth() int     { return s.solutionsPerMonth }
func (s *Subscription) DiscussionLimit() int       { return s.discussionLimit }
func (s *Subscription) Status() SubscriptionStatus { return s.status }
func (s *Subscription) NextBillingDate() time.Time { return s.nextBillingDate }
func (s *Subscription) CancelledAt() *time.Time    { return s.cancelledAt }
func (s *Subscription) LastNotice() NoticeStage    { return s.lastNotice }
func (s *Subscription) LastNoticeFor() *time.Time  { return s.lastNoticeFor }
func (s *Subscription) IsActive() bool             { return s.status == SubscriptionActive }

// Snapshot exports the state for persistence.
func (s *Subscription) Snapshot() SubscriptionSnapshot {
	return SubscriptionSnapshot{
		ID:                s.ID(),
		UserID:            s.userID,
		Plan:              s.plan,
		PackageTag:        s.packageTag,
		Price:             s.price,
		SolutionsPerMonth: s.solutionsPerMonth,
		DiscussionLimit:   s.discussionLimit,
		Status:            s.status,
		NextBillingDate:   s.nextBillingDate,
		CancelledAt:       s.cancelledAt,
		LastNotice:        s.lastNotice,
		LastNoticeFor:     s.lastNoticeFor,
		CreatedAt:         s.CreatedAt(),
		UpdatedAt:         s.UpdatedAt(),
	}
}

// DaysUntilRenewal counts UTC calendar days from now to the billing date.
// Negative values mean the billing date has passed.
func (s *Subscription) DaysUntilRenewal(now time.Time) int {
	return CalendarDaysUntil(now, s.nextBillingDate)
}

// NoticeSent reports whether stage was already issued for the current billing date.
func (s *Subscription) NoticeSent(stage NoticeStage) bool {
	return s.lastNotice == stage &&
		s.lastNoticeFor != nil &&
		s.lastNoticeFor.Equal(s.nextBillingDate)
}

func (s *Subscription) renew(pkg Package, now time.Time) {
	s.plan = pkg.Plan
	s.packageTag = pkg.Tag
	s.price = pkg.Price
	s.solutionsPerMonth = pkg.Solutions
	s.discussionLimit = pkg.DiscussionBase
	s.nextBillingDate = s.nextBillingDate.Add(BillingCycle)
	s.Touch(now)
}

func (s *Subscription) cancel(now time.Time) {
	now = now.UTC()
	s.status = SubscriptionCancelled
	s.cancelledAt = &now
	s.Touch(now)
}

func (s *Subscription) recordNotice(stage NoticeStage, now time.Time) {
	billingDate := s.nextBillingDate
	s.lastNotice = stage
	s.lastNoticeFor = &billingDate
	s.Touch(now)
}

// CalendarDaysUntil counts UTC calendar days between two instants.
func CalendarDaysUntil(from, to time.Time) int {
	f := from.UTC()
	t := to.UTC()
	fromDate := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	toDate := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDate.Sub(fromDate).Hours() / 24)
}
