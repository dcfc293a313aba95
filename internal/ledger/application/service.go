package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const referralCodeAttempts = 5

// Dependencies wires the ledger service.
type Dependencies struct {
	Users      domain.UserRepository
	Referrals  domain.ReferralRepository
	Payments   domain.PaymentRepository
	Outbox     outbox.Repository
	UnitOfWork sharedApplication.UnitOfWork
	Clock      sharedApplication.Clock
	Metrics    observability.Metrics
	Logger     *slog.Logger
}

// Service is the only writer of balances and subscriptions. Mutations for
// one user are serialized by a per-user lock and run in one transaction
// together with their outbox messages.
type Service struct {
	users     domain.UserRepository
	referrals domain.ReferralRepository
	payments  domain.PaymentRepository
	outbox    outbox.Repository
	uow       sharedApplication.UnitOfWork
	clock     sharedApplication.Clock
	metrics   observability.Metrics
	logger    *slog.Logger

	userLocks     *sharedApplication.KeyedMutex[uuid.UUID]
	externalLocks *sharedApplication.KeyedMutex[string]
}

// NewService creates the ledger service.
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = sharedApplication.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		users:         deps.Users,
		referrals:     deps.Referrals,
		payments:      deps.Payments,
		outbox:        deps.Outbox,
		uow:           deps.UnitOfWork,
		clock:         deps.Clock,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		userLocks:     sharedApplication.NewKeyedMutex[uuid.UUID](),
		externalLocks: sharedApplication.NewKeyedMutex[string](),
	}
}

// RegisterUserCommand identifies a transport user.
type RegisterUserCommand struct {
	ExternalID   string
	DisplayName  string
	ReferralCode string
}

// RegisterUserResult reports what registration did.
type RegisterUserResult struct {
	UserID          uuid.UUID
	Created         bool
	ReferralApplied bool
}

// RegisterUser returns the user for the external id, creating it with the
// free starting balance when unknown. A referral code only counts for
// newly created users; an unknown code is logged and ignored.
func (s *Service) RegisterUser(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	externalID := strings.TrimSpace(cmd.ExternalID)
	unlock := s.externalLocks.Lock(externalID)
	defer unlock()

	existing, err := s.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &RegisterUserResult{UserID: existing.ID()}, nil
	}

	user, err := domain.NewUser(externalID, cmd.DisplayName, s.clock.Now())
	if err != nil {
		return nil, err
	}
	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		return s.persist(txCtx, user)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID(), "external_id", externalID)

	result := &RegisterUserResult{UserID: user.ID(), Created: true}
	if code := strings.ToUpper(strings.TrimSpace(cmd.ReferralCode)); code != "" {
		applied, err := s.registerReferralByCode(ctx, code, user.ID())
		if err != nil {
			s.logger.WarnContext(ctx, "referral not applied", "user_id", user.ID(), "code", code, "error", err)
		}
		result.ReferralApplied = applied
	}
	return result, nil
}

func (s *Service) registerReferralByCode(ctx context.Context, code string, referredID uuid.UUID) (bool, error) {
	referrer, err := s.users.FindByReferralCode(ctx, code)
	if err != nil {
		return false, err
	}
	if referrer == nil {
		return false, domain.ErrReferralCodeNotFound
	}
	return s.RegisterReferral(ctx, referrer.ID(), referredID)
}

// FindByExternalID returns the user or ErrUserNotFound.
func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	user, err := s.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// CanStartProblem reports whether the user holds a problem credit.
func (s *Service) CanStartProblem(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.CanStartProblem(), nil
}

// DebitProblemCredit spends one problem credit and returns what is left.
func (s *Service) DebitProblemCredit(ctx context.Context, userID uuid.UUID) (int, error) {
	var remaining int
	err := s.mutate(ctx, userID, func(_ context.Context, user *domain.User) error {
		if err := user.DebitProblemCredit(s.clock.Now()); err != nil {
			return err
		}
		remaining = user.ProblemCredits()
		return nil
	})
	return remaining, err
}

// DiscussionAllowance derives the current discussion allowance.
func (s *Service) DiscussionAllowance(ctx context.Context, userID uuid.UUID) (int, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.DiscussionAllowance(), nil
}

// DiscussionDebit is the outcome of consuming one discussion unit.
type DiscussionDebit struct {
	Remaining int
	Purchased bool
}

// DebitDiscussionUnit consumes the unit following sessionUsed units.
func (s *Service) DebitDiscussionUnit(ctx context.Context, userID uuid.UUID, sessionUsed int) (DiscussionDebit, error) {
	var debit DiscussionDebit
	err := s.mutate(ctx, userID, func(_ context.Context, user *domain.User) error {
		debit.Remaining, debit.Purchased = user.DebitDiscussionUnit(sessionUsed, s.clock.Now())
		return nil
	})
	return debit, err
}

// GrantPackage applies a one-time package by tag.
func (s *Service) GrantPackage(ctx context.Context, userID uuid.UUID, tag string) error {
	pkg, err := domain.LookupPackage(tag)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, userID, func(_ context.Context, user *domain.User) error {
		return user.GrantPackage(pkg, s.clock.Now())
	})
	if err == nil {
		s.metrics.Counter(observability.MetricLedgerGrants, 1, observability.T("kind", string(pkg.Kind)))
	}
	return err
}

// GrantDiscussionPack adds the credits of a discussion pack by tag.
func (s *Service) GrantDiscussionPack(ctx context.Context, userID uuid.UUID, tag string) error {
	pkg, err := domain.LookupPackage(tag)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, userID, func(_ context.Context, user *domain.User) error {
		return user.GrantDiscussionPack(pkg, s.clock.Now())
	})
	if err == nil {
		s.metrics.Counter(observability.MetricLedgerGrants, 1, observability.T("kind", string(pkg.Kind)))
	}
	return err
}

// CreateOrRenewSubscription activates the plan or renews the active
// subscription. It reports whether this was a renewal.
func (s *Service) CreateOrRenewSubscription(ctx context.Context, userID uuid.UUID, plan string) (bool, error) {
	pkg, err := domain.PackageForPlan(plan)
	if err != nil {
		return false, err
	}
	var renewed bool
	err = s.mutate(ctx, userID, func(_ context.Context, user *domain.User) error {
		renewed, err = user.ActivateOrRenewSubscription(pkg, s.clock.Now())
		return err
	})
	if err == nil {
		s.metrics.Counter(observability.MetricLedgerGrants, 1, observability.T("kind", string(pkg.Kind)))
	}
	return renewed, err
}

// Grant applies any catalog package, dispatching by its kind.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, tag string) error {
	pkg, err := domain.LookupPackage(tag)
	if err != nil {
		return err
	}
	switch pkg.Kind {
	case domain.KindOneTime:
		return s.GrantPackage(ctx, userID, tag)
	case domain.KindDiscussionPack:
		return s.GrantDiscussionPack(ctx, userID, tag)
	default:
		_, err := s.CreateOrRenewSubscription(ctx, userID, pkg.Plan)
		return err
	}
}

// CancelSubscriptionCommand cancels the active subscription.
// A non-empty Notice is issued to the user in the same transaction.
// A non-zero ExpectedBillingDate makes the cancel conditional: it only
// applies while the subscription still bills on that date.
type CancelSubscriptionCommand struct {
	UserID              uuid.UUID
	Reason              string
	Notice              string
	ExpectedBillingDate time.Time
}

// CancelSubscription cancels the user's subscription. It reports false
// when the subscription was already no longer active.
func (s *Service) CancelSubscription(ctx context.Context, cmd CancelSubscriptionCommand) (bool, error) {
	var cancelled bool
	err := s.mutate(ctx, cmd.UserID, func(_ context.Context, user *domain.User) error {
		if !cmd.ExpectedBillingDate.IsZero() && !user.BillsOn(cmd.ExpectedBillingDate) {
			return nil
		}
		now := s.clock.Now()
		var err error
		cancelled, err = user.CancelSubscription(cmd.Reason, now)
		if err != nil || !cancelled || cmd.Notice == "" {
			return err
		}
		_, err = user.IssueNotice(domain.NoticeCancelled, cmd.Notice, now)
		return err
	})
	return cancelled, err
}

// IssueNoticeCommand issues a lifecycle notice. A non-zero BillingDate
// skips the notice once the subscription no longer bills on that date.
type IssueNoticeCommand struct {
	UserID      uuid.UUID
	Stage       domain.NoticeStage
	Message     string
	BillingDate time.Time
}

// IssueNotice records a lifecycle notification for the current billing
// date. It reports false when the stage was already issued or the billing
// date moved on.
func (s *Service) IssueNotice(ctx context.Context, cmd IssueNoticeCommand) (bool, error) {
	var sent bool
	err := s.mutate(ctx, cmd.UserID, func(_ context.Context, user *domain.User) error {
		if !cmd.BillingDate.IsZero() && !user.BillsOn(cmd.BillingDate) {
			return nil
		}
		var err error
		sent, err = user.IssueNotice(cmd.Stage, cmd.Message, s.clock.Now())
		return err
	})
	return sent, err
}

// RegisterReferral rewards both users once. A second referral for the same
// referred user is a no-op and reports false.
func (s *Service) RegisterReferral(ctx context.Context, referrerID, referredID uuid.UUID) (bool, error) {
	if referrerID == referredID {
		return false, domain.ErrSelfReferral
	}

	applied := false
	err := s.mutateMany(ctx, []uuid.UUID{referrerID, referredID}, func(txCtx context.Context, users map[uuid.UUID]*domain.User) error {
		existing, err := s.referrals.FindByReferred(txCtx, referredID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateReferral
		}

		now := s.clock.Now()
		referral, err := domain.NewReferral(referrerID, referredID, now)
		if err != nil {
			return err
		}
		if err := s.referrals.Save(txCtx, referral); err != nil {
			return err
		}
		users[referrerID].RewardReferrer(referral, now)
		users[referredID].AcceptReferral(referral, now)
		applied = true
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateReferral) {
		s.logger.InfoContext(ctx, "duplicate referral ignored", "referred_id", referredID)
		return false, nil
	}
	return applied, err
}

// EnsureReferralCode returns the user's referral code, generating a unique
// one on first use.
func (s *Service) EnsureReferralCode(ctx context.Context, userID uuid.UUID) (string, error) {
	var code string
	err := s.mutate(ctx, userID, func(txCtx context.Context, user *domain.User) error {
		if user.ReferralCode() != "" {
			code = user.ReferralCode()
			return nil
		}
		for attempt := 0; attempt < referralCodeAttempts; attempt++ {
			candidate, err := domain.GenerateReferralCode()
			if err != nil {
				return err
			}
			owner, err := s.users.FindByReferralCode(txCtx, candidate)
			if err != nil {
				return err
			}
			if owner == nil {
				code = candidate
				return user.AssignReferralCode(candidate, s.clock.Now())
			}
		}
		return fmt.Errorf("generate referral code: %d collisions", referralCodeAttempts)
	})
	return code, err
}

// ConfirmPaymentCommand is a payment-succeeded notification from the
// payment layer. UserID wins over ExternalID when both are set.
type ConfirmPaymentCommand struct {
	Provider   string
	PaymentID  string
	UserID     uuid.UUID
	ExternalID string
	PackageTag string
	Amount     decimal.Decimal
	Currency   string
}

// ConfirmPaymentResult reports whether the grant was applied by this call.
type ConfirmPaymentResult struct {
	Applied bool     `json:"applied"`
	Balance *Balance `json:"balance,omitempty"`
}

// ConfirmPayment applies the grant for a confirmed payment exactly once per
// provider payment id. Repeated confirmations report Applied=false.
func (s *Service) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error) {
	if strings.TrimSpace(cmd.Provider) == "" || strings.TrimSpace(cmd.PaymentID) == "" {
		return nil, fmt.Errorf("payment provider and id are required: %w", domain.ErrInvalidAmount)
	}
	pkg, err := domain.LookupPackage(cmd.PackageTag)
	if err != nil {
		return nil, err
	}

	userID := cmd.UserID
	if userID == uuid.Nil {
		user, err := s.FindByExternalID(ctx, cmd.ExternalID)
		if err != nil {
			return nil, err
		}
		userID = user.ID()
	}

	var snapshot *domain.User
	err = s.mutate(ctx, userID, func(txCtx context.Context, user *domain.User) error {
		existing, err := s.payments.FindByProviderID(txCtx, cmd.Provider, cmd.PaymentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicatePayment
		}

		now := s.clock.Now()
		payment, err := domain.NewPayment(cmd.Provider, cmd.PaymentID, user.ID(), pkg, cmd.Amount, cmd.Currency, now)
		if err != nil {
			return err
		}
		switch pkg.Kind {
		case domain.KindOneTime:
			err = user.GrantPackage(pkg, now)
		case domain.KindDiscussionPack:
			err = user.GrantDiscussionPack(pkg, now)
		case domain.KindSubscription:
			_, err = user.ActivateOrRenewSubscription(pkg, now)
		}
		if err != nil {
			return err
		}
		if err := s.payments.Save(txCtx, payment); err != nil {
			return err
		}
		user.RecordPayment(payment, now)
		snapshot = user
		return nil
	})
	if errors.Is(err, domain.ErrDuplicatePayment) {
		s.metrics.Counter(observability.MetricPaymentsDuplicate, 1)
		s.logger.InfoContext(ctx, "duplicate payment ignored", "provider", cmd.Provider, "payment_id", cmd.PaymentID)
		balance, err := s.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &ConfirmPaymentResult{Applied: false, Balance: balance}, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.Counter(observability.MetricPaymentsApplied, 1, observability.T("package", pkg.Tag))
	s.logger.InfoContext(ctx, "payment applied",
		"user_id", userID,
		"provider", cmd.Provider,
		"payment_id", cmd.PaymentID,
		"package", pkg.Tag,
	)
	referrals, err := s.referrals.CountByReferrer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ConfirmPaymentResult{Applied: true, Balance: toBalance(snapshot, referrals)}, nil
}

// Balance returns the balance snapshot of a user.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	referrals, err := s.referrals.CountByReferrer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toBalance(user, referrals), nil
}

// ActiveSubscriptions lists every subscription currently active.
func (s *Service) ActiveSubscriptions(ctx context.Context) ([]SubscriptionView, error) {
	users, err := s.users.ListWithActiveSubscription(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]SubscriptionView, 0, len(users))
	for _, u := range users {
		if view := toSubscriptionView(u, u.ActiveSubscription()); view != nil {
			views = append(views, *view)
		}
	}
	return views, nil
}

func (s *Service) load(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) mutate(ctx context.Context, userID uuid.UUID, fn func(txCtx context.Context, user *domain.User) error) error {
	return s.mutateMany(ctx, []uuid.UUID{userID}, func(txCtx context.Context, users map[uuid.UUID]*domain.User) error {
		return fn(txCtx, users[userID])
	})
}

// mutateMany locks the users in a stable order, loads them inside one unit
// of work, runs fn and persists the users with their events.
func (s *Service) mutateMany(ctx context.Context, ids []uuid.UUID, fn func(txCtx context.Context, users map[uuid.UUID]*domain.User) error) error {
	ordered := append([]uuid.UUID(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })
	for _, id := range ordered {
		unlock := s.userLocks.Lock(id)
		defer unlock()
	}

	return sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		users := make(map[uuid.UUID]*domain.User, len(ordered))
		for _, id := range ordered {
			user, err := s.load(txCtx, id)
			if err != nil {
				return err
			}
			users[id] = user
		}

		if err := fn(txCtx, users); err != nil {
			return err
		}

		for _, id := range ordered {
			if err := s.persist(txCtx, users[id]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) persist(ctx context.Context, user *domain.User) error {
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}

	events := user.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, user.ID()))
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	if err := s.outbox.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	user.ClearDomainEvents()
	return nil
}
