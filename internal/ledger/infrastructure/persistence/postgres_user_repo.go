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

const postgresUserColumns = `
	u.id, u.external_id, u.display_name, u.problem_credits, u.discussion_credits,
	u.last_package, u.referral_code, u.referral_credits, u.referred_by::text, u.version,
	u.created_at, u.updated_at,
	s.id::text, s.plan, s.package_tag, s.price::text, s.solutions_per_month, s.discussion_limit,
	s.status, s.next_billing_date, s.cancelled_at, s.last_notice, s.last_notice_for,
	s.created_at, s.updated_at`

const postgresUserFrom = `
	FROM users u
	LEFT JOIN subscriptions s ON s.id = u.subscription_id`

// PostgresUserRepository persists users and subscriptions in PostgreSQL.
type PostgresUserRepository struct {
	conn database.Connection
}

// NewPostgresUserRepository creates a PostgreSQL user repository.
func NewPostgresUserRepository(conn database.Connection) *PostgresUserRepository {
	return &PostgresUserRepository{conn: conn}
}

// Save inserts a new user or updates an existing one guarded by its version.
func (r *PostgresUserRepository) Save(ctx context.Context, user *domain.User) error {
	ex := database.ExecutorFromContext(ctx, r.conn)

	var referralCode *string
	if code := user.ReferralCode(); code != "" {
		referralCode = &code
	}

	if user.Version() == 0 {
		_, err := ex.Exec(ctx, `
			INSERT INTO users (id, external_id, display_name, problem_credits, discussion_credits,
				last_package, referral_code, referral_credits, referred_by, subscription_id,
				version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, 1, $10, $11)`,
			user.ID(), user.ExternalID(), user.DisplayName(),
			user.ProblemCredits(), user.DiscussionCredits(), user.LastPurchasedPackage(),
			referralCode, user.ReferralCredits(), user.ReferredBy(),
			user.CreatedAt(), user.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
	} else {
		res, err := ex.Exec(ctx, `
			UPDATE users SET display_name = $1, problem_credits = $2, discussion_credits = $3,
				last_package = $4, referral_code = $5, referral_credits = $6, referred_by = $7,
				version = version + 1, updated_at = $8
			WHERE id = $9 AND version = $10`,
			user.DisplayName(), user.ProblemCredits(), user.DiscussionCredits(),
			user.LastPurchasedPackage(), referralCode, user.ReferralCredits(), user.ReferredBy(),
			user.UpdatedAt(), user.ID(), user.Version(),
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConcurrentUpdate
		}
	}

	if sub := user.Subscription(); sub != nil {
		s := sub.Snapshot()
		_, err := ex.Exec(ctx, `
			INSERT INTO subscriptions (id, user_id, plan, package_tag, price, solutions_per_month,
				discussion_limit, status, next_billing_date, cancelled_at, last_notice, last_notice_for,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				plan = EXCLUDED.plan,
				package_tag = EXCLUDED.package_tag,
				price = EXCLUDED.price,
				solutions_per_month = EXCLUDED.solutions_per_month,
				discussion_limit = EXCLUDED.discussion_limit,
				status = EXCLUDED.status,
				next_billing_date = EXCLUDED.next_billing_date,
				cancelled_at = EXCLUDED.cancelled_at,
				last_notice = EXCLUDED.last_notice,
				last_notice_for = EXCLUDED.last_notice_for,
				updated_at = EXCLUDED.updated_at`,
			s.ID, s.UserID, s.Plan, s.PackageTag, s.Price.String(), s.SolutionsPerMonth,
			s.DiscussionLimit, string(s.Status), s.NextBillingDate, s.CancelledAt,
			string(s.LastNotice), s.LastNoticeFor, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		if _, err := ex.Exec(ctx, `UPDATE users SET subscription_id = $1 WHERE id = $2`, s.ID, user.ID()); err != nil {
			return fmt.Errorf("link subscription: %w", err)
		}
	}

	user.IncrementVersion()
	return nil
}

// FindByID loads a user. Inside a transaction the user row is locked
// until commit so concurrent ledger mutations serialize.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT` + postgresUserColumns + postgresUserFrom + ` WHERE u.id = $1`
	if database.InTx(ctx) {
		query += ` FOR UPDATE OF u`
	}
	return r.findOne(ctx, query, id)
}

// FindByExternalID loads a user by the transport identity.
func (r *PostgresUserRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT`+postgresUserColumns+postgresUserFrom+` WHERE u.external_id = $1`, externalID)
}

// FindByReferralCode loads the owner of a referral code.
func (r *PostgresUserRepository) FindByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT`+postgresUserColumns+postgresUserFrom+` WHERE u.referral_code = $1`, code)
}

// ListWithActiveSubscription returns users whose current subscription is active.
func (r *PostgresUserRepository) ListWithActiveSubscription(ctx context.Context) ([]*domain.User, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT`+postgresUserColumns+postgresUserFrom+` WHERE s.status = $1 ORDER BY s.next_billing_date`,
		string(domain.SubscriptionActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanPostgresUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	user, err := scanPostgresUser(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, args...))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return user, err
}

func scanPostgresUser(row database.Row) (*domain.User, error) {
	var (
		id                                   uuid.UUID
		externalID, displayName, lastPackage string
		referralCode, referredBy             *string
		problemCredits, discussionCredits    int
		referralCredits, version             int
		createdAt, updatedAt                 time.Time

		subID, plan, packageTag, price, status  *string
		solutions, discussionLimit              *int
		nextBilling, cancelledAt, lastNoticeFor *time.Time
		lastNotice                              *string
		subCreatedAt, subUpdatedAt              *time.Time
	)
	err := row.Scan(
		&id, &externalID, &displayName, &problemCredits, &discussionCredits,
		&lastPackage, &referralCode, &referralCredits, &referredBy, &version,
		&createdAt, &updatedAt,
		&subID, &plan, &packageTag, &price, &solutions, &discussionLimit,
		&status, &nextBilling, &cancelledAt, &lastNotice, &lastNoticeFor,
		&subCreatedAt, &subUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	snapshot := domain.UserSnapshot{
		ID:                   id,
		ExternalID:           externalID,
		DisplayName:          displayName,
		ProblemCredits:       problemCredits,
		DiscussionCredits:    discussionCredits,
		LastPurchasedPackage: lastPackage,
		ReferralCredits:      referralCredits,
		Version:              version,
		CreatedAt:            createdAt,
		UpdatedAt:            updatedAt,
	}
	if referralCode != nil {
		snapshot.ReferralCode = *referralCode
	}
	if referredBy != nil {
		ref, err := uuid.Parse(*referredBy)
		if err != nil {
			return nil, fmt.Errorf("parse referred_by: %w", err)
		}
		snapshot.ReferredBy = &ref
	}

	if subID != nil {
		sid, err := uuid.Parse(*subID)
		if err != nil {
			return nil, fmt.Errorf("parse subscription id: %w", err)
		}
		amount, err := decimal.NewFromString(deref(price))
		if err != nil {
			return nil, fmt.Errorf("parse subscription price: %w", err)
		}
		sub := domain.SubscriptionSnapshot{
			ID:            sid,
			UserID:        id,
			Plan:          deref(plan),
			PackageTag:    deref(packageTag),
			Price:         amount,
			Status:        domain.SubscriptionStatus(deref(status)),
			CancelledAt:   cancelledAt,
			LastNotice:    domain.NoticeStage(deref(lastNotice)),
			LastNoticeFor: lastNoticeFor,
		}
		if solutions != nil {
			sub.SolutionsPerMonth = *solutions
		}
		if discussionLimit != nil {
			sub.DiscussionLimit = *discussionLimit
		}
		if nextBilling != nil {
			sub.NextBillingDate = *nextBilling
		}
		if subCreatedAt != nil {
			sub.CreatedAt = *subCreatedAt
		}
		if subUpdatedAt != nil {
			sub.UpdatedAt = *subUpdatedAt
		}
		snapshot.Subscription = domain.RehydrateSubscription(sub)
	}

	return domain.RehydrateUser(snapshot), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.UserRepository = (*PostgresUserRepository)(nil)
