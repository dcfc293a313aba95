package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const sqliteUserColumns = `
	u.id, u.external_id, u.display_name, u.problem_credits, u.discussion_credits,
	u.last_package, u.referral_code, u.referral_credits, u.referred_by, u.version,
	u.created_at, u.updated_at,
	s.id, s.plan, s.package_tag, s.price, s.solutions_per_month, s.discussion_limit,
	s.status, s.next_billing_date, s.cancelled_at, s.last_notice, s.last_notice_for,
	s.created_at, s.updated_at`

const sqliteUserFrom = `
	FROM users u
	LEFT JOIN subscriptions s ON s.id = u.subscription_id`

// SQLiteUserRepository persists users and subscriptions in SQLite.
type SQLiteUserRepository struct {
	conn database.Connection
}

// NewSQLiteUserRepository creates a SQLite user repository.
func NewSQLiteUserRepository(conn database.Connection) *SQLiteUserRepository {
	return &SQLiteUserRepository{conn: conn}
}

// Save inserts a new user or updates an existing one guarded by its version.
func (r *SQLiteUserRepository) Save(ctx context.Context, user *domain.User) error {
	ex := database.ExecutorFromContext(ctx, r.conn)

	var subscriptionID sql.NullString
	if sub := user.Subscription(); sub != nil {
		subscriptionID = sql.NullString{String: sub.ID().String(), Valid: true}
	}
	var referredBy sql.NullString
	if ref := user.ReferredBy(); ref != nil {
		referredBy = sql.NullString{String: ref.String(), Valid: true}
	}
	referralCode := sql.NullString{String: user.ReferralCode(), Valid: user.ReferralCode() != ""}

	if user.Version() == 0 {
		_, err := ex.Exec(ctx, `
			INSERT INTO users (id, external_id, display_name, problem_credits, discussion_credits,
				last_package, referral_code, referral_credits, referred_by, subscription_id,
				version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1, ?, ?)`,
			user.ID().String(), user.ExternalID(), user.DisplayName(),
			user.ProblemCredits(), user.DiscussionCredits(), user.LastPurchasedPackage(),
			referralCode, user.ReferralCredits(), referredBy,
			sqlite.FormatTime(user.CreatedAt()), sqlite.FormatTime(user.UpdatedAt()),
		)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
	} else {
		res, err := ex.Exec(ctx, `
			UPDATE users SET display_name = ?, problem_credits = ?, discussion_credits = ?,
				last_package = ?, referral_code = ?, referral_credits = ?, referred_by = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			user.DisplayName(), user.ProblemCredits(), user.DiscussionCredits(),
			user.LastPurchasedPackage(), referralCode, user.ReferralCredits(), referredBy,
			sqlite.FormatTime(user.UpdatedAt()), user.ID().String(), user.Version(),
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConcurrentUpdate
		}
	}

	if sub := user.Subscription(); sub != nil {
		if err := r.saveSubscription(ctx, ex, sub); err != nil {
			return err
		}
		if _, err := ex.Exec(ctx, `UPDATE users SET subscription_id = ? WHERE id = ?`,
			subscriptionID, user.ID().String()); err != nil {
			return fmt.Errorf("link subscription: %w", err)
		}
	}

	user.IncrementVersion()
	return nil
}

func (r *SQLiteUserRepository) saveSubscription(ctx context.Context, ex database.Executor, sub *domain.Subscription) error {
	s := sub.Snapshot()
	_, err := ex.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, package_tag, price, solutions_per_month,
			discussion_limit, status, next_billing_date, cancelled_at, last_notice, last_notice_for,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			plan = excluded.plan,
			package_tag = excluded.package_tag,
			price = excluded.price,
			solutions_per_month = excluded.solutions_per_month,
			discussion_limit = excluded.discussion_limit,
			status = excluded.status,
			next_billing_date = excluded.next_billing_date,
			cancelled_at = excluded.cancelled_at,
			last_notice = excluded.last_notice,
			last_notice_for = excluded.last_notice_for,
			updated_at = excluded.updated_at`,
		s.ID.String(), s.UserID.String(), s.Plan, s.PackageTag, s.Price.String(),
		s.SolutionsPerMonth, s.DiscussionLimit, string(s.Status),
		sqlite.FormatTime(s.NextBillingDate), sqlite.NullTime(s.CancelledAt),
		string(s.LastNotice), sqlite.NullTime(s.LastNoticeFor),
		sqlite.FormatTime(s.CreatedAt), sqlite.FormatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// FindByID loads a user with its current subscription.
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, `SELECT`+sqliteUserColumns+sqliteUserFrom+` WHERE u.id = ?`, id.String())
}

// FindByExternalID loads a user by the transport identity.
func (r *SQLiteUserRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT`+sqliteUserColumns+sqliteUserFrom+` WHERE u.external_id = ?`, externalID)
}

// FindByReferralCode loads the owner of a referral code.
func (r *SQLiteUserRepository) FindByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT`+sqliteUserColumns+sqliteUserFrom+` WHERE u.referral_code = ?`, code)
}

// ListWithActiveSubscription returns users whose current subscription is active.
func (r *SQLiteUserRepository) ListWithActiveSubscription(ctx context.Context) ([]*domain.User, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT`+sqliteUserColumns+sqliteUserFrom+` WHERE s.status = ? ORDER BY s.next_billing_date`,
		string(domain.SubscriptionActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *SQLiteUserRepository) findOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	user, err := scanSQLiteUser(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, args...))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return user, err
}

func scanSQLiteUser(row database.Row) (*domain.User, error) {
	var (
		id, externalID, displayName, lastPackage string
		referralCode, referredBy                 sql.NullString
		problemCredits, discussionCredits        int
		referralCredits, version                 int
		createdAt, updatedAt                     string

		subID, plan, packageTag, price, status sql.NullString
		solutions, discussionLimit             sql.NullInt64
		nextBilling, cancelledAt               sql.NullString
		lastNotice, lastNoticeFor              sql.NullString
		subCreatedAt, subUpdatedAt             sql.NullString
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

	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	snapshot := domain.UserSnapshot{
		ID:                   userID,
		ExternalID:           externalID,
		DisplayName:          displayName,
		ProblemCredits:       problemCredits,
		DiscussionCredits:    discussionCredits,
		LastPurchasedPackage: lastPackage,
		ReferralCode:         referralCode.String,
		ReferralCredits:      referralCredits,
		Version:              version,
		CreatedAt:            sqlite.ParseTime(createdAt),
		UpdatedAt:            sqlite.ParseTime(updatedAt),
	}
	if referredBy.Valid {
		ref, err := uuid.Parse(referredBy.String)
		if err != nil {
			return nil, fmt.Errorf("parse referred_by: %w", err)
		}
		snapshot.ReferredBy = &ref
	}

	if subID.Valid {
		sid, err := uuid.Parse(subID.String)
		if err != nil {
			return nil, fmt.Errorf("parse subscription id: %w", err)
		}
		amount, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("parse subscription price: %w", err)
		}
		snapshot.Subscription = domain.RehydrateSubscription(domain.SubscriptionSnapshot{
			ID:                sid,
			UserID:            userID,
			Plan:              plan.String,
			PackageTag:        packageTag.String,
			Price:             amount,
			SolutionsPerMonth: int(solutions.Int64),
			DiscussionLimit:   int(discussionLimit.Int64),
			Status:            domain.SubscriptionStatus(status.String),
			NextBillingDate:   sqlite.ParseTime(nextBilling.String),
			CancelledAt:       sqlite.ParseNullTime(cancelledAt),
			LastNotice:        domain.NoticeStage(lastNotice.String),
			LastNoticeFor:     sqlite.ParseNullTime(lastNoticeFor),
			CreatedAt:         sqlite.ParseTime(subCreatedAt.String),
			UpdatedAt:         sqlite.ParseTime(subUpdatedAt.String),
		})
	}

	return domain.RehydrateUser(snapshot), nil
}

var _ domain.UserRepository = (*SQLiteUserRepository)(nil)
