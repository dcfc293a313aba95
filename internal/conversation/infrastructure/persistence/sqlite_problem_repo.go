package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/sqlite"
	"github.com/google/uuid"
)

const sqliteProblemColumns = `id, user_id, title, root_cause, action_plan, status, solved_at, created_at, updated_at`

// SQLiteProblemRepository persists problems in SQLite.
type SQLiteProblemRepository struct {
	conn database.Connection
}

// NewSQLiteProblemRepository creates a SQLite problem repository.
func NewSQLiteProblemRepository(conn database.Connection) *SQLiteProblemRepository {
	return &SQLiteProblemRepository{conn: conn}
}

// Save inserts or updates a problem.
func (r *SQLiteProblemRepository) Save(ctx context.Context, p *domain.Problem) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO problems (`+sqliteProblemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root_cause = excluded.root_cause,
			action_plan = excluded.action_plan,
			status = excluded.status,
			solved_at = excluded.solved_at,
			updated_at = excluded.updated_at`,
		p.ID().String(), p.UserID().String(), p.Title(), p.RootCause(), p.ActionPlan(), string(p.Status()),
		sqlite.NullTime(p.SolvedAt()), sqlite.FormatTime(p.CreatedAt()), sqlite.FormatTime(p.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("save problem: %w", err)
	}
	return nil
}

// FindByID returns a problem or nil when absent.
func (r *SQLiteProblemRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Problem, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+sqliteProblemColumns+` FROM problems WHERE id = ?`, id.String())
	p, err := scanSQLiteProblem(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return p, err
}

// ListRecentByUser returns the newest problems first.
func (r *SQLiteProblemRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Problem, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT `+sqliteProblemColumns+` FROM problems
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []*domain.Problem
	for rows.Next() {
		p, err := scanSQLiteProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func scanSQLiteProblem(row database.Row) (*domain.Problem, error) {
	var (
		id, userID, title, rootCause, actionPlan, status string
		createdAt, updatedAt                             string
		solvedAt                                         sql.NullString
	)
	if err := row.Scan(&id, &userID, &title, &rootCause, &actionPlan, &status, &solvedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse problem id: %w", err)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse problem user id: %w", err)
	}
	return domain.RehydrateProblem(domain.ProblemSnapshot{
		ID:         pid,
		UserID:     uid,
		Title:      title,
		RootCause:  rootCause,
		ActionPlan: actionPlan,
		Status:     domain.ProblemStatus(status),
		SolvedAt:   sqlite.ParseNullTime(solvedAt),
		CreatedAt:  sqlite.ParseTime(createdAt),
		UpdatedAt:  sqlite.ParseTime(updatedAt),
	}), nil
}

var _ domain.ProblemRepository = (*SQLiteProblemRepository)(nil)
