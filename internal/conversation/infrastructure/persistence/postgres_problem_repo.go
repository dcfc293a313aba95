package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const postgresProblemColumns = `id, user_id, title, root_cause, action_plan, status, solved_at, created_at, updated_at`

// PostgresProblemRepository persists problems in PostgreSQL.
type PostgresProblemRepository struct {
	conn database.Connection
}

// NewPostgresProblemRepository creates a PostgreSQL problem repository.
func NewPostgresProblemRepository(conn database.Connection) *PostgresProblemRepository {
	return &PostgresProblemRepository{conn: conn}
}

func (r *PostgresProblemRepository) Save(ctx context.Context, p *domain.Problem) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO problems (`+postgresProblemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			root_cause = EXCLUDED.root_cause,
			action_plan = EXCLUDED.action_plan,
			status = EXCLUDED.status,
			solved_at = EXCLUDED.solved_at,
			updated_at = EXCLUDED.updated_at`,
		p.ID(), p.UserID(), p.Title(), p.RootCause(), p.ActionPlan(), string(p.Status()),
		p.SolvedAt(), p.CreatedAt(), p.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save problem: %w", err)
	}
	return nil
}

func (r *PostgresProblemRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Problem, error) {
	row := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT `+postgresProblemColumns+` FROM problems WHERE id = $1`, id)
	p, err := scanPostgresProblem(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return p, err
}

func (r *PostgresProblemRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Problem, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT `+postgresProblemColumns+` FROM problems
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []*domain.Problem
	for rows.Next() {
		p, err := scanPostgresProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func scanPostgresProblem(row database.Row) (*domain.Problem, error) {
	var (
		s                    domain.ProblemSnapshot
		status               string
		solvedAt             *time.Time
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.RootCause, &s.ActionPlan, &status, &solvedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.ProblemStatus(status)
	s.SolvedAt = solvedAt
	s.CreatedAt = createdAt
	s.UpdatedAt = updatedAt
	return domain.RehydrateProblem(s), nil
}

var _ domain.ProblemRepository = (*PostgresProblemRepository)(nil)
