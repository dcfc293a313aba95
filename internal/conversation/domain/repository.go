package domain

import (
	"context"

	"github.com/google/uuid"
)

// ProblemRepository persists problems.
type ProblemRepository interface {
	Save(ctx context.Context, problem *Problem) error
	FindByID(ctx context.Context, id uuid.UUID) (*Problem, error)
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Problem, error)
}
