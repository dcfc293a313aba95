package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/google/uuid"
)

// ProblemView is a read model of a stored problem.
type ProblemView struct {
	ID         uuid.UUID            `json:"id"`
	Title      string               `json:"title"`
	Status     domain.ProblemStatus `json:"status"`
	RootCause  string               `json:"root_cause,omitempty"`
	ActionPlan string               `json:"action_plan,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	SolvedAt   *time.Time           `json:"solved_at,omitempty"`
}

// RecentProblems lists the user's newest problems. A non-positive limit
// uses the standard page size.
func (e *Engine) RecentProblems(ctx context.Context, userID uuid.UUID, limit int) ([]ProblemView, error) {
	if limit <= 0 {
		limit = domain.HistoryPageSize
	}
	problems, err := e.problems.ListRecentByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]ProblemView, 0, len(problems))
	for _, p := range problems {
		views = append(views, ProblemView{
			ID:         p.ID(),
			Title:      p.Title(),
			Status:     p.Status(),
			RootCause:  p.RootCause(),
			ActionPlan: p.ActionPlan(),
			CreatedAt:  p.CreatedAt(),
			SolvedAt:   p.SolvedAt(),
		})
	}
	return views, nil
}
