package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
)

const aggregateType = "Problem"

const (
	RoutingProblemCreated = "conversation.problem.created"
	RoutingProblemSolved  = "conversation.problem.solved"
)

// ProblemCreated is emitted when a description is accepted.
type ProblemCreated struct {
	sharedDomain.BaseEvent
	ProblemID uuid.UUID `json:"problem_id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
}

func NewProblemCreated(p *Problem, now time.Time) *ProblemCreated {
	return &ProblemCreated{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), aggregateType, RoutingProblemCreated, now),
		ProblemID: p.ID(),
		UserID:    p.userID,
		Title:     p.title,
	}
}

// ProblemSolved is emitted when a solution is stored.
type ProblemSolved struct {
	sharedDomain.BaseEvent
	ProblemID uuid.UUID `json:"problem_id"`
	UserID    uuid.UUID `json:"user_id"`
	RootCause string    `json:"root_cause"`
}

func NewProblemSolved(p *Problem, now time.Time) *ProblemSolved {
	return &ProblemSolved{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), aggregateType, RoutingProblemSolved, now),
		ProblemID: p.ID(),
		UserID:    p.userID,
		RootCause: p.rootCause,
	}
}
