package domain

import (
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
)

// ProblemStatus is the lifecycle state of a problem.
type ProblemStatus string

const (
	ProblemStatusActive ProblemStatus = "active"
	ProblemStatusSolved ProblemStatus = "solved"
)

// Problem is the persisted subject of one analysis session.
type Problem struct {
	sharedDomain.BaseAggregateRoot
	userID     uuid.UUID
	title      string
	rootCause  string
	actionPlan string
	status     ProblemStatus
	solvedAt   *time.Time
}

// NewProblem records a new active problem from the user's description.
func NewProblem(userID uuid.UUID, description string, now time.Time) (*Problem, error) {
	title := strings.TrimSpace(description)
	if title == "" {
		return nil, ErrEmptyProblem
	}
	p := &Problem{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		userID:            userID,
		title:             title,
		status:            ProblemStatusActive,
	}
	p.AddDomainEvent(NewProblemCreated(p, now))
	return p, nil
}

// ProblemSnapshot is the persisted form of a problem.
type ProblemSnapshot struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Title      string
	RootCause  string
	ActionPlan string
	Status     ProblemStatus
	SolvedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RehydrateProblem rebuilds a problem from storage.
func RehydrateProblem(s ProblemSnapshot) *Problem {
	return &Problem{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(s.ID, s.CreatedAt, s.UpdatedAt, 1),
		userID:            s.UserID,
		title:             s.Title,
		rootCause:         s.RootCause,
		actionPlan:        s.ActionPlan,
		status:            s.Status,
		solvedAt:          s.SolvedAt,
	}
}

func (p *Problem) UserID() uuid.UUID     { return p.userID }
func (p *Problem) Title() string         { return p.title }
func (p *Problem) RootCause() string     { return p.rootCause }
func (p *Problem) ActionPlan() string    { return p.actionPlan }
func (p *Problem) Status() ProblemStatus { return p.status }
func (p *Problem) SolvedAt() *time.Time  { return p.solvedAt }
func (p *Problem) IsSolved() bool        { return p.status == ProblemStatusSolved }

// Solve stores the generated solution. A problem is solved at most once;
// later calls are ignored.
func (p *Problem) Solve(solution string, now time.Time) {
	if p.IsSolved() {
		return
	}
	now = now.UTC()
	p.actionPlan = solution
	p.rootCause = truncateRunes(solution, RootCauseLimit)
	p.status = ProblemStatusSolved
	p.solvedAt = &now
	p.Touch(now)
	p.AddDomainEvent(NewProblemSolved(p, now))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
