package application

import (
	"context"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/google/uuid"
)

// Generator produces dialogue text. Implementations retry on their own;
// an error means retries are exhausted.
type Generator interface {
	GenerateQuestion(ctx context.Context, description string, recent domain.History, step int) (string, error)
	GenerateSolution(ctx context.Context, description string, history domain.History) (string, error)
	GenerateDiscussionAnswer(ctx context.Context, req DiscussionRequest) (string, error)
}

// DiscussionRequest is the context for answering a discussion question.
type DiscussionRequest struct {
	Description string
	Solution    string
	History     domain.History
	Question    string
}

// Presenter delivers outcomes to the user's transport.
type Presenter interface {
	Present(ctx context.Context, userID uuid.UUID, outcome Outcome) error
}

// InputSource blocks until the user sends the next input.
type InputSource interface {
	AwaitInput(ctx context.Context, userID uuid.UUID) (Input, error)
}

// SessionStore keeps sessions between inputs. Load returns nil, nil for an
// unknown user.
type SessionStore interface {
	Load(ctx context.Context, userID uuid.UUID) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// Ledger is the entitlement view the engine needs.
type Ledger interface {
	CanStartProblem(ctx context.Context, userID uuid.UUID) (bool, error)
	DebitProblemCredit(ctx context.Context, userID uuid.UUID) (int, error)
	DiscussionAllowance(ctx context.Context, userID uuid.UUID) (int, error)
	DebitDiscussionUnit(ctx context.Context, userID uuid.UUID, sessionUsed int) (remaining int, purchased bool, err error)
}

// Action is what the user asked for.
type Action string

const (
	ActionText       Action = "text"
	ActionNewProblem Action = "new"
	ActionSkip       Action = "skip"
	ActionSolution   Action = "solution"
	ActionDiscuss    Action = "discuss"
	ActionQuit       Action = "quit"

	ActionBuyPackage     Action = "buy_package"
	ActionBuyDiscussions Action = "buy_discussions"
)

// Input is one user event.
type Input struct {
	Action Action
	Text   string
}

// OutcomeKind classifies what the user is shown.
type OutcomeKind string

const (
	OutcomeAskProblem           OutcomeKind = "ask_problem"
	OutcomeQuestion             OutcomeKind = "question"
	OutcomeSolution             OutcomeKind = "solution"
	OutcomeAnswer               OutcomeKind = "answer"
	OutcomeDiscussionOpen       OutcomeKind = "discussion_open"
	OutcomeAllowanceExhausted   OutcomeKind = "allowance_exhausted"
	OutcomeInsufficientCredits  OutcomeKind = "insufficient_credits"
	OutcomeTooEarlyForSolution  OutcomeKind = "too_early_for_solution"
	OutcomeEmptyProblem         OutcomeKind = "empty_problem"
	OutcomeNoActiveConversation OutcomeKind = "no_active_conversation"
)

// Option is an action offered alongside an outcome.
type Option struct {
	Action Action `json:"action"`
	Label  string `json:"label"`
}

// Outcome is one message to the user plus the state it leaves behind.
type Outcome struct {
	Kind      OutcomeKind  `json:"kind"`
	Phase     domain.Phase `json:"phase"`
	Text      string       `json:"text"`
	ProblemID uuid.UUID    `json:"problem_id,omitempty"`
	Step      int          `json:"step,omitempty"`
	Remaining int          `json:"remaining,omitempty"`
	Fallback  bool         `json:"fallback,omitempty"`
	Options   []Option     `json:"options,omitempty"`
}
