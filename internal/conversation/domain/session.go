package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase names a state of the conversation machine.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingProblem    Phase = "awaiting_problem"
	PhaseAskingQuestions    Phase = "asking_questions"
	PhaseGeneratingSolution Phase = "generating_solution"
	PhaseDiscussing         Phase = "discussing"
)

// PhaseState is the data carried by one phase. Only the types in this
// package implement it, so a session always holds exactly the fields its
// phase needs.
type PhaseState interface {
	Phase() Phase
	isPhaseState()
}

// Idle means no dialogue is running.
type Idle struct{}

// AwaitingProblem waits for the problem description. The problem credit
// is already spent.
type AwaitingProblem struct{}

// AskingQuestions holds the dialogue while clarifying questions are asked.
// QuestionIndex is the 1-based number of the question currently pending.
type AskingQuestions struct {
	ProblemID     uuid.UUID
	Description   string
	History       History
	QuestionIndex int
}

// GeneratingSolution holds the finished questioning dialogue.
type GeneratingSolution struct {
	ProblemID   uuid.UUID
	Description string
	History     History
}

// Discussing holds the delivered solution and the metered discussion.
// PurchasedSpent counts purchased credits consumed in this session so the
// remaining allowance stays stable while the ledger balance shrinks.
type Discussing struct {
	ProblemID      uuid.UUID
	Description    string
	Solution       string
	History        History
	Used           int
	PurchasedSpent int
}

func (Idle) Phase() Phase               { return PhaseIdle }
func (AwaitingProblem) Phase() Phase    { return PhaseAwaitingProblem }
func (AskingQuestions) Phase() Phase    { return PhaseAskingQuestions }
func (GeneratingSolution) Phase() Phase { return PhaseGeneratingSolution }
func (Discussing) Phase() Phase         { return PhaseDiscussing }

func (Idle) isPhaseState()               {}
func (AwaitingProblem) isPhaseState()    {}
func (AskingQuestions) isPhaseState()    {}
func (GeneratingSolution) isPhaseState() {}
func (Discussing) isPhaseState()         {}

// Remaining computes the discussion units left for an allowance read now.
func (d Discussing) Remaining(allowance int) int {
	return allowance + d.PurchasedSpent - d.Used
}

// Session is one user's conversation state.
type Session struct {
	UserID      uuid.UUID
	State       PhaseState
	LastStartAt *time.Time
	UpdatedAt   time.Time
}

// NewSession creates an idle session.
func NewSession(userID uuid.UUID, now time.Time) *Session {
	return &Session{UserID: userID, State: Idle{}, UpdatedAt: now.UTC()}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	if s.State == nil {
		return PhaseIdle
	}
	return s.State.Phase()
}

// Transition moves the session into a new phase.
func (s *Session) Transition(state PhaseState, now time.Time) {
	s.State = state
	s.UpdatedAt = now.UTC()
}

// Reset returns the session to Idle, keeping the throttle timestamp.
func (s *Session) Reset(now time.Time) {
	s.Transition(Idle{}, now)
}

// StartAllowed reports whether a new problem may start given the throttle.
func (s *Session) StartAllowed(now time.Time, throttle time.Duration) bool {
	if s.LastStartAt == nil || throttle <= 0 {
		return true
	}
	return now.Sub(*s.LastStartAt) >= throttle
}

// MarkStarted records a start request for throttling.
func (s *Session) MarkStarted(now time.Time) {
	t := now.UTC()
	s.LastStartAt = &t
	s.UpdatedAt = t
}

type sessionJSON struct {
	UserID         uuid.UUID  `json:"user_id"`
	Phase          Phase      `json:"phase"`
	LastStartAt    *time.Time `json:"last_start_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ProblemID      *uuid.UUID `json:"problem_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	History        History    `json:"history,omitempty"`
	QuestionIndex  int        `json:"question_index,omitempty"`
	Solution       string     `json:"solution,omitempty"`
	Used           int        `json:"used,omitempty"`
	PurchasedSpent int        `json:"purchased_spent,omitempty"`
}

// MarshalJSON flattens the phase state for storage.
func (s *Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		UserID:      s.UserID,
		Phase:       s.Phase(),
		LastStartAt: s.LastStartAt,
		UpdatedAt:   s.UpdatedAt,
	}
	switch st := s.State.(type) {
	case AskingQuestions:
		out.ProblemID = &st.ProblemID
		out.Description = st.Description
		out.History = st.History
		out.QuestionIndex = st.QuestionIndex
	case GeneratingSolution:
		out.ProblemID = &st.ProblemID
		out.Description = st.Description
		out.History = st.History
	case Discussing:
		out.ProblemID = &st.ProblemID
		out.Description = st.Description
		out.Solution = st.Solution
		out.History = st.History
		out.Used = st.Used
		out.PurchasedSpent = st.PurchasedSpent
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the phase state written by MarshalJSON.
func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var problemID uuid.UUID
	if in.ProblemID != nil {
		problemID = *in.ProblemID
	}

	var state PhaseState
	switch in.Phase {
	case PhaseIdle, "":
		state = Idle{}
	case PhaseAwaitingProblem:
		state = AwaitingProblem{}
	case PhaseAskingQuestions:
		state = AskingQuestions{
			ProblemID:     problemID,
			Description:   in.Description,
			History:       in.History,
			QuestionIndex: in.QuestionIndex,
		}
	case PhaseGeneratingSolution:
		state = GeneratingSolution{ProblemID: problemID, Description: in.Description, History: in.History}
	case PhaseDiscussing:
		state = Discussing{
			ProblemID:      problemID,
			Description:    in.Description,
			Solution:       in.Solution,
			History:        in.History,
			Used:           in.Used,
			PurchasedSpent: in.PurchasedSpent,
		}
	default:
		return fmt.Errorf("unknown session phase %q", in.Phase)
	}

	*s = Session{
		UserID:      in.UserID,
		State:       state,
		LastStartAt: in.LastStartAt,
		UpdatedAt:   in.UpdatedAt,
	}
	return nil
}
