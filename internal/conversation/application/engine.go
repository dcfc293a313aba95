package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/google/uuid"
)

const (
	askProblemText       = "Describe the problem you want to work through."
	emptyProblemText     = "Please describe the problem in a few words so we can start."
	insufficientText     = "You have no problem credits left. Buy a package to start a new problem."
	noConversationText   = "There is nothing to continue right now. Start a new problem to begin."
	exhaustedText        = "You have used all discussion questions for this solution. Buy a discussion pack to ask more."
	discussionOpenText   = "Ask anything about the solution. Questions left: %d."
	emptyQuestionText    = "Send your question about the solution. Questions left: %d."
	tooEarlyText         = "Answer at least %d questions before asking for the solution."
	fallbackQuestionText = "Tell me more about the situation (question %d/%d)"
	fallbackAnswerText   = "Sorry, I could not prepare an answer right now. Please try asking again in a few minutes."
	fallbackSolutionText = `[Fallback solution]
We could not generate your solution because of a temporary technical problem.

What to do now:
- Start a new problem in a few minutes and try again.
- Contact support if the problem repeats.`
)

// Dependencies wires the conversation engine.
type Dependencies struct {
	Sessions   SessionStore
	Problems   domain.ProblemRepository
	Ledger     Ledger
	Generator  Generator
	Presenter  Presenter
	Outbox     outbox.Repository
	UnitOfWork sharedApplication.UnitOfWork
	Clock      sharedApplication.Clock
	Metrics    observability.Metrics
	Logger     *slog.Logger
	Policy     domain.Policy
}

// Engine drives each user through problem intake, clarifying questions,
// solution delivery and metered discussion. Inputs of one user are applied
// in order; different users proceed concurrently.
type Engine struct {
	sessions  SessionStore
	problems  domain.ProblemRepository
	ledger    Ledger
	generator Generator
	presenter Presenter
	outbox    outbox.Repository
	uow       sharedApplication.UnitOfWork
	clock     sharedApplication.Clock
	metrics   observability.Metrics
	logger    *slog.Logger
	policy    domain.Policy
	locks     *sharedApplication.KeyedMutex[uuid.UUID]
}

// NewEngine creates a conversation engine.
func NewEngine(deps Dependencies) *Engine {
	if deps.Clock == nil {
		deps.Clock = sharedApplication.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		sessions:  deps.Sessions,
		problems:  deps.Problems,
		ledger:    deps.Ledger,
		generator: deps.Generator,
		presenter: deps.Presenter,
		outbox:    deps.Outbox,
		uow:       deps.UnitOfWork,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		policy:    deps.Policy.Normalize(),
		locks:     sharedApplication.NewKeyedMutex[uuid.UUID](),
	}
}

// Policy returns the dialogue limits in effect.
func (e *Engine) Policy() domain.Policy {
	return e.policy
}

// StartProblem spends one problem credit and asks for a description. A
// running session is abandoned without refund once the credit is spent;
// without credits the session is left as it was. A start inside the throttle
// window returns ErrThrottled and changes nothing else.
func (e *Engine) StartProblem(ctx context.Context, userID uuid.UUID) (*Outcome, error) {
	return e.handle(ctx, userID, e.start)
}

// HandleInput applies free text to the current phase.
func (e *Engine) HandleInput(ctx context.Context, userID uuid.UUID, text string) (*Outcome, error) {
	return e.handle(ctx, userID, func(ctx context.Context, s *domain.Session) (Outcome, error) {
		return e.input(ctx, s, text)
	})
}

// SkipQuestion answers the pending question with an empty reply.
func (e *Engine) SkipQuestion(ctx context.Context, userID uuid.UUID) (*Outcome, error) {
	return e.handle(ctx, userID, func(ctx context.Context, s *domain.Session) (Outcome, error) {
		st, ok := s.State.(domain.AskingQuestions)
		if !ok {
			return Outcome{}, domain.ErrInvalidState
		}
		return e.answer(ctx, s, st, "")
	})
}

// RequestSolution ends questioning early once enough rounds were asked.
func (e *Engine) RequestSolution(ctx context.Context, userID uuid.UUID) (*Outcome, error) {
	return e.handle(ctx, userID, func(ctx context.Context, s *domain.Session) (Outcome, error) {
		st, ok := s.State.(domain.AskingQuestions)
		if !ok {
			return Outcome{}, domain.ErrInvalidState
		}
		if err := e.checkEarlySolution(st); err != nil {
			return Outcome{
				Kind:    OutcomeTooEarlyForSolution,
				Text:    fmt.Sprintf(tooEarlyText, e.policy.MinRoundsForSolution),
				Step:    st.QuestionIndex,
				Options: []Option{skipOption},
			}, nil
		}
		return e.solve(ctx, s, domain.GeneratingSolution{
			ProblemID:   st.ProblemID,
			Description: st.Description,
			History:     st.History,
		})
	})
}

// EnterDiscussion opens the discussion after a solution, or reports that
// the allowance is exhausted and ends the session.
func (e *Engine) EnterDiscussion(ctx context.Context, userID uuid.UUID) (*Outcome, error) {
	return e.handle(ctx, userID, func(ctx context.Context, s *domain.Session) (Outcome, error) {
		st, ok := s.State.(domain.Discussing)
		if !ok {
			return Outcome{}, domain.ErrInvalidState
		}
		remaining, err := e.discussionRemaining(ctx, s.UserID, st)
		if err != nil {
			return Outcome{}, err
		}
		if remaining <= 0 {
			return e.exhausted(s), nil
		}
		return Outcome{
			Kind:      OutcomeDiscussionOpen,
			Text:      fmt.Sprintf(discussionOpenText, remaining),
			ProblemID: st.ProblemID,
			Remaining: remaining,
		}, nil
	})
}

// CurrentPhase reports the phase of the user's session.
func (e *Engine) CurrentPhase(ctx context.Context, userID uuid.UUID) (domain.Phase, error) {
	s, err := e.sessions.Load(ctx, userID)
	if err != nil {
		return "", err
	}
	if s == nil {
		return domain.PhaseIdle, nil
	}
	return s.Phase(), nil
}

// Drive reads inputs from src and applies them until the user quits or
// the source is exhausted.
func (e *Engine) Drive(ctx context.Context, userID uuid.UUID, src InputSource) error {
	for {
		in, err := src.AwaitInput(ctx, userID)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch in.Action {
		case ActionQuit:
			return nil
		case ActionNewProblem:
			_, err = e.StartProblem(ctx, userID)
		case ActionSkip:
			_, err = e.SkipQuestion(ctx, userID)
		case ActionSolution:
			_, err = e.RequestSolution(ctx, userID)
		case ActionDiscuss:
			_, err = e.EnterDiscussion(ctx, userID)
		default:
			_, err = e.HandleInput(ctx, userID, in.Text)
		}
		if errors.Is(err, domain.ErrThrottled) {
			e.logger.DebugContext(ctx, "start throttled", "user_id", userID)
			continue
		}
		if err != nil {
			return err
		}
	}
}

type step func(ctx context.Context, s *domain.Session) (Outcome, error)

// handle serializes one user event, persists the session and presents the
// outcome.
func (e *Engine) handle(ctx context.Context, userID uuid.UUID, fn step) (*Outcome, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	s, err := e.sessions.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		s = domain.NewSession(userID, e.clock.Now())
	}

	outcome, err := fn(ctx, s)
	if errors.Is(err, domain.ErrInvalidState) {
		e.logger.WarnContext(ctx, "input not valid in phase, resetting session",
			"user_id", userID,
			"phase", s.Phase(),
		)
		s.Reset(e.clock.Now())
		outcome, err = Outcome{
			Kind:    OutcomeNoActiveConversation,
			Text:    noConversationText,
			Options: []Option{newProblemOption},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	outcome.Phase = s.Phase()
	if err := e.presenter.Present(ctx, userID, outcome); err != nil {
		return &outcome, fmt.Errorf("present outcome: %w", err)
	}
	return &outcome, nil
}

func (e *Engine) start(ctx context.Context, s *domain.Session) (Outcome, error) {
	now := e.clock.Now()
	if !s.StartAllowed(now, e.policy.StartThrottle) {
		return Outcome{}, domain.ErrThrottled
	}
	s.MarkStarted(now)

	ok, err := e.ledger.CanStartProblem(ctx, s.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		_, err = e.ledger.DebitProblemCredit(ctx, s.UserID)
		if errors.Is(err, domain.ErrNoProblemCredits) {
			ok = false
		} else if err != nil {
			return Outcome{}, err
		}
	}
	if !ok {
		e.metrics.Counter(observability.MetricStartsRefused, 1)
		return Outcome{
			Kind:    OutcomeInsufficientCredits,
			Text:    insufficientText,
			Options: []Option{buyPackageOption},
		}, nil
	}

	if s.Phase() != domain.PhaseIdle {
		e.logger.InfoContext(ctx, "abandoning session", "user_id", s.UserID, "phase", s.Phase())
	}
	s.Transition(domain.AwaitingProblem{}, now)
	e.metrics.Counter(observability.MetricProblemsStarted, 1)
	e.logger.InfoContext(ctx, "problem started", "user_id", s.UserID)
	return Outcome{Kind: OutcomeAskProblem, Text: askProblemText}, nil
}

func (e *Engine) input(ctx context.Context, s *domain.Session, text string) (Outcome, error) {
	switch st := s.State.(type) {
	case domain.AwaitingProblem:
		return e.acceptProblem(ctx, s, text)
	case domain.AskingQuestions:
		return e.answer(ctx, s, st, text)
	case domain.GeneratingSolution:
		return e.solve(ctx, s, st)
	case domain.Discussing:
		return e.discuss(ctx, s, st, text)
	default:
		return Outcome{}, domain.ErrInvalidState
	}
}

func (e *Engine) acceptProblem(ctx context.Context, s *domain.Session, text string) (Outcome, error) {
	problem, err := domain.NewProblem(s.UserID, text, e.clock.Now())
	if errors.Is(err, domain.ErrEmptyProblem) {
		return Outcome{Kind: OutcomeEmptyProblem, Text: emptyProblemText}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if err := e.saveProblem(ctx, problem); err != nil {
		return Outcome{}, err
	}

	return e.askQuestion(ctx, s, domain.AskingQuestions{
		ProblemID:     problem.ID(),
		Description:   problem.Title(),
		QuestionIndex: 1,
	})
}

func (e *Engine) askQuestion(ctx context.Context, s *domain.Session, st domain.AskingQuestions) (Outcome, error) {
	recent := st.History.Recent(e.policy.RecentHistoryTurns)
	question, err := e.generator.GenerateQuestion(ctx, st.Description, recent, st.QuestionIndex)
	fallback := false
	if err != nil || strings.TrimSpace(question) == "" {
		e.recordFallback(ctx, "question", s.UserID, err)
		question = fmt.Sprintf(fallbackQuestionText, st.QuestionIndex, e.policy.QuestionRounds)
		fallback = true
	}

	st.History = st.History.Append(domain.SpeakerAssistant, question)
	s.Transition(st, e.clock.Now())

	options := []Option{skipOption}
	if e.checkEarlySolution(st) == nil {
		options = append(options, solutionOption)
	}
	return Outcome{
		Kind:      OutcomeQuestion,
		Text:      question,
		ProblemID: st.ProblemID,
		Step:      st.QuestionIndex,
		Fallback:  fallback,
		Options:   options,
	}, nil
}

func (e *Engine) answer(ctx context.Context, s *domain.Session, st domain.AskingQuestions, text string) (Outcome, error) {
	st.History = st.History.Append(domain.SpeakerUser, strings.TrimSpace(text))
	st.QuestionIndex++
	if st.QuestionIndex > e.policy.QuestionRounds {
		return e.solve(ctx, s, domain.GeneratingSolution{
			ProblemID:   st.ProblemID,
			Description: st.Description,
			History:     st.History,
		})
	}
	return e.askQuestion(ctx, s, st)
}

func (e *Engine) checkEarlySolution(st domain.AskingQuestions) error {
	if st.QuestionIndex < e.policy.MinRoundsForSolution {
		return domain.ErrTooEarlyForSolution
	}
	return nil
}

// solve generates and stores the solution. The session is saved in the
// generating phase first so an interrupted run resumes on the next input.
func (e *Engine) solve(ctx context.Context, s *domain.Session, st domain.GeneratingSolution) (Outcome, error) {
	s.Transition(st, e.clock.Now())
	if err := e.sessions.Save(ctx, s); err != nil {
		return Outcome{}, fmt.Errorf("save session: %w", err)
	}

	solution, err := e.generator.GenerateSolution(ctx, st.Description, st.History)
	fallback := false
	if err != nil || strings.TrimSpace(solution) == "" {
		e.recordFallback(ctx, "solution", s.UserID, err)
		solution = fallbackSolutionText
		fallback = true
	}

	problem, err := e.problems.FindByID(ctx, st.ProblemID)
	if err != nil {
		return Outcome{}, err
	}
	if problem != nil {
		problem.Solve(solution, e.clock.Now())
		if err := e.saveProblem(ctx, problem); err != nil {
			return Outcome{}, err
		}
	} else {
		e.logger.WarnContext(ctx, "problem record missing, solution not stored",
			"user_id", s.UserID,
			"problem_id", st.ProblemID,
		)
	}
	e.metrics.Counter(observability.MetricProblemsSolved, 1, observability.T("fallback", fmt.Sprint(fallback)))

	discussing := domain.Discussing{
		ProblemID:   st.ProblemID,
		Description: st.Description,
		Solution:    solution,
	}
	s.Transition(discussing, e.clock.Now())

	remaining, err := e.discussionRemaining(ctx, s.UserID, discussing)
	if err != nil {
		return Outcome{}, err
	}
	options := []Option{newProblemOption}
	if remaining > 0 {
		options = []Option{discussOption, newProblemOption}
	}
	e.logger.InfoContext(ctx, "solution delivered",
		"user_id", s.UserID,
		"problem_id", st.ProblemID,
		"fallback", fallback,
	)
	return Outcome{
		Kind:      OutcomeSolution,
		Text:      solution,
		ProblemID: st.ProblemID,
		Remaining: remaining,
		Fallback:  fallback,
		Options:   options,
	}, nil
}

func (e *Engine) discuss(ctx context.Context, s *domain.Session, st domain.Discussing, text string) (Outcome, error) {
	remaining, err := e.discussionRemaining(ctx, s.UserID, st)
	if err != nil {
		return Outcome{}, err
	}
	if remaining <= 0 {
		return e.exhausted(s), nil
	}

	question := strings.TrimSpace(text)
	if question == "" {
		return Outcome{
			Kind:      OutcomeDiscussionOpen,
			Text:      fmt.Sprintf(emptyQuestionText, remaining),
			ProblemID: st.ProblemID,
			Remaining: remaining,
		}, nil
	}

	answer, err := e.generator.GenerateDiscussionAnswer(ctx, DiscussionRequest{
		Description: st.Description,
		Solution:    st.Solution,
		History:     st.History,
		Question:    question,
	})
	fallback := false
	if err != nil || strings.TrimSpace(answer) == "" {
		e.recordFallback(ctx, "discussion", s.UserID, err)
		answer = fallbackAnswerText
		fallback = true
	}

	// The ledger's remaining count is computed against the current balance,
	// which already excludes credits spent earlier in this session.
	_, purchased, err := e.ledger.DebitDiscussionUnit(ctx, s.UserID, st.Used)
	if err != nil {
		return Outcome{}, err
	}
	left := remaining - 1
	st.Used++
	if purchased {
		st.PurchasedSpent++
	}
	st.History = st.History.
		Append(domain.SpeakerUser, question).
		Append(domain.SpeakerAssistant, answer)
	e.metrics.Counter(observability.MetricDiscussionQuestions, 1, observability.T("purchased", fmt.Sprint(purchased)))

	outcome := Outcome{
		Kind:      OutcomeAnswer,
		Text:      answer,
		ProblemID: st.ProblemID,
		Remaining: left,
		Fallback:  fallback,
	}
	if left <= 0 {
		s.Reset(e.clock.Now())
		outcome.Remaining = 0
		outcome.Options = []Option{buyDiscussionOption, newProblemOption}
		return outcome, nil
	}
	s.Transition(st, e.clock.Now())
	return outcome, nil
}

func (e *Engine) exhausted(s *domain.Session) Outcome {
	s.Reset(e.clock.Now())
	return Outcome{
		Kind:    OutcomeAllowanceExhausted,
		Text:    exhaustedText,
		Options: []Option{buyDiscussionOption, newProblemOption},
	}
}

func (e *Engine) discussionRemaining(ctx context.Context, userID uuid.UUID, st domain.Discussing) (int, error) {
	allowance, err := e.ledger.DiscussionAllowance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return st.Remaining(allowance), nil
}

func (e *Engine) saveProblem(ctx context.Context, problem *domain.Problem) error {
	return sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		if err := e.problems.Save(txCtx, problem); err != nil {
			return err
		}
		events := problem.DomainEvents()
		if len(events) == 0 {
			return nil
		}
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(txCtx, problem.UserID()))
		msgs, err := outbox.NewMessages(events)
		if err != nil {
			return err
		}
		if err := e.outbox.SaveBatch(txCtx, msgs); err != nil {
			return err
		}
		problem.ClearDomainEvents()
		return nil
	})
}

func (e *Engine) recordFallback(ctx context.Context, op string, userID uuid.UUID, err error) {
	e.metrics.Counter(observability.MetricGenerationFallbacks, 1, observability.T("operation", op))
	e.logger.WarnContext(ctx, "generation failed, using fallback",
		"user_id", userID,
		"operation", op,
		"error", err,
	)
}

var (
	newProblemOption    = Option{Action: ActionNewProblem, Label: "New problem"}
	skipOption          = Option{Action: ActionSkip, Label: "Skip question"}
	solutionOption      = Option{Action: ActionSolution, Label: "Get solution now"}
	discussOption       = Option{Action: ActionDiscuss, Label: "Discuss the solution"}
	buyPackageOption    = Option{Action: ActionBuyPackage, Label: "Buy a package"}
	buyDiscussionOption = Option{Action: ActionBuyDiscussions, Label: "Buy discussion questions"}
)
