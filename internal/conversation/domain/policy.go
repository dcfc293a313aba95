package domain

import "time"

const (
	// QuestionRounds is the number of clarifying questions asked before the solution.
	QuestionRounds = 5
	// MinRoundsForSolution is how many questions must be asked before an early solution.
	MinRoundsForSolution = 3
	// RecentHistoryTurns bounds the history passed to question generation.
	RecentHistoryTurns = 4
	// RootCauseLimit bounds the solution prefix stored as the root cause.
	RootCauseLimit = 500
	// HistoryPageSize is the number of problems listed in a user's history.
	HistoryPageSize = 10
	// DefaultStartThrottle is the minimum gap between two problem starts.
	DefaultStartThrottle = 2 * time.Second
)

// Policy holds the tunable dialogue limits.
type Policy struct {
	QuestionRounds       int
	MinRoundsForSolution int
	RecentHistoryTurns   int
	StartThrottle        time.Duration
}

// DefaultPolicy returns the standard dialogue limits.
func DefaultPolicy() Policy {
	return Policy{
		QuestionRounds:       QuestionRounds,
		MinRoundsForSolution: MinRoundsForSolution,
		RecentHistoryTurns:   RecentHistoryTurns,
		StartThrottle:        DefaultStartThrottle,
	}
}

// Normalize fills zero values with defaults and keeps the early-solution
// minimum within the round limit.
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.QuestionRounds <= 0 {
		p.QuestionRounds = d.QuestionRounds
	}
	if p.MinRoundsForSolution <= 0 {
		p.MinRoundsForSolution = d.MinRoundsForSolution
	}
	if p.MinRoundsForSolution > p.QuestionRounds {
		p.MinRoundsForSolution = p.QuestionRounds
	}
	if p.RecentHistoryTurns <= 0 {
		p.RecentHistoryTurns = d.RecentHistoryTurns
	}
	if p.StartThrottle < 0 {
		p.StartThrottle = 0
	}
	return p
}
