package domain

import "errors"

var (
	// ErrInvalidState is returned when an input does not fit the session phase.
	ErrInvalidState = errors.New("conversation: input not valid in current phase")
	// ErrThrottled is returned when a new problem is requested too soon.
	ErrThrottled = errors.New("conversation: start throttled")
	// ErrGenerationFailed wraps the last error of an exhausted generation attempt.
	ErrGenerationFailed = errors.New("conversation: generation failed")
	// ErrTooEarlyForSolution is returned when fewer rounds than required were asked.
	ErrTooEarlyForSolution = errors.New("conversation: too few questions asked for a solution")
	// ErrEmptyProblem is returned for a blank problem description.
	ErrEmptyProblem = errors.New("conversation: problem description is empty")
	// ErrProblemNotFound is returned when a problem does not exist.
	ErrProblemNotFound = errors.New("conversation: problem not found")
	// ErrNoProblemCredits is reported by the ledger when no problem credit is left.
	ErrNoProblemCredits = errors.New("conversation: no problem credits")
)
