package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProblem(t *testing.T) {
	_, err := NewProblem(uuid.New(), "   ", now)
	assert.ErrorIs(t, err, ErrEmptyProblem)

	p, err := NewProblem(uuid.New(), "  I procrastinate  ", now)
	require.NoError(t, err)
	assert.Equal(t, "I procrastinate", p.Title())
	assert.Equal(t, ProblemStatusActive, p.Status())
	require.Len(t, p.DomainEvents(), 1)
	assert.Equal(t, RoutingProblemCreated, p.DomainEvents()[0].RoutingKey())
}

func TestProblem_SolveStoresBoundedRootCause(t *testing.T) {
	p, err := NewProblem(uuid.New(), "stress", now)
	require.NoError(t, err)
	p.ClearDomainEvents()

	solution := strings.Repeat("ж", RootCauseLimit+20)
	p.Solve(solution, now)

	assert.True(t, p.IsSolved())
	assert.Equal(t, solution, p.ActionPlan())
	assert.Equal(t, RootCauseLimit, len([]rune(p.RootCause())))
	require.NotNil(t, p.SolvedAt())
	require.Len(t, p.DomainEvents(), 1)
	assert.Equal(t, RoutingProblemSolved, p.DomainEvents()[0].RoutingKey())

	p.Solve("other", now)
	assert.Equal(t, solution, p.ActionPlan())
	assert.Len(t, p.DomainEvents(), 1)
}
