package persistence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/counsel/internal/conversation/infrastructure/persistence"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	ledgerPersistence "github.com/felixgeelhaar/counsel/internal/ledger/infrastructure/persistence"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/dbtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func TestSQLiteProblemRepository(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	repo := persistence.NewProblemRepository(conn)

	user, err := ledgerDomain.NewUser("tg-1", "Ann", now)
	require.NoError(t, err)
	require.NoError(t, ledgerPersistence.NewRepositories(conn).Users.Save(ctx, user))

	for i := 0; i < 12; i++ {
		p, err := domain.NewProblem(user.ID(), fmt.Sprintf("problem %d", i), now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, p))
	}

	recent, err := repo.ListRecentByUser(ctx, user.ID(), domain.HistoryPageSize)
	require.NoError(t, err)
	require.Len(t, recent, domain.HistoryPageSize)
	assert.Equal(t, "problem 11", recent[0].Title())
	assert.Equal(t, "problem 2", recent[9].Title())

	target := recent[0]
	target.Solve("breathe, then plan", now.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, target))

	loaded, err := repo.FindByID(ctx, target.ID())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, domain.ProblemStatusSolved, loaded.Status())
	assert.Equal(t, "breathe, then plan", loaded.ActionPlan())
	assert.Equal(t, "breathe, then plan", loaded.RootCause())
	require.NotNil(t, loaded.SolvedAt())
	assert.True(t, now.Add(time.Hour).Equal(*loaded.SolvedAt()))

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
