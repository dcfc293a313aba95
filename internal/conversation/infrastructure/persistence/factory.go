package persistence

import (
	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
)

// NewProblemRepository picks the implementation matching the connection driver.
func NewProblemRepository(conn database.Connection) domain.ProblemRepository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresProblemRepository(conn)
	}
	return NewSQLiteProblemRepository(conn)
}
