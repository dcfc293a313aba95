package persistence

import (
	"github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
)

// Repositories groups the ledger repositories for one connection.
type Repositories struct {
	Users     domain.UserRepository
	Referrals domain.ReferralRepository
	Payments  domain.PaymentRepository
}

// NewRepositories picks implementations matching the connection driver.
func NewRepositories(conn database.Connection) Repositories {
	if conn.Driver() == database.DriverPostgres {
		return Repositories{
			Users:     NewPostgresUserRepository(conn),
			Referrals: NewPostgresReferralRepository(conn),
			Payments:  NewPostgresPaymentRepository(conn),
		}
	}
	return Repositories{
		Users:     NewSQLiteUserRepository(conn),
		Referrals: NewSQLiteReferralRepository(conn),
		Payments:  NewSQLitePaymentRepository(conn),
	}
}
