package repository

import "context"

// Repositories groups repositories bound to the same transaction.
type Repositories struct {
	Trips       TripRepository
	Vehicles    VehicleRepository
	Accounts    AccountRepository
	Settlements SettlementRepository
}

// Transactor runs a function inside a single database transaction. The
// transaction commits if fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}
