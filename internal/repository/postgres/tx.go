package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"autodrive/internal/repository"
)

// Transactor runs functions inside a PostgreSQL transaction.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a new Transactor.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx begins a transaction, hands transaction-scoped repositories to
// fn, and commits if fn succeeds.
func (t *Transactor) WithinTx(ctx context.Context, fn func(repos repository.Repositories) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = fn(repository.Repositories{
		Trips:       NewTripRepositoryWithTx(tx),
		Vehicles:    NewVehicleRepositoryWithTx(tx),
		Accounts:    NewAccountRepositoryWithTx(tx),
		Settlements: NewSettlementRepositoryWithTx(tx),
	})
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ensure Transactor implements repository.Transactor.
var _ repository.Transactor = (*Transactor)(nil)
