package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"autodrive/internal/domain"
	"autodrive/internal/repository"
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	q Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{q: db}
}

// NewAccountRepositoryWithTx creates an account repository using a transaction.
func NewAccountRepositoryWithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{q: tx}
}

// Create adds a new account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (id, name, wallet_address) VALUES ($1, $2, $3) RETURNING created_at`
	err := r.q.QueryRowContext(ctx, query, a.ID, a.Name, a.WalletAddress).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account %s exists", repository.ErrConflict, a.ID)
	}
	return err
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT id, name, wallet_address, rides_as_passenger, rides_as_driver, created_at FROM accounts WHERE id = $1`

	var a domain.Account
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.WalletAddress, &a.RidesAsPassenger, &a.RidesAsDriver, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// WalletAddress returns the wallet of an account.
func (r *AccountRepository) WalletAddress(ctx context.Context, accountID string) (string, error) {
	query := `SELECT wallet_address FROM accounts WHERE id = $1`

	var wallet string
	err := r.q.QueryRowContext(ctx, query, accountID).Scan(&wallet)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: account %s", repository.ErrNotFound, accountID)
	}
	if err != nil {
		return "", err
	}
	if wallet == "" {
		return "", fmt.Errorf("%w: account %s has no wallet", repository.ErrNotFound, accountID)
	}
	return wallet, nil
}

// RecordRide increments the ride counters of a completed trip's rider and driver.
func (r *AccountRepository) RecordRide(ctx context.Context, riderID, driverID string) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET rides_as_passenger = rides_as_passenger + 1 WHERE id = $1`, riderID); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET rides_as_driver = rides_as_driver + 1 WHERE id = $1`, driverID)
	return err
}

// Ensure AccountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*AccountRepository)(nil)
