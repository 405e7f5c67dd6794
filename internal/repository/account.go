package repository

import (
	"context"

	"autodrive/internal/domain"
)

// WalletDirectory resolves account wallet addresses.
type WalletDirectory interface {
	// WalletAddress returns the wallet of an account.
	// Returns ErrNotFound if the account is unknown or has no wallet.
	WalletAddress(ctx context.Context, accountID string) (string, error)
}

// AccountRepository defines the persistence operations for accounts.
type AccountRepository interface {
	WalletDirectory

	// Create adds a new account.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// RecordRide increments the ride counters of a completed trip's rider and driver.
	RecordRide(ctx context.Context, riderID, driverID string) error
}
