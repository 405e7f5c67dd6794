package repository

import (
	"context"

	"autodrive/internal/domain"
)

// SettlementRepository defines the persistence operations for ledger settlements.
type SettlementRepository interface {
	// Create persists a new settlement. Returns ErrConflict if the
	// idempotency key or the funding transaction is taken.
	Create(ctx context.Context, settlement *domain.Settlement) error

	// GetByIdempotencyKey retrieves a settlement by its idempotency key.
	// Returns nil if no settlement exists with the given key.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Settlement, error)

	// GetByFundingTxRef retrieves the lock settlement backed by a funding
	// transaction. Returns nil if the transaction backs no lock.
	GetByFundingTxRef(ctx context.Context, txRef string) (*domain.Settlement, error)

	// ListByTrip retrieves all settlements of a trip, oldest first.
	ListByTrip(ctx context.Context, tripID string) ([]*domain.Settlement, error)

	// UpdateResult records the outcome of a settlement.
	UpdateResult(ctx context.Context, id string, status domain.SettlementStatus, txRef, errMsg string) error
}
