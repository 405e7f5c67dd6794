package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"autodrive/internal/domain"
	"autodrive/internal/repository"
)

const settlementColumns = `id, trip_id, kind, escrow_id, amount, minutes, funding_tx_ref, tx_ref, status, error, idempotency_key, created_at, updated_at`

// SettlementRepository is a PostgreSQL implementation of repository.SettlementRepository.
type SettlementRepository struct {
	q Querier
}

// NewSettlementRepository creates a new PostgreSQL settlement repository.
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{q: db}
}

// NewSettlementRepositoryWithTx creates a settlement repository using a transaction.
func NewSettlementRepositoryWithTx(tx *sql.Tx) *SettlementRepository {
	return &SettlementRepository{q: tx}
}

// Create persists a new settlement.
func (r *SettlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	query := `
		INSERT INTO settlements (id, trip_id, kind, escrow_id, amount, minutes, funding_tx_ref, tx_ref, status, error, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRowContext(ctx, query,
		s.ID,
		s.TripID,
		s.Kind,
		s.EscrowID,
		s.Amount,
		s.Minutes,
		s.FundingTxRef,
		s.TxRef,
		s.Status,
		s.Error,
		s.IdempotencyKey,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: settlement %s exists", repository.ErrConflict, s.IdempotencyKey)
	}
	return err
}

// GetByIdempotencyKey retrieves a settlement by its idempotency key.
// Returns nil if no settlement exists with the given key.
func (r *SettlementRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE idempotency_key = $1`
	return r.getOptional(ctx, query, key)
}

// GetByFundingTxRef retrieves the lock settlement backed by a funding transaction.
// Returns nil if the transaction backs no lock.
func (r *SettlementRepository) GetByFundingTxRef(ctx context.Context, txRef string) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE funding_tx_ref = $1 AND funding_tx_ref <> ''`
	return r.getOptional(ctx, query, txRef)
}

func (r *SettlementRepository) getOptional(ctx context.Context, query string, arg any) (*domain.Settlement, error) {
	s, err := scanSettlement(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListByTrip retrieves all settlements of a trip, oldest first.
func (r *SettlementRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE trip_id = $1 ORDER BY created_at`

	rows, err := r.q.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []*domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}

	return settlements, rows.Err()
}

// UpdateResult records the outcome of a settlement.
func (r *SettlementRepository) UpdateResult(ctx context.Context, id string, status domain.SettlementStatus, txRef, errMsg string) error {
	query := `UPDATE settlements SET status = $1, tx_ref = $2, error = $3, updated_at = now() WHERE id = $4`

	result, err := r.q.ExecContext(ctx, query, status, txRef, errMsg, id)
	if err != nil {
		return err
	}
	return expectOneRow(result, repository.ErrNotFound)
}

func scanSettlement(row rowScanner) (*domain.Settlement, error) {
	var s domain.Settlement
	err := row.Scan(
		&s.ID,
		&s.TripID,
		&s.Kind,
		&s.EscrowID,
		&s.Amount,
		&s.Minutes,
		&s.FundingTxRef,
		&s.TxRef,
		&s.Status,
		&s.Error,
		&s.IdempotencyKey,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Ensure SettlementRepository implements repository.SettlementRepository.
var _ repository.SettlementRepository = (*SettlementRepository)(nil)
