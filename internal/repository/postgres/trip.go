package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"autodrive/internal/domain"
	"autodrive/internal/repository"
)

const tripColumns = `
	id, rider_id, driver_id, vehicle_id,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, pickup_address, dropoff_address,
	passenger_count, distance_km, estimated_minutes, actual_minutes, driver_eta_minutes,
	fare_base, fare_distance, fare_time, fare_subtotal, fare_platform_fee, fare_total, fare_driver_amount,
	fare_distance_km, fare_duration_minutes, fare_per_km_rate, fare_per_minute_rate, fare_platform_fee_bps,
	status,
	escrow_id, escrow_funding_tx, escrow_lock_tx, escrow_amount, escrow_platform_fee, escrow_locked_at,
	payment_tx_ref, release_tx_ref, refund_tx_ref,
	requested_at, matched_at, accepted_at, picked_up_at, completed_at, cancelled_at,
	cancellation_reason, cancelled_by`

const activeTripCondition = `status NOT IN ('COMPLETED', 'CANCELLED')`

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	args := tripArgs(trip)
	query := `INSERT INTO trips (` + tripColumns + `) VALUES (` + placeholders(1, len(args)) + `)`
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: rider %s has an active trip", repository.ErrConflict, trip.RiderID)
		}
		return err
	}
	return nil
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// List retrieves trips, newest first.
func (r *TripRepository) List(ctx context.Context, filter repository.TripFilter) ([]*domain.Trip, error) {
	var (
		conds []string
		args  []any
	)
	if filter.RiderID != "" {
		args = append(args, filter.RiderID)
		conds = append(conds, fmt.Sprintf("rider_id = $%d", len(args)))
	}
	if filter.DriverID != "" {
		args = append(args, filter.DriverID)
		conds = append(conds, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY requested_at DESC LIMIT $%d`, len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*domain.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

// UpdateIfStatus writes every mutable column of the trip, guarded by the
// previously observed status.
func (r *TripRepository) UpdateIfStatus(ctx context.Context, trip *domain.Trip, expected domain.TripStatus) error {
	args := tripArgs(trip)
	cols := strings.Split(tripColumns, ",")
	sets := make([]string, 0, len(cols)-1)
	for i, col := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", strings.TrimSpace(col), i+2))
	}

	query := fmt.Sprintf(`UPDATE trips SET %s WHERE id = $1 AND status = $%d`,
		strings.Join(sets, ", "), len(args)+1)

	result, err := r.q.ExecContext(ctx, query, append(args, expected)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: driver %s has an active trip", repository.ErrConflict, trip.DriverID)
		}
		return err
	}

	if err := expectOneRow(result, repository.ErrPreconditionFailed); err != nil {
		if _, getErr := r.GetByID(ctx, trip.ID); errors.Is(getErr, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("%w: trip %s is no longer %s", err, trip.ID, expected)
	}
	return nil
}

// GetActiveByRiderID retrieves the active trip for a rider.
// Returns nil if no active trip exists.
func (r *TripRepository) GetActiveByRiderID(ctx context.Context, riderID string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE rider_id = $1 AND ` + activeTripCondition + ` LIMIT 1`
	return r.getOptional(ctx, query, riderID)
}

// GetActiveByDriverID retrieves the active trip for a driver.
// Returns nil if no active trip exists.
func (r *TripRepository) GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE driver_id = $1 AND ` + activeTripCondition + ` LIMIT 1`
	return r.getOptional(ctx, query, driverID)
}

func (r *TripRepository) getOptional(ctx context.Context, query string, arg any) (*domain.Trip, error) {
	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return trip, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var (
		trip         domain.Trip
		driverID     sql.NullString
		vehicleID    sql.NullString
		escrowID     sql.NullString
		fundingTx    sql.NullString
		lockTx       sql.NullString
		escrowAmount sql.NullInt64
		escrowFee    sql.NullInt64
		lockedAt     sql.NullTime
		matchedAt    sql.NullTime
		acceptedAt   sql.NullTime
		pickedUpAt   sql.NullTime
		completedAt  sql.NullTime
		cancelledAt  sql.NullTime
		cancelledBy  string
	)

	err := row.Scan(
		&trip.ID, &trip.RiderID, &driverID, &vehicleID,
		&trip.Pickup.Lat, &trip.Pickup.Lng, &trip.Dropoff.Lat, &trip.Dropoff.Lng,
		&trip.PickupAddress, &trip.DropoffAddress,
		&trip.PassengerCount, &trip.DistanceKm, &trip.EstimatedMinutes, &trip.ActualMinutes, &trip.DriverETAMinutes,
		&trip.Fare.BaseFare, &trip.Fare.DistanceFare, &trip.Fare.TimeFare, &trip.Fare.Subtotal,
		&trip.Fare.PlatformFee, &trip.Fare.Total, &trip.Fare.DriverAmount,
		&trip.Fare.DistanceKm, &trip.Fare.DurationMinutes,
		&trip.Fare.PerKmRate, &trip.Fare.PerMinuteRate, &trip.Fare.PlatformFeeBps,
		&trip.Status,
		&escrowID, &fundingTx, &lockTx, &escrowAmount, &escrowFee, &lockedAt,
		&trip.PaymentTxRef, &trip.ReleaseTxRef, &trip.RefundTxRef,
		&trip.RequestedAt, &matchedAt, &acceptedAt, &pickedUpAt, &completedAt, &cancelledAt,
		&trip.CancellationReason, &cancelledBy,
	)
	if err != nil {
		return nil, err
	}

	trip.DriverID = driverID.String
	trip.VehicleID = vehicleID.String
	trip.CancelledBy = domain.ActorRole(cancelledBy)
	trip.MatchedAt = matchedAt.Time
	trip.AcceptedAt = acceptedAt.Time
	trip.PickedUpAt = pickedUpAt.Time
	trip.CompletedAt = completedAt.Time
	trip.CancelledAt = cancelledAt.Time

	if escrowID.Valid {
		trip.Escrow = &domain.EscrowReference{
			EscrowID:     escrowID.String,
			FundingTxRef: fundingTx.String,
			LockTxRef:    lockTx.String,
			Amount:       escrowAmount.Int64,
			PlatformFee:  escrowFee.Int64,
			LockedAt:     lockedAt.Time,
		}
	}

	return &trip, nil
}

// tripArgs returns the column values in tripColumns order.
func tripArgs(trip *domain.Trip) []any {
	fare := trip.Fare

	var (
		escrowID, fundingTx, lockTx sql.NullString
		escrowAmount, escrowFee     sql.NullInt64
		lockedAt                    sql.NullTime
	)
	if e := trip.Escrow; e != nil {
		escrowID = sql.NullString{String: e.EscrowID, Valid: true}
		fundingTx = toNullString(e.FundingTxRef)
		lockTx = toNullString(e.LockTxRef)
		escrowAmount = sql.NullInt64{Int64: e.Amount, Valid: true}
		escrowFee = sql.NullInt64{Int64: e.PlatformFee, Valid: true}
		lockedAt = toNullTime(e.LockedAt)
	}

	return []any{
		trip.ID, trip.RiderID, toNullString(trip.DriverID), toNullString(trip.VehicleID),
		trip.Pickup.Lat, trip.Pickup.Lng, trip.Dropoff.Lat, trip.Dropoff.Lng,
		trip.PickupAddress, trip.DropoffAddress,
		trip.PassengerCount, trip.DistanceKm, trip.EstimatedMinutes, trip.ActualMinutes, trip.DriverETAMinutes,
		fare.BaseFare, fare.DistanceFare, fare.TimeFare, fare.Subtotal,
		fare.PlatformFee, fare.Total, fare.DriverAmount,
		fare.DistanceKm, fare.DurationMinutes,
		fare.PerKmRate, fare.PerMinuteRate, fare.PlatformFeeBps,
		trip.Status,
		escrowID, fundingTx, lockTx, escrowAmount, escrowFee, lockedAt,
		trip.PaymentTxRef, trip.ReleaseTxRef, trip.RefundTxRef,
		trip.RequestedAt, toNullTime(trip.MatchedAt), toNullTime(trip.AcceptedAt),
		toNullTime(trip.PickedUpAt), toNullTime(trip.CompletedAt), toNullTime(trip.CancelledAt),
		trip.CancellationReason, string(trip.CancelledBy),
	}
}

func placeholders(start, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ph, ", ")
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
