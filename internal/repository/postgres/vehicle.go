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

const vehicleColumns = `id, driver_id, model, seats, lat, lng, status, is_active, total_trips, total_distance_km, total_earnings`

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// NewVehicleRepositoryWithTx creates a vehicle repository using a transaction.
func NewVehicleRepositoryWithTx(tx *sql.Tx) *VehicleRepository {
	return &VehicleRepository{q: tx}
}

// Create adds a new vehicle.
func (r *VehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	var lat, lng sql.NullFloat64
	if v.Position != nil {
		lat = sql.NullFloat64{Float64: v.Position.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: v.Position.Lng, Valid: true}
	}

	query := `INSERT INTO vehicles (` + vehicleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.ExecContext(ctx, query,
		v.ID, v.DriverID, v.Model, v.Seats, lat, lng, v.Status, v.Active,
		v.Stats.TotalTrips, v.Stats.TotalDistanceKm, v.Stats.TotalEarnings,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: vehicle %s exists", repository.ErrConflict, v.ID)
	}
	return err
}

// GetByID retrieves a vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`

	v, err := scanVehicle(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// List retrieves vehicles matching the filter, ordered by ID.
func (r *VehicleRepository) List(ctx context.Context, filter repository.VehicleFilter) ([]*domain.Vehicle, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DriverID != "" {
		args = append(args, filter.DriverID)
		conds = append(conds, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}

	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}

	return vehicles, rows.Err()
}

// UpdatePosition stores the last known position of a vehicle.
func (r *VehicleRepository) UpdatePosition(ctx context.Context, id string, p domain.Point) error {
	query := `UPDATE vehicles SET lat = $1, lng = $2, updated_at = now() WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, p.Lat, p.Lng, id)
	if err != nil {
		return err
	}
	return expectOneRow(result, repository.ErrNotFound)
}

// UpdateStatus sets the status of a vehicle that is not on a trip.
func (r *VehicleRepository) UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error {
	query := `UPDATE vehicles SET status = $1, updated_at = now() WHERE id = $2 AND status <> 'on_trip'`
	return r.guardedUpdate(ctx, id, query, status, id)
}

// Claim moves an active, available vehicle to on_trip.
func (r *VehicleRepository) Claim(ctx context.Context, id string) error {
	query := `UPDATE vehicles SET status = 'on_trip', updated_at = now() WHERE id = $1 AND status = 'available' AND is_active`
	return r.guardedUpdate(ctx, id, query, id)
}

// Release moves an on_trip vehicle back to available.
func (r *VehicleRepository) Release(ctx context.Context, id string) error {
	query := `UPDATE vehicles SET status = 'available', updated_at = now() WHERE id = $1 AND status = 'on_trip'`
	return r.guardedUpdate(ctx, id, query, id)
}

// RecordTrip adds a completed trip to the vehicle's statistics.
func (r *VehicleRepository) RecordTrip(ctx context.Context, id string, distanceKm float64, earnings int64) error {
	query := `
		UPDATE vehicles
		SET total_trips = total_trips + 1,
		    total_distance_km = total_distance_km + $1,
		    total_earnings = total_earnings + $2,
		    updated_at = now()
		WHERE id = $3
	`

	result, err := r.q.ExecContext(ctx, query, distanceKm, earnings, id)
	if err != nil {
		return err
	}
	return expectOneRow(result, repository.ErrNotFound)
}

func (r *VehicleRepository) guardedUpdate(ctx context.Context, id, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	if err := expectOneRow(result, repository.ErrPreconditionFailed); err != nil {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("%w: vehicle %s", err, id)
	}
	return nil
}

func scanVehicle(row rowScanner) (*domain.Vehicle, error) {
	var (
		v        domain.Vehicle
		lat, lng sql.NullFloat64
	)

	err := row.Scan(
		&v.ID, &v.DriverID, &v.Model, &v.Seats, &lat, &lng, &v.Status, &v.Active,
		&v.Stats.TotalTrips, &v.Stats.TotalDistanceKm, &v.Stats.TotalEarnings,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		v.Position = &domain.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &v, nil
}

// Ensure VehicleRepository implements repository.VehicleRepository.
var _ repository.VehicleRepository = (*VehicleRepository)(nil)
