package repository

import (
	"context"

	"autodrive/internal/domain"
)

// VehicleFilter narrows a vehicle listing. Zero values match everything.
type VehicleFilter struct {
	DriverID   string
	Status     domain.VehicleStatus
	ActiveOnly bool
}

// VehicleRepository defines the persistence operations for vehicles.
type VehicleRepository interface {
	// Create adds a new vehicle.
	Create(ctx context.Context, vehicle *domain.Vehicle) error

	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// List retrieves vehicles matching the filter, ordered by ID.
	List(ctx context.Context, filter VehicleFilter) ([]*domain.Vehicle, error)

	// UpdatePosition stores the last known position of a vehicle.
	UpdatePosition(ctx context.Context, id string, position domain.Point) error

	// UpdateStatus sets the status of a vehicle that is not on a trip.
	// Returns ErrPreconditionFailed if the vehicle is on a trip.
	UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error

	// Claim moves an active, available vehicle to on_trip.
	// Returns ErrPreconditionFailed if the vehicle is not claimable.
	Claim(ctx context.Context, id string) error

	// Release moves an on_trip vehicle back to available.
	// Returns ErrPreconditionFailed if the vehicle is not on a trip.
	Release(ctx context.Context, id string) error

	// RecordTrip adds a completed trip to the vehicle's statistics.
	RecordTrip(ctx context.Context, id string, distanceKm float64, earnings int64) error
}
