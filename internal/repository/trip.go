package repository

import (
	"context"

	"autodrive/internal/domain"
)

// TripFilter narrows a trip listing. Zero values match everything.
type TripFilter struct {
	RiderID  string
	DriverID string
	Status   domain.TripStatus
	Limit    int
}

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip. Returns ErrConflict if the rider already
	// has a non-terminal trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// List retrieves trips, newest first.
	List(ctx context.Context, filter TripFilter) ([]*domain.Trip, error)

	// UpdateIfStatus writes the trip only if its stored status still equals
	// expected. Returns ErrPreconditionFailed otherwise, and ErrConflict if
	// the write would give the driver a second non-terminal trip.
	UpdateIfStatus(ctx context.Context, trip *domain.Trip, expected domain.TripStatus) error

	// GetActiveByRiderID retrieves the non-terminal trip for a rider.
	// Returns nil if no active trip exists.
	GetActiveByRiderID(ctx context.Context, riderID string) (*domain.Trip, error)

	// GetActiveByDriverID retrieves the non-terminal trip for a driver.
	// Returns nil if no active trip exists.
	GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Trip, error)
}
