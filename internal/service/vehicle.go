package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autodrive/internal/domain"
	"autodrive/internal/geo"
	"autodrive/internal/redis"
	"autodrive/internal/repository"
)

const defaultAvailableLimit = 20

// VehicleService handles fleet operations.
type VehicleService struct {
	vehicleRepo     repository.VehicleRepository
	accountRepo     repository.AccountRepository
	locationStore   redis.LocationStoreInterface
	matchingService *MatchingService
	avgSpeedKmh     float64
	logger          logrus.FieldLogger
	now             func() time.Time
}

// NewVehicleService creates a new VehicleService. locationStore may be nil.
func NewVehicleService(
	vehicleRepo repository.VehicleRepository,
	accountRepo repository.AccountRepository,
	locationStore redis.LocationStoreInterface,
	matchingService *MatchingService,
	avgSpeedKmh float64,
	logger logrus.FieldLogger,
) *VehicleService {
	return &VehicleService{
		vehicleRepo:     vehicleRepo,
		accountRepo:     accountRepo,
		locationStore:   locationStore,
		matchingService: matchingService,
		avgSpeedKmh:     avgSpeedKmh,
		logger:          logger,
		now:             time.Now,
	}
}

// RegisterVehicleRequest contains the parameters for registering a vehicle.
type RegisterVehicleRequest struct {
	DriverID string
	Model    string
	Seats    int           // Optional: 0 when unknown
	Position *domain.Point // Optional
}

// Register adds an available vehicle to a driver's fleet.
func (s *VehicleService) Register(ctx context.Context, req RegisterVehicleRequest) (*domain.Vehicle, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.Seats < 0 || req.Seats > maxPassengers+1 {
		return nil, ErrInvalidPassengerCount
	}
	if req.Position != nil && !geo.ValidPoint(*req.Position) {
		return nil, ErrInvalidLocation
	}

	if _, err := s.accountRepo.GetByID(ctx, req.DriverID); err != nil {
		return nil, fmt.Errorf("driver %s: %w", req.DriverID, err)
	}

	vehicle := &domain.Vehicle{
		ID:       uuid.New().String(),
		DriverID: req.DriverID,
		Model:    req.Model,
		Seats:    req.Seats,
		Position: req.Position,
		Status:   domain.VehicleStatusAvailable,
		Active:   true,
	}
	if err := s.vehicleRepo.Create(ctx, vehicle); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"vehicle_id": vehicle.ID,
		"driver_id":  vehicle.DriverID,
	}).Info("vehicle registered")
	return vehicle, nil
}

// List retrieves vehicles matching the filter.
func (s *VehicleService) List(ctx context.Context, filter repository.VehicleFilter) ([]*domain.Vehicle, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidVehicleStatus
	}
	return s.vehicleRepo.List(ctx, filter)
}

// Get retrieves a vehicle by ID.
func (s *VehicleService) Get(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	return s.vehicleRepo.GetByID(ctx, vehicleID)
}

// AvailableQuery contains the parameters for listing vehicles near a rider.
type AvailableQuery struct {
	Location domain.Point
	RadiusKm float64 // Optional: 0 uses the matching default
	Limit    int     // Optional: 0 returns up to 20
}

// AvailableVehicle is a vehicle that could serve a pickup at Location.
type AvailableVehicle struct {
	Vehicle    *domain.Vehicle
	Position   domain.Point
	DistanceKm float64
	ETAMinutes int
	Simulated  bool
}

// Available lists the available vehicles around a location, nearest first,
// with the estimated minutes each needs to arrive.
func (s *VehicleService) Available(ctx context.Context, q AvailableQuery) ([]AvailableVehicle, error) {
	if !geo.ValidPoint(q.Location) || q.RadiusKm < 0 {
		return nil, ErrInvalidLocation
	}

	candidates, err := s.matchingService.FindCandidates(ctx, MatchQuery{
		Pickup:         q.Location,
		RadiusKm:       q.RadiusKm,
		PassengerCount: 1,
	})
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = defaultAvailableLimit
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]AvailableVehicle, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, AvailableVehicle{
			Vehicle:    c.Vehicle,
			Position:   c.Position,
			DistanceKm: c.DistanceKm,
			ETAMinutes: geo.EstimateMinutes(c.DistanceKm, s.avgSpeedKmh),
			Simulated:  c.Simulated,
		})
	}
	return out, nil
}

// UpdateLocationRequest contains the parameters for updating a vehicle position.
type UpdateLocationRequest struct {
	VehicleID string
	DriverID  string // Optional: when set, must own the vehicle
	Lat       float64
	Lng       float64
}

// UpdateLocation stores a vehicle position in Postgres and in the live
// Redis index used by matching.
func (s *VehicleService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if req.VehicleID == "" {
		return ErrInvalidVehicleID
	}
	p := domain.Point{Lat: req.Lat, Lng: req.Lng}
	if !geo.ValidPoint(p) {
		return ErrInvalidLocation
	}

	if req.DriverID != "" {
		vehicle, err := s.vehicleRepo.GetByID(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		if vehicle.DriverID != req.DriverID {
			return fmt.Errorf("%w: vehicle %s belongs to another driver", ErrPermissionDenied, vehicle.ID)
		}
	}

	if err := s.vehicleRepo.UpdatePosition(ctx, req.VehicleID, p); err != nil {
		return err
	}

	if s.locationStore != nil {
		if err := s.locationStore.UpdateLocation(ctx, req.VehicleID, p, s.now()); err != nil {
			s.logger.WithError(err).WithField("vehicle_id", req.VehicleID).Warn("failed to index live position")
		}
	}
	return nil
}

// SetStatus takes a vehicle in or out of service. Vehicles on a trip are
// released only by the trip lifecycle.
func (s *VehicleService) SetStatus(ctx context.Context, vehicleID, driverID string, status domain.VehicleStatus) (*domain.Vehicle, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	if !status.Valid() || status == domain.VehicleStatusOnTrip {
		return nil, ErrInvalidVehicleStatus
	}

	vehicle, err := s.vehicleRepo.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if driverID != "" && vehicle.DriverID != driverID {
		return nil, fmt.Errorf("%w: vehicle %s belongs to another driver", ErrPermissionDenied, vehicle.ID)
	}

	if err := s.vehicleRepo.UpdateStatus(ctx, vehicleID, status); err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return nil, fmt.Errorf("%w: vehicle %s is on a trip", ErrInvalidStateTransition, vehicleID)
		}
		return nil, err
	}
	vehicle.Status = status

	if status != domain.VehicleStatusAvailable && s.locationStore != nil {
		if err := s.locationStore.RemoveLocation(ctx, vehicleID); err != nil {
			s.logger.WithError(err).WithField("vehicle_id", vehicleID).Warn("failed to drop live position")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"vehicle_id": vehicleID,
		"status":     status,
	}).Info("vehicle status changed")
	return vehicle, nil
}
