package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"autodrive/internal/domain"
	"autodrive/internal/geo"
	"autodrive/internal/redis"
	"autodrive/internal/repository"
)

const defaultSearchRadiusKm = 10.0

// MatchingService ranks available vehicles around a pickup point.
// It never claims a vehicle; TripService does that.
type MatchingService struct {
	vehicleRepo     repository.VehicleRepository
	locationStore   redis.LocationStoreInterface
	defaultRadiusKm float64
	logger          logrus.FieldLogger
	now             func() time.Time
}

// NewMatchingService creates a new MatchingService. locationStore may be nil,
// in which case only stored and simulated positions are used.
func NewMatchingService(
	vehicleRepo repository.VehicleRepository,
	locationStore redis.LocationStoreInterface,
	defaultRadiusKm float64,
	logger logrus.FieldLogger,
) *MatchingService {
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = defaultSearchRadiusKm
	}
	return &MatchingService{
		vehicleRepo:     vehicleRepo,
		locationStore:   locationStore,
		defaultRadiusKm: defaultRadiusKm,
		logger:          logger,
		now:             time.Now,
	}
}

// WithClock replaces the clock used to seed simulated positions.
func (s *MatchingService) WithClock(now func() time.Time) *MatchingService {
	s.now = now
	return s
}

// MatchQuery contains the parameters for a candidate search.
type MatchQuery struct {
	Pickup         domain.Point
	RadiusKm       float64 // Optional: 0 uses the configured default
	PassengerCount int
}

// Candidate is an available vehicle within the search radius.
type Candidate struct {
	Vehicle    *domain.Vehicle
	Position   domain.Point
	DistanceKm float64
	Simulated  bool // Position was synthesized, not reported
}

// FindCandidates returns the available vehicles within the radius of the
// pickup, nearest first. Ties are broken by vehicle ID.
func (s *MatchingService) FindCandidates(ctx context.Context, q MatchQuery) ([]Candidate, error) {
	if !geo.ValidPoint(q.Pickup) {
		return nil, ErrInvalidPickupLocation
	}

	radiusKm := q.RadiusKm
	if radiusKm <= 0 {
		radiusKm = s.defaultRadiusKm
	}

	vehicles, err := s.vehicleRepo.List(ctx, repository.VehicleFilter{
		Status:     domain.VehicleStatusAvailable,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, nil
	}

	live := s.livePositions(ctx, vehicles)
	now := s.now()

	candidates := make([]Candidate, 0, len(vehicles))
	for _, v := range vehicles {
		if !v.CanSeat(q.PassengerCount) {
			continue
		}

		c := Candidate{Vehicle: v}
		switch p, ok := live[v.ID]; {
		case ok:
			c.Position = p
		case v.Position != nil:
			c.Position = *v.Position
		default:
			c.Position = geo.SimulatedPosition(q.Pickup, radiusKm, geo.TelemetrySeed(v.ID, now))
			c.Simulated = true
		}

		c.DistanceKm = geo.DistanceKm(q.Pickup, c.Position)
		if c.DistanceKm > radiusKm {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].Vehicle.ID < candidates[j].Vehicle.ID
	})

	return candidates, nil
}

// CountNearby returns how many vehicles could serve a pickup and their
// average distance in kilometres.
func (s *MatchingService) CountNearby(ctx context.Context, pickup domain.Point, radiusKm float64) (int, float64, error) {
	candidates, err := s.FindCandidates(ctx, MatchQuery{Pickup: pickup, RadiusKm: radiusKm, PassengerCount: 1})
	if err != nil {
		return 0, 0, err
	}
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	var total float64
	for _, c := range candidates {
		total += c.DistanceKm
	}
	return len(candidates), total / float64(len(candidates)), nil
}

// livePositions reads telemetry from Redis. A Redis failure degrades to
// stored positions instead of failing the search.
func (s *MatchingService) livePositions(ctx context.Context, vehicles []*domain.Vehicle) map[string]domain.Point {
	if s.locationStore == nil {
		return nil
	}

	ids := make([]string, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}

	positions, err := s.locationStore.Positions(ctx, ids)
	if err != nil {
		s.logger.WithError(err).Warn("live vehicle positions unavailable")
		return nil
	}
	return positions
}
