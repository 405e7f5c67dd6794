package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodrive/internal/domain"
	"autodrive/internal/logging"
	"autodrive/internal/redis"
	"autodrive/internal/service"
	"autodrive/internal/tests"
)

func newMatching(vehicles *tests.MockVehicleRepository, locations *tests.MockLocationStore) *service.MatchingService {
	var store redis.LocationStoreInterface
	if locations != nil {
		store = locations
	}
	fixed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	return service.NewMatchingService(vehicles, store, 10, logging.Discard()).
		WithClock(func() time.Time { return fixed })
}

func addVehicle(repo *tests.MockVehicleRepository, id string, p *domain.Point, seats int, status domain.VehicleStatus) {
	repo.AddVehicle(&domain.Vehicle{
		ID:       id,
		DriverID: "driver-" + id,
		Seats:    seats,
		Position: p,
		Status:   status,
		Active:   true,
	})
}

func point(lat, lng float64) *domain.Point {
	return &domain.Point{Lat: lat, Lng: lng}
}

func TestMatching_SortsByDistanceThenID(t *testing.T) {
	t.Parallel()
	repo := tests.NewMockVehicleRepository()
	addVehicle(repo, "veh-c", point(25.0400, 121.5654), 4, domain.VehicleStatusAvailable)
	addVehicle(repo, "veh-b", point(25.0340, 121.5654), 4, domain.VehicleStatusAvailable)
	addVehicle(repo, "veh-a", point(25.0340, 121.5654), 4, domain.VehicleStatusAvailable)

	got, err := newMatching(repo, nil).FindCandidates(context.Background(), service.MatchQuery{Pickup: taipei101, PassengerCount: 1})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "veh-a", got[0].Vehicle.ID)
	assert.Equal(t, "veh-b", got[1].Vehicle.ID)
	assert.Equal(t, "veh-c", got[2].Vehicle.ID)
	assert.LessOrEqual(t, got[1].DistanceKm, got[2].DistanceKm)
}

func TestMatching_Filters(t *testing.T) {
	t.Parallel()
	repo := tests.NewMockVehicleRepository()
	addVehicle(repo, "busy", point(25.0331, 121.5654), 4, domain.VehicleStatusOnTrip)
	addVehicle(repo, "small", point(25.0331, 121.5654), 2, domain.VehicleStatusAvailable)
	addVehicle(repo, "far", point(25.3000, 121.5654), 4, domain.VehicleStatusAvailable)
	addVehicle(repo, "unknown-seats", point(25.0332, 121.5654), 0, domain.VehicleStatusAvailable)
	addVehicle(repo, "ok", point(25.0333, 121.5654), 6, domain.VehicleStatusAvailable)
	repo.AddVehicle(&domain.Vehicle{ID: "retired", Position: point(25.0331, 121.5654), Status: domain.VehicleStatusAvailable})

	got, err := newMatching(repo, nil).FindCandidates(context.Background(), service.MatchQuery{Pickup: taipei101, PassengerCount: 3})
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.Vehicle.ID
	}
	assert.Equal(t, []string{"unknown-seats", "ok"}, ids)
}

func TestMatching_PrefersLivePosition(t *testing.T) {
	t.Parallel()
	repo := tests.NewMockVehicleRepository()
	addVehicle(repo, "veh-1", point(25.1000, 121.5654), 4, domain.VehicleStatusAvailable)
	live := tests.NewMockLocationStore()
	require.NoError(t, live.UpdateLocation(context.Background(), "veh-1", taipei101, time.Now()))

	got, err := newMatching(repo, live).FindCandidates(context.Background(), service.MatchQuery{Pickup: taipei101, RadiusKm: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0, got[0].DistanceKm, 1e-9)
	assert.False(t, got[0].Simulated)
}

func TestMatching_LiveStoreFailureFallsBack(t *testing.T) {
	t.Parallel()
	repo := tests.NewMockVehicleRepository()
	addVehicle(repo, "veh-1", point(25.0340, 121.5654), 4, domain.VehicleStatusAvailable)
	live := tests.NewMockLocationStore()
	live.PositionsError = errors.New("redis down")

	got, err := newMatching(repo, live).FindCandidates(context.Background(), service.MatchQuery{Pickup: taipei101})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMatching_SimulatesUnknownPositions(t *testing.T) {
	t.Parallel()
	repo := tests.NewMockVehicleRepository()
	addVehicle(repo, "veh-1", nil, 4, domain.VehicleStatusAvailable)
	m := newMatching(repo, nil)

	first, err := m.FindCandidates(context.Background(), service.MatchQuery{Pickup: taipei101, RadiusKm: 3})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, first[0].Simulated)
	assert.LessOrEqual(t, first[0].DistanceKm, 3.0)

	second, err := m.FindCandidates(context.Background(), service.MatchQuery{Pickup: taipei101, RadiusKm: 3})
	require.NoError(t, err)
	assert.Equal(t, first[0].Position, second[0].Position)
}

func TestMatching_InvalidPickup(t *testing.T) {
	t.Parallel()

	_, err := newMatching(tests.NewMockVehicleRepository(), nil).FindCandidates(context.Background(), service.MatchQuery{Pickup: domain.Point{Lat: -95}})
	assert.ErrorIs(t, err, service.ErrInvalidPickupLocation)
}

func TestMatching_CountNearby(t *testing.T) {
	t.Parallel()
	repo := tests.NewMockVehicleRepository()
	m := newMatching(repo, nil)

	count, avg, err := m.CountNearby(context.Background(), taipei101, 5)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, avg)

	addVehicle(repo, "veh-1", point(25.0330, 121.5654), 4, domain.VehicleStatusAvailable)
	addVehicle(repo, "veh-2", point(25.0510, 121.5654), 4, domain.VehicleStatusAvailable)

	count, avg, err = m.CountNearby(context.Background(), taipei101, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 1.0, avg, 0.05)
}
