package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodrive/internal/domain"
	"autodrive/internal/geo"
	"autodrive/internal/logging"
	"autodrive/internal/repository"
	"autodrive/internal/service"
	"autodrive/internal/tests"
)

type vehicleFixture struct {
	vehicles  *tests.MockVehicleRepository
	accounts  *tests.MockAccountRepository
	locations *tests.MockLocationStore
	service   *service.VehicleService
}

func newVehicleFixture() *vehicleFixture {
	f := &vehicleFixture{
		vehicles:  tests.NewMockVehicleRepository(),
		accounts:  tests.NewMockAccountRepository(),
		locations: tests.NewMockLocationStore(),
	}
	f.accounts.AddAccount(&domain.Account{ID: "driver-1", WalletAddress: "0xdriver"})
	f.accounts.AddAccount(&domain.Account{ID: "driver-2", WalletAddress: "0xdriver2"})
	matching := service.NewMatchingService(f.vehicles, f.locations, 10, logging.Discard())
	f.service = service.NewVehicleService(f.vehicles, f.accounts, f.locations, matching, 30, logging.Discard())
	return f
}

func TestVehicle_Register(t *testing.T) {
	t.Parallel()
	f := newVehicleFixture()

	v, err := f.service.Register(context.Background(), service.RegisterVehicleRequest{
		DriverID: "driver-1",
		Model:    "Model Y",
		Seats:    5,
		Position: point(25.0330, 121.5654),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, domain.VehicleStatusAvailable, v.Status)
	assert.True(t, v.Active)
	assert.NotNil(t, f.vehicles.GetVehicle(v.ID))
}

func TestVehicle_RegisterValidation(t *testing.T) {
	t.Parallel()
	f := newVehicleFixture()

	cases := map[string]struct {
		req  service.RegisterVehicleRequest
		want error
	}{
		"no driver":     {service.RegisterVehicleRequest{Seats: 4}, service.ErrInvalidDriverID},
		"negative":      {service.RegisterVehicleRequest{DriverID: "driver-1", Seats: -1}, service.ErrInvalidPassengerCount},
		"too many":      {service.RegisterVehicleRequest{DriverID: "driver-1", Seats: 10}, service.ErrInvalidPassengerCount},
		"bad position":  {service.RegisterVehicleRequest{DriverID: "driver-1", Position: point(91, 0)}, service.ErrInvalidLocation},
		"unknown owner": {service.RegisterVehicleRequest{DriverID: "ghost"}, repository.ErrNotFound},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.Register(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVehicle_UpdateLocationIndexesLivePosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newVehicleFixture()
	addVehicle(f.vehicles, "veh-1", nil, 4, domain.VehicleStatusAvailable)

	err := f.service.UpdateLocation(ctx, service.UpdateLocationRequest{
		VehicleID: "veh-1", DriverID: "driver-veh-1", Lat: 25.04, Lng: 121.56,
	})
	require.NoError(t, err)

	assert.Equal(t, &domain.Point{Lat: 25.04, Lng: 121.56}, f.vehicles.GetVehicle("veh-1").Position)
	live, err := f.locations.Positions(ctx, []string{"veh-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.Point{Lat: 25.04, Lng: 121.56}, live["veh-1"])
}

func TestVehicle_UpdateLocationRejectsOtherDriver(t *testing.T) {
	t.Parallel()
	f := newVehicleFixture()
	addVehicle(f.vehicles, "veh-1", nil, 4, domain.VehicleStatusAvailable)

	err := f.service.UpdateLocation(context.Background(), service.UpdateLocationRequest{
		VehicleID: "veh-1", DriverID: "driver-2", Lat: 25.04, Lng: 121.56,
	})
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
	assert.Nil(t, f.vehicles.GetVehicle("veh-1").Position)
}

func TestVehicle_UpdateLocationInvalid(t *testing.T) {
	t.Parallel()
	f := newVehicleFixture()

	assert.ErrorIs(t, f.service.UpdateLocation(context.Background(), service.UpdateLocationRequest{Lat: 1}), service.ErrInvalidVehicleID)
	assert.ErrorIs(t, f.service.UpdateLocation(context.Background(), service.UpdateLocationRequest{VehicleID: "veh-1", Lng: 200}), service.ErrInvalidLocation)
}

func TestVehicle_SetStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newVehicleFixture()
	addVehicle(f.vehicles, "veh-1", point(25.03, 121.56), 4, domain.VehicleStatusAvailable)
	require.NoError(t, f.locations.UpdateLocation(ctx, "veh-1", domain.Point{Lat: 25.03, Lng: 121.56}, time.Now()))

	v, err := f.service.SetStatus(ctx, "veh-1", "driver-veh-1", domain.VehicleStatusOffline)
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleStatusOffline, v.Status)

	live, err := f.locations.Positions(ctx, []string{"veh-1"})
	require.NoError(t, err)
	assert.Empty(t, live)

	v, err = f.service.SetStatus(ctx, "veh-1", "driver-veh-1", domain.VehicleStatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleStatusAvailable, v.Status)
}

func TestVehicle_SetStatusRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newVehicleFixture()
	addVehicle(f.vehicles, "veh-1", nil, 4, domain.VehicleStatusAvailable)
	addVehicle(f.vehicles, "veh-busy", nil, 4, domain.VehicleStatusOnTrip)

	_, err := f.service.SetStatus(ctx, "veh-1", "", domain.VehicleStatusOnTrip)
	assert.ErrorIs(t, err, service.ErrInvalidVehicleStatus)

	_, err = f.service.SetStatus(ctx, "veh-1", "", domain.VehicleStatus("parked"))
	assert.ErrorIs(t, err, service.ErrInvalidVehicleStatus)

	_, err = f.service.SetStatus(ctx, "veh-1", "driver-2", domain.VehicleStatusOffline)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)

	_, err = f.service.SetStatus(ctx, "veh-busy", "", domain.VehicleStatusOffline)
	assert.ErrorIs(t, err, service.ErrInvalidStateTransition)
	assert.Equal(t, domain.VehicleStatusOnTrip, f.vehicles.GetVehicle("veh-busy").Status)

	_, err = f.service.SetStatus(ctx, "ghost", "", domain.VehicleStatusOffline)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestVehicle_ListRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	f := newVehicleFixture()
	addVehicle(f.vehicles, "veh-1", nil, 4, domain.VehicleStatusAvailable)
	addVehicle(f.vehicles, "veh-2", nil, 4, domain.VehicleStatusOffline)

	got, err := f.service.List(context.Background(), repository.VehicleFilter{Status: domain.VehicleStatusOffline})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "veh-2", got[0].ID)

	_, err = f.service.List(context.Background(), repository.VehicleFilter{Status: "parked"})
	assert.ErrorIs(t, err, service.ErrInvalidVehicleStatus)
}

func TestVehicle_Get(t *testing.T) {
	t.Parallel()
	f := newVehicleFixture()
	addVehicle(f.vehicles, "veh-1", nil, 4, domain.VehicleStatusAvailable)

	v, err := f.service.Get(context.Background(), "veh-1")
	require.NoError(t, err)
	assert.Equal(t, "driver-veh-1", v.DriverID)

	_, err = f.service.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.service.Get(context.Background(), "")
	assert.ErrorIs(t, err, service.ErrInvalidVehicleID)
}

func TestVehicle_AvailableNearestFirstWithArrival(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newVehicleFixture()
	addVehicle(f.vehicles, "veh-far", point(25.0600, 121.5654), 4, domain.VehicleStatusAvailable)
	addVehicle(f.vehicles, "veh-near", point(25.0340, 121.5654), 4, domain.VehicleStatusAvailable)
	addVehicle(f.vehicles, "veh-off", point(25.0331, 121.5654), 4, domain.VehicleStatusOffline)
	addVehicle(f.vehicles, "veh-away", point(25.2000, 121.5654), 4, domain.VehicleStatusAvailable)

	got, err := f.service.Available(ctx, service.AvailableQuery{Location: taipei101})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "veh-near", got[0].Vehicle.ID)
	assert.Equal(t, "veh-far", got[1].Vehicle.ID)
	assert.Less(t, got[0].DistanceKm, got[1].DistanceKm)
	assert.Equal(t, 1, got[0].ETAMinutes)
	assert.Equal(t, geo.EstimateMinutes(got[1].DistanceKm, 30), got[1].ETAMinutes)
	assert.False(t, got[0].Simulated)

	got, err = f.service.Available(ctx, service.AvailableQuery{Location: taipei101, RadiusKm: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "veh-near", got[0].Vehicle.ID)

	got, err = f.service.Available(ctx, service.AvailableQuery{Location: taipei101, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestVehicle_AvailableRejectsBadLocation(t *testing.T) {
	t.Parallel()
	f := newVehicleFixture()

	_, err := f.service.Available(context.Background(), service.AvailableQuery{Location: domain.Point{Lat: 91}})
	assert.ErrorIs(t, err, service.ErrInvalidLocation)

	_, err = f.service.Available(context.Background(), service.AvailableQuery{Location: taipei101, RadiusKm: -1})
	assert.ErrorIs(t, err, service.ErrInvalidLocation)
}
