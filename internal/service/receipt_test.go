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
	"autodrive/internal/service"
	"autodrive/internal/tests"
)

func completedTrip() *domain.Trip {
	start := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	return &domain.Trip{
		ID:            "trip-1",
		RiderID:       "rider-1",
		DriverID:      "driver-1",
		VehicleID:     "veh-1",
		Pickup:        taipei101,
		Dropoff:       taipeiMain,
		DistanceKm:    5.2,
		ActualMinutes: 15,
		Status:        domain.TripStatusCompleted,
		Fare: domain.FareBreakdown{
			BaseFare: 50000, DistanceFare: 78000, TimeFare: 45000,
			Subtotal: 173000, PlatformFee: 17300, Total: 190300, DriverAmount: 173000,
		},
		Escrow:       &domain.EscrowReference{EscrowID: "escrow-1"},
		ReleaseTxRef: "0xrelease",
		PickedUpAt:   start,
		CompletedAt:  start.Add(15 * time.Minute),
	}
}

func TestReceipt_GenerateOffLedger(t *testing.T) {
	t.Parallel()
	pub := &tests.RecordingPublisher{}
	notifier := service.NewNotificationService(pub, logging.Discard())
	receipts := service.NewReceiptService(nil, notifier, false, logging.Discard())

	receipt, err := receipts.GenerateReceipt(context.Background(), completedTrip())
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, "escrow-1", receipt.EscrowID)
	assert.Equal(t, 15, receipt.DurationMinutes)
	assert.Equal(t, service.LocationHash(taipei101), receipt.PickupHash)
	assert.Equal(t, service.LocationHash(taipeiMain), receipt.DropoffHash)
	assert.Empty(t, receipt.LedgerReceiptID)
	assert.Equal(t, []string{"RECEIPT_READY"}, pub.Types())
}

func TestReceipt_RequiresCompletedTrip(t *testing.T) {
	t.Parallel()
	receipts := service.NewReceiptService(nil, nil, false, logging.Discard())
	trip := completedTrip()
	trip.Status = domain.TripStatusPickedUp

	_, err := receipts.GenerateReceipt(context.Background(), trip)
	assert.ErrorIs(t, err, service.ErrInvalidStateTransition)

	_, err = receipts.GenerateReceipt(context.Background(), nil)
	assert.ErrorIs(t, err, service.ErrInvalidTripID)
}

func TestReceipt_LocationHash(t *testing.T) {
	t.Parallel()

	a := service.LocationHash(domain.Point{Lat: 25.0330001, Lng: 121.5654})
	b := service.LocationHash(domain.Point{Lat: 25.0330004, Lng: 121.5654})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, service.LocationHash(taipeiMain))
}

func TestReceipt_Format(t *testing.T) {
	t.Parallel()
	receipt := &domain.Receipt{
		ID:              "rcpt-1",
		TripID:          "trip-1",
		VehicleID:       "veh-1",
		DistanceKm:      5.2,
		DurationMinutes: 15,
		Fare:            completedTrip().Fare,
		EscrowID:        "escrow-1",
		ReleaseTxRef:    "0xrelease",
		CreatedAt:       time.Date(2026, 4, 1, 8, 15, 0, 0, time.UTC),
	}

	text := service.FormatReceipt(receipt)
	assert.Contains(t, text, "TRIP RECEIPT")
	assert.Contains(t, text, "Trip ID:    trip-1")
	assert.Contains(t, text, "Distance: 5.20 km")
	assert.Contains(t, text, "Duration: 15 min")
	assert.Contains(t, text, "TOTAL:         190300 units")
	assert.Contains(t, text, "Release: 0xrelease")
	assert.NotContains(t, text, "Ledger:")

	receipt.LedgerReceiptID = "0xreceipt"
	assert.Contains(t, service.FormatReceipt(receipt), "Ledger:  0xreceipt")
}

func TestNotification_CancelGoesToOtherParty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := map[string]struct {
		by        domain.ActorRole
		driverID  string
		recipient string
	}{
		"rider cancels":            {domain.ActorRider, "driver-1", "driver-1"},
		"driver cancels":           {domain.ActorDriver, "driver-1", "rider-1"},
		"rider cancels unassigned": {domain.ActorRider, "", ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			pub := &tests.RecordingPublisher{}
			notifier := service.NewNotificationService(pub, logging.Discard())
			trip := &domain.Trip{ID: "trip-1", RiderID: "rider-1", DriverID: tc.driverID, CancelledBy: tc.by}

			require.NoError(t, notifier.NotifyTripCancelled(ctx, trip))
			if tc.recipient == "" {
				assert.Empty(t, pub.Types())
				return
			}
			require.Len(t, pub.Events(), 1)
			assert.Equal(t, tc.recipient, pub.Events()[0].RecipientID)
		})
	}
}

func TestNotification_PublishErrorReturned(t *testing.T) {
	t.Parallel()
	pub := &tests.RecordingPublisher{Error: errors.New("broker down")}
	notifier := service.NewNotificationService(pub, logging.Discard())

	err := notifier.NotifyTripCompleted(context.Background(), completedTrip())
	assert.EqualError(t, err, "broker down")
}
