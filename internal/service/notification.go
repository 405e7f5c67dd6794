package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autodrive/internal/domain"
	"autodrive/internal/events"
)

// NotificationType represents the type of trip event.
type NotificationType string

const (
	NotificationTripRequested NotificationType = "TRIP_REQUESTED"
	NotificationTripMatched   NotificationType = "TRIP_MATCHED"
	NotificationTripAccepted  NotificationType = "TRIP_ACCEPTED"
	NotificationPickedUp      NotificationType = "PASSENGER_PICKED_UP"
	NotificationTripCompleted NotificationType = "TRIP_COMPLETED"
	NotificationTripCancelled NotificationType = "TRIP_CANCELLED"
	NotificationReceiptReady  NotificationType = "RECEIPT_READY"
)

// NotificationService turns trip transitions into events for riders and drivers.
type NotificationService struct {
	publisher events.Publisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher events.Publisher, logger logrus.FieldLogger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyTripRequested tells the rider the request was received.
func (s *NotificationService) NotifyTripRequested(ctx context.Context, trip *domain.Trip) error {
	return s.send(ctx, s.event(NotificationTripRequested, trip, trip.RiderID,
		"Trip Requested",
		fmt.Sprintf("Looking for a vehicle. Estimated fare %s", formatAmount(trip.Fare.Total)),
		map[string]any{"fare_total": trip.Fare.Total, "distance_km": trip.DistanceKm},
	))
}

// NotifyTripMatched tells the rider and the driver about the match.
func (s *NotificationService) NotifyTripMatched(ctx context.Context, trip *domain.Trip, distanceKm float64) error {
	data := map[string]any{"vehicle_id": trip.VehicleID, "driver_id": trip.DriverID, "distance_km": distanceKm}
	return s.send(ctx,
		s.event(NotificationTripMatched, trip, trip.RiderID, "Vehicle Found",
			fmt.Sprintf("A vehicle %.1f km away was matched to your trip", distanceKm), data),
		s.event(NotificationTripMatched, trip, trip.DriverID, "New Trip",
			fmt.Sprintf("Pickup %.1f km away. Accept to lock the fare of %s", distanceKm, formatAmount(trip.Fare.Total)), data),
	)
}

// NotifyTripAccepted tells the rider the driver is on the way.
func (s *NotificationService) NotifyTripAccepted(ctx context.Context, trip *domain.Trip) error {
	return s.send(ctx, s.event(NotificationTripAccepted, trip, trip.RiderID,
		"Driver On The Way",
		fmt.Sprintf("Your driver arrives in about %d min. Payment of %s is held in escrow", trip.DriverETAMinutes, formatAmount(trip.Fare.Total)),
		map[string]any{"eta_minutes": trip.DriverETAMinutes, "escrow_id": escrowID(trip)},
	))
}

// NotifyPickedUp tells the rider the trip has started.
func (s *NotificationService) NotifyPickedUp(ctx context.Context, trip *domain.Trip) error {
	return s.send(ctx, s.event(NotificationPickedUp, trip, trip.RiderID,
		"Trip Started",
		"Your trip has started. Enjoy your ride!",
		map[string]any{"picked_up_at": trip.PickedUpAt},
	))
}

// NotifyTripCompleted tells both parties the trip is settled.
func (s *NotificationService) NotifyTripCompleted(ctx context.Context, trip *domain.Trip) error {
	data := map[string]any{"fare_total": trip.Fare.Total, "driver_amount": trip.Fare.DriverAmount, "tx_ref": trip.ReleaseTxRef}
	return s.send(ctx,
		s.event(NotificationTripCompleted, trip, trip.RiderID, "Trip Completed",
			fmt.Sprintf("Your trip has ended. Total fare: %s", formatAmount(trip.Fare.Total)), data),
		s.event(NotificationTripCompleted, trip, trip.DriverID, "Payment Released",
			fmt.Sprintf("%s has been released to your wallet", formatAmount(trip.Fare.DriverAmount)), data),
	)
}

// NotifyTripCancelled tells the other party about the cancellation.
func (s *NotificationService) NotifyTripCancelled(ctx context.Context, trip *domain.Trip) error {
	recipientID := trip.DriverID
	message := "The rider has cancelled the trip"
	if trip.CancelledBy == domain.ActorDriver {
		recipientID = trip.RiderID
		message = "The driver has cancelled the trip"
	}
	if trip.RefundTxRef != "" {
		message += ". The payment has been refunded"
	}

	if recipientID == "" {
		return nil // No one to notify
	}

	return s.send(ctx, s.event(NotificationTripCancelled, trip, recipientID,
		"Trip Cancelled",
		message,
		map[string]any{"cancelled_by": trip.CancelledBy, "reason": trip.CancellationReason, "refund_tx_ref": trip.RefundTxRef},
	))
}

// NotifyReceiptReady sends the rider the formatted receipt.
func (s *NotificationService) NotifyReceiptReady(ctx context.Context, receipt *domain.Receipt) error {
	return s.send(ctx, events.Event{
		ID:          uuid.New().String(),
		Type:        string(NotificationReceiptReady),
		TripID:      receipt.TripID,
		RecipientID: receipt.RiderID,
		Title:       "Receipt Ready",
		Message:     fmt.Sprintf("Your receipt for %s is ready", formatAmount(receipt.Fare.Total)),
		Data: map[string]any{
			"receipt_id":        receipt.ID,
			"ledger_receipt_id": receipt.LedgerReceiptID,
			"text":              FormatReceipt(receipt),
		},
		OccurredAt: s.now(),
	})
}

func (s *NotificationService) event(t NotificationType, trip *domain.Trip, recipientID, title, message string, data map[string]any) events.Event {
	return events.Event{
		ID:          uuid.New().String(),
		Type:        string(t),
		TripID:      trip.ID,
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Data:        data,
		OccurredAt:  s.now(),
	}
}

func (s *NotificationService) send(ctx context.Context, evts ...events.Event) error {
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.WithError(err).WithField("trip_id", evts[0].TripID).Warn("failed to publish trip event")
		return err
	}
	return nil
}

func escrowID(trip *domain.Trip) string {
	if trip.Escrow == nil {
		return ""
	}
	return trip.Escrow.EscrowID
}
