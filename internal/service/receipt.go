package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autodrive/internal/domain"
)

// ReceiptService builds receipts for completed trips and, when enabled,
// anchors them on the ledger.
type ReceiptService struct {
	escrowService       *EscrowService
	notificationService *NotificationService
	onLedger            bool
	logger              logrus.FieldLogger
	now                 func() time.Time
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(
	escrowService *EscrowService,
	notificationService *NotificationService,
	onLedger bool,
	logger logrus.FieldLogger,
) *ReceiptService {
	return &ReceiptService{
		escrowService:       escrowService,
		notificationService: notificationService,
		onLedger:            onLedger,
		logger:              logger,
		now:                 time.Now,
	}
}

// GenerateReceipt generates a receipt for a completed trip. When the ledger
// write fails the receipt is still returned together with the error.
func (s *ReceiptService) GenerateReceipt(ctx context.Context, trip *domain.Trip) (*domain.Receipt, error) {
	if trip == nil || trip.ID == "" {
		return nil, ErrInvalidTripID
	}
	if trip.Status != domain.TripStatusCompleted {
		return nil, fmt.Errorf("%w: receipt for %s trip", ErrInvalidStateTransition, trip.Status)
	}

	receipt := &domain.Receipt{
		ID:              uuid.New().String(),
		TripID:          trip.ID,
		RiderID:         trip.RiderID,
		DriverID:        trip.DriverID,
		VehicleID:       trip.VehicleID,
		PickupHash:      LocationHash(trip.Pickup),
		DropoffHash:     LocationHash(trip.Dropoff),
		DistanceKm:      trip.DistanceKm,
		DurationMinutes: trip.ActualMinutes,
		Fare:            trip.Fare,
		EscrowID:        escrowID(trip),
		ReleaseTxRef:    trip.ReleaseTxRef,
		StartedAt:       trip.PickedUpAt,
		EndedAt:         trip.CompletedAt,
		CreatedAt:       s.now(),
	}

	var ledgerErr error
	if s.onLedger && s.escrowService != nil {
		objectID, err := s.escrowService.IssueReceipt(ctx, ReceiptRequest{Receipt: receipt})
		if err != nil {
			s.logger.WithError(err).WithField("trip_id", trip.ID).Warn("on-ledger receipt failed")
			ledgerErr = err
		}
		receipt.LedgerReceiptID = objectID
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyReceiptReady(ctx, receipt)
	}

	return receipt, ledgerErr
}

// LocationHash returns the SHA-256 of a point rounded to six decimals.
func LocationHash(p domain.Point) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)))
	return hex.EncodeToString(sum[:])
}

// FormatReceipt formats the receipt as plain text.
func FormatReceipt(receipt *domain.Receipt) string {
	var b strings.Builder
	line := strings.Repeat("=", 37)
	rule := strings.Repeat("-", 37)

	fmt.Fprintf(&b, "%s\n            TRIP RECEIPT\n%s\n", line, line)
	fmt.Fprintf(&b, "Receipt ID: %s\n", receipt.ID)
	fmt.Fprintf(&b, "Trip ID:    %s\n", receipt.TripID)
	fmt.Fprintf(&b, "Date:       %s\n\n", receipt.CreatedAt.Format("Jan 02, 2006 3:04 PM"))

	fmt.Fprintf(&b, "TRIP DETAILS\n%s\n", rule)
	fmt.Fprintf(&b, "Vehicle:  %s\n", receipt.VehicleID)
	fmt.Fprintf(&b, "Distance: %.2f km\n", receipt.DistanceKm)
	fmt.Fprintf(&b, "Duration: %d min\n\n", receipt.DurationMinutes)

	f := receipt.Fare
	fmt.Fprintf(&b, "FARE BREAKDOWN\n%s\n", rule)
	fmt.Fprintf(&b, "Base Fare:     %s\n", formatAmount(f.BaseFare))
	fmt.Fprintf(&b, "Distance:      %s\n", formatAmount(f.DistanceFare))
	fmt.Fprintf(&b, "Time:          %s\n", formatAmount(f.TimeFare))
	fmt.Fprintf(&b, "Platform Fee:  %s\n", formatAmount(f.PlatformFee))
	fmt.Fprintf(&b, "%s\nTOTAL:         %s\n\n", rule, formatAmount(f.Total))

	fmt.Fprintf(&b, "SETTLEMENT\n%s\n", rule)
	fmt.Fprintf(&b, "Escrow:  %s\n", receipt.EscrowID)
	fmt.Fprintf(&b, "Release: %s\n", receipt.ReleaseTxRef)
	if receipt.LedgerReceiptID != "" {
		fmt.Fprintf(&b, "Ledger:  %s\n", receipt.LedgerReceiptID)
	}
	fmt.Fprintf(&b, "\n%s\n     Thank you for riding with us!\n%s\n", line, line)

	return b.String()
}

// formatAmount renders an amount in minor units.
func formatAmount(minor int64) string {
	return strconv.FormatInt(minor, 10) + " units"
}
