package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autodrive/internal/config"
	"autodrive/internal/domain"
	"autodrive/internal/geo"
	"autodrive/internal/pricing"
	"autodrive/internal/repository"
)

const (
	maxPassengers      = 8
	noVehicleWaitMin   = 15
	minimumWaitMinutes = 3
)

// TripService drives a trip through its lifecycle. Every write is guarded
// by the trip's expected prior status, and no transition is persisted
// before the ledger confirmed the payment step it depends on.
type TripService struct {
	transactor          repository.Transactor
	tripRepo            repository.TripRepository
	vehicleRepo         repository.VehicleRepository
	matchingService     *MatchingService
	fareCalculator      *pricing.Calculator
	escrowService       *EscrowService
	notificationService *NotificationService
	receiptService      *ReceiptService
	cfg                 config.TripConfig
	logger              logrus.FieldLogger
	now                 func() time.Time
}

// NewTripService creates a new TripService.
func NewTripService(
	transactor repository.Transactor,
	tripRepo repository.TripRepository,
	vehicleRepo repository.VehicleRepository,
	matchingService *MatchingService,
	fareCalculator *pricing.Calculator,
	escrowService *EscrowService,
	notificationService *NotificationService,
	receiptService *ReceiptService,
	cfg config.TripConfig,
	logger logrus.FieldLogger,
) *TripService {
	return &TripService{
		transactor:          transactor,
		tripRepo:            tripRepo,
		vehicleRepo:         vehicleRepo,
		matchingService:     matchingService,
		fareCalculator:      fareCalculator,
		escrowService:       escrowService,
		notificationService: notificationService,
		receiptService:      receiptService,
		cfg:                 cfg,
		logger:              logger,
		now:                 time.Now,
	}
}

// WithClock replaces the clock used for transition timestamps.
func (s *TripService) WithClock(now func() time.Time) *TripService {
	s.now = now
	return s
}

// EstimateRequest contains the parameters for a trip estimate.
type EstimateRequest struct {
	Pickup         domain.Point
	Dropoff        domain.Point
	PassengerCount int
}

// Estimate is a priced quote for a trip that has not been requested yet.
type Estimate struct {
	DistanceKm        float64
	EstimatedMinutes  int
	Fare              domain.FareBreakdown
	AvailableVehicles int
	WaitMinutes       int
}

// Estimate prices a trip and reports nearby supply without persisting anything.
func (s *TripService) Estimate(ctx context.Context, req EstimateRequest) (*Estimate, error) {
	if _, err := validateRoute(req.Pickup, req.Dropoff, req.PassengerCount); err != nil {
		return nil, err
	}

	distanceKm, minutes, fare := s.quote(req.Pickup, req.Dropoff)

	count, avgKm, err := s.matchingService.CountNearby(ctx, req.Pickup, s.cfg.SearchRadiusKm)
	if err != nil {
		return nil, err
	}

	wait := noVehicleWaitMin
	if count > 0 {
		wait = max(minimumWaitMinutes, int(avgKm*2))
	}

	return &Estimate{
		DistanceKm:        distanceKm,
		EstimatedMinutes:  minutes,
		Fare:              fare,
		AvailableVehicles: count,
		WaitMinutes:       wait,
	}, nil
}

// CreateTripRequest contains the parameters for requesting a trip.
type CreateTripRequest struct {
	RiderID        string
	Pickup         domain.Point
	Dropoff        domain.Point
	PickupAddress  string
	DropoffAddress string
	PassengerCount int // Optional: 0 means one passenger
}

// Create requests a new trip. With auto-match enabled the trip is matched
// right away; finding no vehicle is not an error.
func (s *TripService) Create(ctx context.Context, req CreateTripRequest) (*domain.Trip, error) {
	if req.RiderID == "" {
		return nil, ErrInvalidRiderID
	}
	passengers, err := validateRoute(req.Pickup, req.Dropoff, req.PassengerCount)
	if err != nil {
		return nil, err
	}

	active, err := s.tripRepo.GetActiveByRiderID(ctx, req.RiderID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: rider %s has trip %s", ErrActiveTripExists, req.RiderID, active.ID)
	}

	distanceKm, minutes, fare := s.quote(req.Pickup, req.Dropoff)
	trip := &domain.Trip{
		ID:               uuid.New().String(),
		RiderID:          req.RiderID,
		Pickup:           req.Pickup,
		Dropoff:          req.Dropoff,
		PickupAddress:    req.PickupAddress,
		DropoffAddress:   req.DropoffAddress,
		PassengerCount:   passengers,
		DistanceKm:       distanceKm,
		EstimatedMinutes: minutes,
		Fare:             fare,
		Status:           domain.TripStatusRequested,
		RequestedAt:      s.now(),
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":    trip.ID,
		"rider_id":   trip.RiderID,
		"fare_total": trip.Fare.Total,
	}).Info("trip requested")
	s.notify(trip, s.notificationService.NotifyTripRequested)

	if !s.cfg.AutoMatch {
		return trip, nil
	}

	result, err := s.Match(ctx, trip.ID, trip.RiderID)
	if err != nil {
		s.logger.WithError(err).WithField("trip_id", trip.ID).Warn("auto-match failed")
		return trip, nil
	}
	return result.Trip, nil
}

// MatchResult is the outcome of a matching attempt.
type MatchResult struct {
	Matched   bool
	Trip      *domain.Trip
	Candidate *Candidate // Nil when no vehicle was found
}

// Match assigns the nearest available vehicle to a requested trip on behalf
// of its rider. The vehicle claim and the trip update commit together. When
// no vehicle is found the trip stays REQUESTED.
func (s *TripService) Match(ctx context.Context, tripID, riderID string) (*MatchResult, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(trip.Status, domain.TripStatusMatched) {
		return nil, transitionError(trip, domain.TripStatusMatched)
	}
	if trip.RiderID != riderID {
		return nil, fmt.Errorf("%w: trip %s belongs to another rider", ErrPermissionDenied, trip.ID)
	}

	candidates, err := s.matchingService.FindCandidates(ctx, MatchQuery{
		Pickup:         trip.Pickup,
		RadiusKm:       s.cfg.SearchRadiusKm,
		PassengerCount: trip.PassengerCount,
	})
	if err != nil {
		return nil, err
	}

	var chosen *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Vehicle.DriverID == trip.RiderID {
			continue
		}
		busy, err := s.tripRepo.GetActiveByDriverID(ctx, c.Vehicle.DriverID)
		if err != nil {
			return nil, err
		}
		if busy == nil {
			chosen = c
			break
		}
	}
	if chosen == nil {
		s.logger.WithField("trip_id", trip.ID).Info("no vehicle available")
		return &MatchResult{Matched: false, Trip: trip}, nil
	}

	eta := geo.EstimateMinutes(chosen.DistanceKm, s.cfg.AvgSpeedKmh)
	updated := *trip
	updated.DriverID = chosen.Vehicle.DriverID
	updated.VehicleID = chosen.Vehicle.ID
	updated.DriverETAMinutes = eta
	updated.Status = domain.TripStatusMatched
	updated.MatchedAt = s.now()

	err = s.transactor.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Vehicles.Claim(ctx, chosen.Vehicle.ID); err != nil {
			return err
		}
		return repos.Trips.UpdateIfStatus(ctx, &updated, trip.Status)
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":     updated.ID,
		"vehicle_id":  updated.VehicleID,
		"driver_id":   updated.DriverID,
		"distance_km": chosen.DistanceKm,
		"simulated":   chosen.Simulated,
	}).Info("trip matched")
	s.notify(&updated, func(ctx context.Context, t *domain.Trip) error {
		return s.notificationService.NotifyTripMatched(ctx, t, chosen.DistanceKm)
	})

	return &MatchResult{Matched: true, Trip: &updated, Candidate: chosen}, nil
}

// PreparePayment returns the unsigned transfer the rider signs to fund the
// trip's escrow.
func (s *TripService) PreparePayment(ctx context.Context, tripID, riderID string) (*domain.TransferSpec, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(trip.Status, domain.TripStatusAccepted) {
		return nil, transitionError(trip, domain.TripStatusAccepted)
	}
	if trip.RiderID != riderID {
		return nil, fmt.Errorf("%w: %s is not the rider of trip %s", ErrPermissionDenied, riderID, trip.ID)
	}

	return s.escrowService.PrepareLock(ctx, LockRequest{
		TripID:      trip.ID,
		PayerID:     trip.RiderID,
		PayeeID:     trip.DriverID,
		Amount:      trip.Fare.Total,
		PlatformFee: trip.Fare.PlatformFee,
	})
}

// AcceptTripRequest contains the parameters for accepting a trip.
type AcceptTripRequest struct {
	TripID       string
	DriverID     string
	VehicleID    string // Optional on direct accept: defaults to the driver's first available vehicle
	ETAMinutes   int    // Optional: 0 keeps the matched estimate
	PaymentTxRef string // The rider's funding transfer into escrow
}

// Accept binds the driver and locks the rider's payment. A matched trip can
// only be accepted by its matched driver; a requested trip is accepted
// directly and claims one of the driver's vehicles. The trip moves to
// ACCEPTED only after the ledger confirmed the lock.
func (s *TripService) Accept(ctx context.Context, req AcceptTripRequest) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.PaymentTxRef == "" {
		return nil, ErrInvalidPaymentReference
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(trip.Status, domain.TripStatusAccepted) {
		return nil, transitionError(trip, domain.TripStatusAccepted)
	}

	direct := !trip.HasDriver()
	vehicleID := trip.VehicleID
	eta := trip.DriverETAMinutes

	if direct {
		vehicle, err := s.directAcceptVehicle(ctx, trip, req)
		if err != nil {
			return nil, err
		}
		vehicleID = vehicle.ID
		if vehicle.Position != nil {
			eta = geo.EstimateMinutes(geo.DistanceKm(*vehicle.Position, trip.Pickup), s.cfg.AvgSpeedKmh)
		}
	} else if trip.DriverID != req.DriverID {
		return nil, fmt.Errorf("%w: trip %s is matched to another driver", ErrPermissionDenied, trip.ID)
	}
	if req.ETAMinutes > 0 {
		eta = req.ETAMinutes
	}

	escrow, err := s.escrowService.LockPayment(ctx, LockRequest{
		TripID:       trip.ID,
		PayerID:      trip.RiderID,
		PayeeID:      req.DriverID,
		Amount:       trip.Fare.Total,
		PlatformFee:  trip.Fare.PlatformFee,
		FundingTxRef: req.PaymentTxRef,
	})
	if err != nil {
		return nil, err
	}

	updated := *trip
	updated.DriverID = req.DriverID
	updated.VehicleID = vehicleID
	updated.DriverETAMinutes = eta
	updated.Escrow = escrow
	updated.PaymentTxRef = req.PaymentTxRef
	updated.Status = domain.TripStatusAccepted
	updated.AcceptedAt = s.now()

	err = s.transactor.WithinTx(ctx, func(repos repository.Repositories) error {
		if direct {
			if err := repos.Vehicles.Claim(ctx, vehicleID); err != nil {
				return err
			}
		}
		return repos.Trips.UpdateIfStatus(ctx, &updated, trip.Status)
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"trip_id":   trip.ID,
			"escrow_id": escrow.EscrowID,
		}).Error("escrow locked but trip not accepted")
		if errors.Is(err, repository.ErrPreconditionFailed) {
			s.refundOrphanedLock(ctx, trip.ID, escrow, req.PaymentTxRef)
		}
		return nil, mapRepositoryError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":    updated.ID,
		"driver_id":  updated.DriverID,
		"vehicle_id": updated.VehicleID,
		"escrow_id":  escrow.EscrowID,
		"direct":     direct,
	}).Info("trip accepted")
	s.notify(&updated, s.notificationService.NotifyTripAccepted)

	return &updated, nil
}

// directAcceptVehicle picks the vehicle a driver accepts a requested trip with.
func (s *TripService) directAcceptVehicle(ctx context.Context, trip *domain.Trip, req AcceptTripRequest) (*domain.Vehicle, error) {
	if req.DriverID == trip.RiderID {
		return nil, fmt.Errorf("%w: driver cannot accept their own trip", ErrPermissionDenied)
	}

	busy, err := s.tripRepo.GetActiveByDriverID(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}
	if busy != nil {
		return nil, fmt.Errorf("%w: driver %s has trip %s", ErrActiveTripExists, req.DriverID, busy.ID)
	}

	if req.VehicleID != "" {
		vehicle, err := s.vehicleRepo.GetByID(ctx, req.VehicleID)
		if err != nil {
			return nil, err
		}
		if vehicle.DriverID != req.DriverID {
			return nil, fmt.Errorf("%w: vehicle %s belongs to another driver", ErrPermissionDenied, vehicle.ID)
		}
		if !vehicle.Active || vehicle.Status != domain.VehicleStatusAvailable || !vehicle.CanSeat(trip.PassengerCount) {
			return nil, fmt.Errorf("%w: vehicle %s is %s", ErrNoVehicleAvailable, vehicle.ID, vehicle.Status)
		}
		return vehicle, nil
	}

	vehicles, err := s.vehicleRepo.List(ctx, repository.VehicleFilter{
		DriverID:   req.DriverID,
		Status:     domain.VehicleStatusAvailable,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		if v.CanSeat(trip.PassengerCount) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: driver %s", ErrNoVehicleAvailable, req.DriverID)
}

// Pickup records that the driver picked the rider up.
func (s *TripService) Pickup(ctx context.Context, tripID, driverID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(trip.Status, domain.TripStatusPickedUp) {
		return nil, transitionError(trip, domain.TripStatusPickedUp)
	}
	if trip.DriverID != driverID {
		return nil, fmt.Errorf("%w: %s is not the driver of trip %s", ErrPermissionDenied, driverID, trip.ID)
	}

	updated := *trip
	updated.Status = domain.TripStatusPickedUp
	updated.PickedUpAt = s.now()

	if err := s.tripRepo.UpdateIfStatus(ctx, &updated, trip.Status); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.logger.WithField("trip_id", updated.ID).Info("passenger picked up")
	s.notify(&updated, s.notificationService.NotifyPickedUp)

	return &updated, nil
}

// CompleteResult is the outcome of completing a trip.
type CompleteResult struct {
	Trip         *domain.Trip
	Receipt      *domain.Receipt // Nil when receipt generation failed
	ReceiptError string
}

// Complete prices the trip from the actual ride time, releases the driver's
// share from escrow and then closes the trip. A failed release leaves the
// trip, vehicle and statistics untouched.
func (s *TripService) Complete(ctx context.Context, tripID, driverID string) (*CompleteResult, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(trip.Status, domain.TripStatusCompleted) {
		return nil, transitionError(trip, domain.TripStatusCompleted)
	}
	if trip.DriverID != driverID {
		return nil, fmt.Errorf("%w: %s is not the driver of trip %s", ErrPermissionDenied, driverID, trip.ID)
	}
	if trip.Escrow == nil {
		return nil, fmt.Errorf("%w: trip %s", ErrUnpaidTrip, trip.ID)
	}

	completedAt := s.now()
	minutes := actualMinutes(trip, completedAt)

	// A retry bills the minutes of the first release attempt, which the
	// ledger may already have paid.
	prior, err := s.escrowService.FindSettlement(ctx, domain.SettlementRelease, trip.ID)
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.Minutes > 0 {
		minutes = prior.Minutes
	}
	fare := s.fareCalculator.Calculate(trip.DistanceKm, minutes)

	released, err := s.escrowService.Release(ctx, ReleaseRequest{
		TripID:  trip.ID,
		PayeeID: trip.DriverID,
		Escrow:  trip.Escrow,
		Amount:  fare.DriverAmount,
		Minutes: minutes,
	})
	if err != nil {
		return nil, err
	}

	updated := *trip
	updated.Status = domain.TripStatusCompleted
	updated.CompletedAt = completedAt
	updated.ActualMinutes = minutes
	updated.Fare = fare
	updated.ReleaseTxRef = released.TxRef

	err = s.transactor.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Trips.UpdateIfStatus(ctx, &updated, trip.Status); err != nil {
			return err
		}
		if updated.VehicleID != "" {
			if err := repos.Vehicles.Release(ctx, updated.VehicleID); err != nil {
				return err
			}
			if err := repos.Vehicles.RecordTrip(ctx, updated.VehicleID, updated.DistanceKm, fare.DriverAmount); err != nil {
				return err
			}
		}
		return repos.Accounts.RecordRide(ctx, updated.RiderID, updated.DriverID)
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":       updated.ID,
		"fare_total":    fare.Total,
		"driver_amount": fare.DriverAmount,
		"minutes":       minutes,
		"tx_ref":        released.TxRef,
	}).Info("trip completed")
	s.notify(&updated, s.notificationService.NotifyTripCompleted)

	result := &CompleteResult{Trip: &updated}
	if s.receiptService != nil {
		receipt, err := s.receiptService.GenerateReceipt(ctx, &updated)
		result.Receipt = receipt
		if err != nil {
			result.ReceiptError = err.Error()
		}
	}
	return result, nil
}

// CancelTripRequest contains the parameters for cancelling a trip.
type CancelTripRequest struct {
	TripID    string
	ActorID   string
	ActorRole domain.ActorRole
	Reason    string
}

// Cancel cancels an active trip. A locked escrow is refunded first; the
// trip is cancelled only once the refund is confirmed. A lock confirmed on
// the ledger for a trip not yet accepted counts as locked.
func (s *TripService) Cancel(ctx context.Context, req CancelTripRequest) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.ActorID == "" || !req.ActorRole.Valid() {
		return nil, ErrInvalidActor
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(trip.Status, domain.TripStatusCancelled) {
		return nil, transitionError(trip, domain.TripStatusCancelled)
	}

	switch req.ActorRole {
	case domain.ActorRider:
		if trip.RiderID != req.ActorID {
			return nil, fmt.Errorf("%w: %s is not the rider of trip %s", ErrPermissionDenied, req.ActorID, trip.ID)
		}
	case domain.ActorDriver:
		if !trip.HasDriver() || trip.DriverID != req.ActorID {
			return nil, fmt.Errorf("%w: %s is not the driver of trip %s", ErrPermissionDenied, req.ActorID, trip.ID)
		}
	}

	escrow := trip.Escrow
	if escrow == nil {
		if escrow, err = s.confirmedLock(ctx, trip); err != nil {
			return nil, err
		}
	}

	updated := *trip
	if escrow != nil {
		refunded, err := s.escrowService.Refund(ctx, RefundRequest{
			TripID:      trip.ID,
			RequesterID: req.ActorID,
			PayerID:     trip.RiderID,
			Escrow:      escrow,
		})
		if err != nil {
			return nil, err
		}
		updated.Escrow = escrow
		updated.RefundTxRef = refunded.TxRef
		if updated.PaymentTxRef == "" {
			updated.PaymentTxRef = escrow.FundingTxRef
		}
	}

	updated.Status = domain.TripStatusCancelled
	updated.CancelledAt = s.now()
	updated.CancellationReason = req.Reason
	updated.CancelledBy = req.ActorRole

	err = s.transactor.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Trips.UpdateIfStatus(ctx, &updated, trip.Status); err != nil {
			return err
		}
		if trip.VehicleID != "" {
			return repos.Vehicles.Release(ctx, trip.VehicleID)
		}
		return nil
	})
	if err != nil {
		if updated.RefundTxRef != "" {
			// The refund settlement is confirmed, so a retried cancel finishes
			// without paying twice.
			s.logger.WithError(err).WithFields(logrus.Fields{
				"trip_id": trip.ID,
				"tx_ref":  updated.RefundTxRef,
			}).Error("escrow refunded but trip not cancelled")
		}
		return nil, mapRepositoryError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":      updated.ID,
		"cancelled_by": req.ActorRole,
		"from_status":  trip.Status,
		"refunded":     updated.RefundTxRef != "",
	}).Info("trip cancelled")
	s.notify(&updated, s.notificationService.NotifyTripCancelled)

	return &updated, nil
}

// confirmedLock returns the escrow of a lock the ledger confirmed for a trip
// that never recorded it, or nil.
func (s *TripService) confirmedLock(ctx context.Context, trip *domain.Trip) (*domain.EscrowReference, error) {
	lock, err := s.escrowService.FindSettlement(ctx, domain.SettlementLock, trip.ID)
	if err != nil || lock == nil || lock.Status != domain.SettlementStatusConfirmed {
		return nil, err
	}
	return &domain.EscrowReference{
		EscrowID:     lock.EscrowID,
		FundingTxRef: lock.FundingTxRef,
		LockTxRef:    lock.TxRef,
		Amount:       lock.Amount,
		PlatformFee:  trip.Fare.PlatformFee,
		LockedAt:     lock.UpdatedAt,
	}, nil
}

// refundOrphanedLock refunds an escrow locked by an accept that lost its
// trip to a concurrent cancel. Failures are logged for manual settlement.
func (s *TripService) refundOrphanedLock(ctx context.Context, tripID string, escrow *domain.EscrowReference, fundingTxRef string) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.WithFields(logrus.Fields{
		"trip_id":   tripID,
		"escrow_id": escrow.EscrowID,
	})

	current, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		log.WithError(err).Error("failed to reload trip after lost accept")
		return
	}
	if current.Status != domain.TripStatusCancelled {
		return
	}

	refunded, err := s.escrowService.Refund(ctx, RefundRequest{
		TripID:      tripID,
		RequesterID: "system",
		PayerID:     current.RiderID,
		Escrow:      escrow,
	})
	if err != nil {
		log.WithError(err).Error("failed to refund escrow of cancelled trip")
		return
	}
	if current.RefundTxRef == refunded.TxRef {
		return
	}

	updated := *current
	updated.Escrow = escrow
	updated.PaymentTxRef = fundingTxRef
	updated.RefundTxRef = refunded.TxRef
	if err := s.tripRepo.UpdateIfStatus(ctx, &updated, current.Status); err != nil {
		log.WithError(err).Warn("failed to record refund on cancelled trip")
		return
	}
	log.WithField("tx_ref", refunded.TxRef).Info("escrow of cancelled trip refunded")
}

// GetTrip retrieves a trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	return s.tripRepo.GetByID(ctx, tripID)
}

// ActiveTrips returns the non-terminal trips of a rider or driver. There is
// at most one per party.
func (s *TripService) ActiveTrips(ctx context.Context, actorID string, role domain.ActorRole) ([]*domain.Trip, error) {
	if actorID == "" || !role.Valid() {
		return nil, ErrInvalidActor
	}

	var (
		trip *domain.Trip
		err  error
	)
	if role == domain.ActorDriver {
		trip, err = s.tripRepo.GetActiveByDriverID(ctx, actorID)
	} else {
		trip, err = s.tripRepo.GetActiveByRiderID(ctx, actorID)
	}
	if err != nil || trip == nil {
		return nil, err
	}
	return []*domain.Trip{trip}, nil
}

// ListTrips retrieves trips matching the filter.
func (s *TripService) ListTrips(ctx context.Context, filter repository.TripFilter) ([]*domain.Trip, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTripStatus, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return s.tripRepo.List(ctx, filter)
}

// quote returns distance, estimated minutes and the fare between two points.
func (s *TripService) quote(pickup, dropoff domain.Point) (float64, int, domain.FareBreakdown) {
	distanceKm := geo.DistanceKm(pickup, dropoff)
	minutes := geo.EstimateMinutes(distanceKm, s.cfg.AvgSpeedKmh)
	return distanceKm, minutes, s.fareCalculator.Calculate(distanceKm, minutes)
}

// notify sends a trip event. Notification failures are logged by the
// NotificationService and never fail the transition.
func (s *TripService) notify(trip *domain.Trip, fn func(context.Context, *domain.Trip) error) {
	if s.notificationService == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = fn(ctx, trip)
}

// actualMinutes is the elapsed ride time rounded up, at least one minute.
// A trip without a pickup time falls back to its estimate.
func actualMinutes(trip *domain.Trip, completedAt time.Time) int {
	if trip.PickedUpAt.IsZero() {
		return max(1, trip.EstimatedMinutes)
	}
	elapsed := completedAt.Sub(trip.PickedUpAt).Minutes()
	return max(1, int(math.Ceil(elapsed)))
}

func validateRoute(pickup, dropoff domain.Point, passengers int) (int, error) {
	if !geo.ValidPoint(pickup) {
		return 0, ErrInvalidPickupLocation
	}
	if !geo.ValidPoint(dropoff) {
		return 0, ErrInvalidDropoffLocation
	}
	if passengers == 0 {
		passengers = 1
	}
	if passengers < 1 || passengers > maxPassengers {
		return 0, ErrInvalidPassengerCount
	}
	return passengers, nil
}

func transitionError(trip *domain.Trip, to domain.TripStatus) error {
	return fmt.Errorf("%w: trip %s is %s, cannot move to %s", ErrInvalidStateTransition, trip.ID, trip.Status, to)
}

// mapRepositoryError translates guarded-write failures into service errors.
func mapRepositoryError(err error) error {
	switch {
	case errors.Is(err, repository.ErrPreconditionFailed):
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrActiveTripExists, err)
	default:
		return err
	}
}
