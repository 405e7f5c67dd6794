package service

import "errors"

var (
	// ErrInvalidStateTransition is returned when an operation is not allowed in the trip's current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrPermissionDenied is returned when the actor is not a party to the trip.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrActiveTripExists is returned when the rider or driver already has a non-terminal trip.
	ErrActiveTripExists = errors.New("active trip exists")

	// ErrUnpaidTrip is returned when completing a trip whose payment was never locked.
	ErrUnpaidTrip = errors.New("trip has no locked payment")

	// ErrExternalService is returned when the ledger fails, times out, or rejects a call.
	// Nothing has been persisted when it is returned; the call is safe to retry.
	ErrExternalService = errors.New("external service failure")

	// ErrConcurrentModification is returned when another request changed the trip or vehicle first.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = errors.New("invalid pickup location")

	// ErrInvalidDropoffLocation is returned when dropoff coordinates are invalid.
	ErrInvalidDropoffLocation = errors.New("invalid dropoff location")

	// ErrInvalidPassengerCount is returned when passenger count is outside 1..8.
	ErrInvalidPassengerCount = errors.New("invalid passenger count")

	// ErrInvalidActor is returned when the actor role is unknown.
	ErrInvalidActor = errors.New("invalid actor")

	// ErrInvalidPaymentAmount is returned when a payment amount is not positive.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidPaymentReference is returned when a funding transaction reference is missing.
	ErrInvalidPaymentReference = errors.New("invalid payment reference")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidTripStatus is returned when a trip status filter is unknown.
	ErrInvalidTripStatus = errors.New("invalid trip status")

	// ErrInvalidVehicleStatus is returned when a vehicle status is unknown or not settable.
	ErrInvalidVehicleStatus = errors.New("invalid vehicle status")

	// ErrNoVehicleAvailable is returned when a driver has no claimable vehicle.
	ErrNoVehicleAvailable = errors.New("no vehicle available")

	// ErrPaymentVerification is returned when the funding transfer does not match the trip.
	ErrPaymentVerification = errors.New("payment verification failed")
)
