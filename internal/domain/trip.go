package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusRequested TripStatus = "REQUESTED"
	TripStatusMatched   TripStatus = "MATCHED"
	TripStatusAccepted  TripStatus = "ACCEPTED"
	TripStatusPickedUp  TripStatus = "PICKED_UP"
	TripStatusCompleted TripStatus = "COMPLETED"
	TripStatusCancelled TripStatus = "CANCELLED"
)

// tripTransitions lists every allowed transition. Anything absent is rejected.
var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusRequested: {TripStatusMatched, TripStatusAccepted, TripStatusCancelled},
	TripStatusMatched:   {TripStatusAccepted, TripStatusCancelled},
	TripStatusAccepted:  {TripStatusPickedUp, TripStatusCancelled},
	TripStatusPickedUp:  {TripStatusCompleted, TripStatusCancelled},
	TripStatusCompleted: nil,
	TripStatusCancelled: nil,
}

// TripStatuses returns all trip statuses in lifecycle order.
func TripStatuses() []TripStatus {
	return []TripStatus{
		TripStatusRequested,
		TripStatusMatched,
		TripStatusAccepted,
		TripStatusPickedUp,
		TripStatusCompleted,
		TripStatusCancelled,
	}
}

// Valid reports whether s is one of the enumerated statuses.
func (s TripStatus) Valid() bool {
	_, ok := tripTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s TripStatus) Terminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

// CanTransition reports whether a trip may move from one status to another.
func CanTransition(from, to TripStatus) bool {
	for _, next := range tripTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActorRole identifies who is acting on a trip.
type ActorRole string

const (
	ActorRider  ActorRole = "rider"
	ActorDriver ActorRole = "driver"
)

// Valid reports whether r is a known role.
func (r ActorRole) Valid() bool {
	return r == ActorRider || r == ActorDriver
}

// Trip is a single ride from request to completion or cancellation.
type Trip struct {
	ID             string
	RiderID        string
	DriverID       string // Empty until matched or directly accepted
	VehicleID      string
	Pickup         Point
	Dropoff        Point
	PickupAddress  string
	DropoffAddress string
	PassengerCount int

	DistanceKm       float64
	EstimatedMinutes int
	ActualMinutes    int
	DriverETAMinutes int

	// Fare holds the estimate until the trip completes, then the final breakdown.
	Fare FareBreakdown

	Status TripStatus

	Escrow       *EscrowReference
	PaymentTxRef string
	ReleaseTxRef string
	RefundTxRef  string

	RequestedAt time.Time
	MatchedAt   time.Time
	AcceptedAt  time.Time
	PickedUpAt  time.Time
	CompletedAt time.Time
	CancelledAt time.Time

	CancellationReason string
	CancelledBy        ActorRole
}

// IsActive reports whether the trip is still in a non-terminal state.
func (t *Trip) IsActive() bool {
	return !t.Status.Terminal()
}

// HasDriver reports whether a driver is bound to the trip.
func (t *Trip) HasDriver() bool {
	return t.DriverID != ""
}

// Receipt summarises a completed trip.
type Receipt struct {
	ID              string
	TripID          string
	RiderID         string
	DriverID        string
	VehicleID       string
	PickupHash      string // SHA-256 of the pickup coordinates
	DropoffHash     string
	DistanceKm      float64
	DurationMinutes int
	Fare            FareBreakdown
	EscrowID        string
	ReleaseTxRef    string
	LedgerReceiptID string // Empty when the on-ledger receipt was not written
	StartedAt       time.Time
	EndedAt         time.Time
	CreatedAt       time.Time
}
