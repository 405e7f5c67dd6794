package domain

// VehicleStatus represents the current status of a vehicle.
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "available"
	VehicleStatusOnTrip      VehicleStatus = "on_trip"
	VehicleStatusOffline     VehicleStatus = "offline"
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

// Valid reports whether s is one of the enumerated statuses.
func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleStatusAvailable, VehicleStatusOnTrip, VehicleStatusOffline, VehicleStatusMaintenance:
		return true
	default:
		return false
	}
}

// VehicleStats holds cumulative counters updated on trip completion.
type VehicleStats struct {
	TotalTrips      int
	TotalDistanceKm float64
	TotalEarnings   int64 // Minor currency units
}

// Vehicle represents a driver's vehicle.
type Vehicle struct {
	ID       string
	DriverID string
	Model    string
	Seats    int    // 0 when unknown
	Position *Point // Nil when the vehicle has never reported a position
	Status   VehicleStatus
	Active   bool
	Stats    VehicleStats
}

// CanSeat reports whether the vehicle fits the given number of passengers.
// Vehicles with an unknown seat count are assumed to fit.
func (v *Vehicle) CanSeat(passengers int) bool {
	return v.Seats == 0 || v.Seats >= passengers
}
