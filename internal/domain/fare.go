package domain

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// FareBreakdown is a fare split into its components. All amounts are in
// minor currency units.
type FareBreakdown struct {
	BaseFare     int64
	DistanceFare int64
	TimeFare     int64
	Subtotal     int64
	PlatformFee  int64
	Total        int64
	DriverAmount int64

	DistanceKm      float64
	DurationMinutes int

	PerKmRate      int64
	PerMinuteRate  int64
	PlatformFeeBps int64
}

// Balanced reports whether the driver amount and platform fee add up to the total.
func (f FareBreakdown) Balanced() bool {
	return f.DriverAmount+f.PlatformFee == f.Total
}
