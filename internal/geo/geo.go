// Package geo provides great-circle distance, travel-time estimates, and
// deterministic simulated vehicle positions.
package geo

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"autodrive/internal/domain"
)

const (
	// EarthRadiusKm is the mean Earth radius used by DistanceKm.
	EarthRadiusKm = 6371.0

	// DefaultSpeedKmh is used when a non-positive speed is supplied.
	DefaultSpeedKmh = 30.0

	kmPerDegreeLat = 111.0
)

// DistanceKm returns the haversine distance between two points in kilometres.
func DistanceKm(a, b domain.Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// EstimateMinutes returns the whole minutes needed to cover distanceKm at
// speedKmh, rounded up and never less than one.
func EstimateMinutes(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	if distanceKm <= 0 {
		return 1
	}

	minutes := int(math.Ceil(distanceKm / speedKmh * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// SimulatedPosition returns a point inside the disk of radiusKm around
// center. Points are uniform over the disk area and identical for equal seeds.
func SimulatedPosition(center domain.Point, radiusKm float64, seed string) domain.Point {
	if radiusKm <= 0 {
		return center
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	r := radiusKm * math.Sqrt(rng.Float64())
	theta := 2 * math.Pi * rng.Float64()

	cosLat := math.Cos(toRadians(center.Lat))
	if math.Abs(cosLat) < 1e-9 {
		cosLat = 1e-9
	}

	return domain.Point{
		Lat: center.Lat + (r/kmPerDegreeLat)*math.Cos(theta),
		Lng: center.Lng + (r/kmPerDegreeLat)*math.Sin(theta)/cosLat,
	}
}

// TelemetrySeed returns the seed used for a vehicle's simulated position.
// It changes once per minute.
func TelemetrySeed(vehicleID string, t time.Time) string {
	return fmt.Sprintf("%s-%d", vehicleID, t.Unix()/60)
}

// ValidPoint reports whether p lies within the WGS84 coordinate range.
func ValidPoint(p domain.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// WithinRadius reports whether p is at most radiusKm from center.
func WithinRadius(center, p domain.Point, radiusKm float64) bool {
	return DistanceKm(center, p) <= radiusKm
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
