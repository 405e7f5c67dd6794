// Package pricing computes trip fares in integer minor currency units.
package pricing

import (
	"math"

	"autodrive/internal/domain"
)

const bpsDenominator = 10000

// Rates configures a Calculator. All money values are minor currency units.
type Rates struct {
	BaseFare       int64
	PerKm          int64
	PerMinute      int64
	PlatformFeeBps int64 // 1000 = 10%
}

// DefaultRates returns the standard tariff.
func DefaultRates() Rates {
	return Rates{
		BaseFare:       50000,
		PerKm:          10000,
		PerMinute:      1000,
		PlatformFeeBps: 1000,
	}
}

// Calculator computes fare breakdowns from a fixed set of rates.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a new Calculator.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rates returns the rates the calculator was built with.
func (c *Calculator) Rates() Rates {
	return c.rates
}

// Calculate returns the fare for a trip of the given distance and duration.
// Negative inputs are treated as zero. The platform fee is rounded half up
// and the driver amount is whatever remains, so the parts always sum to Total.
func (c *Calculator) Calculate(distanceKm float64, durationMinutes int) domain.FareBreakdown {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	if durationMinutes < 0 {
		durationMinutes = 0
	}

	metres := int64(math.Round(distanceKm * 1000))
	distanceFare := metres * c.rates.PerKm / 1000
	timeFare := c.rates.PerMinute * int64(durationMinutes)

	subtotal := c.rates.BaseFare + distanceFare + timeFare
	fee := (subtotal*c.rates.PlatformFeeBps + bpsDenominator/2) / bpsDenominator
	total := subtotal + fee

	return domain.FareBreakdown{
		BaseFare:        c.rates.BaseFare,
		DistanceFare:    distanceFare,
		TimeFare:        timeFare,
		Subtotal:        subtotal,
		PlatformFee:     fee,
		Total:           total,
		DriverAmount:    total - fee,
		DistanceKm:      distanceKm,
		DurationMinutes: durationMinutes,
		PerKmRate:       c.rates.PerKm,
		PerMinuteRate:   c.rates.PerMinute,
		PlatformFeeBps:  c.rates.PlatformFeeBps,
	}
}
