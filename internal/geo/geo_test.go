package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodrive/internal/domain"
)

var (
	taipeiStation = domain.Point{Lat: 25.0330, Lng: 121.5654}
	taipei101     = domain.Point{Lat: 25.0478, Lng: 121.5170}
)

func TestDistanceKm_IdenticalPointsIsZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, DistanceKm(taipeiStation, taipeiStation))
}

func TestDistanceKm_Symmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]domain.Point{
		{taipeiStation, taipei101},
		{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}},
		{{Lat: -33.86, Lng: 151.21}, {Lat: 51.5, Lng: -0.12}},
	}

	for _, p := range pairs {
		assert.InDelta(t, DistanceKm(p[0], p[1]), DistanceKm(p[1], p[0]), 1e-9)
	}
}

func TestDistanceKm_KnownDistances(t *testing.T) {
	t.Parallel()

	d := DistanceKm(taipeiStation, taipei101)
	assert.InDelta(t, 5.1, d, 0.3)

	// One degree of longitude on the equator.
	assert.InDelta(t, 111.19, DistanceKm(domain.Point{}, domain.Point{Lng: 1}), 0.05)
}

func TestEstimateMinutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		distance float64
		speed    float64
		want     int
	}{
		{"five km at default speed", 5, 30, 10},
		{"rounds up", 5.1, 30, 11},
		{"zero distance floors to one", 0, 30, 1},
		{"tiny distance floors to one", 0.01, 30, 1},
		{"non-positive speed uses default", 15, 0, 30},
		{"negative speed uses default", 15, -10, 30},
		{"faster speed", 60, 60, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateMinutes(tt.distance, tt.speed))
		})
	}
}

func TestSimulatedPosition_Deterministic(t *testing.T) {
	t.Parallel()

	a := SimulatedPosition(taipeiStation, 10, "veh-1-29000000")
	b := SimulatedPosition(taipeiStation, 10, "veh-1-29000000")
	c := SimulatedPosition(taipeiStation, 10, "veh-2-29000000")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSimulatedPosition_StaysInsideRadius(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		seed := TelemetrySeed("veh", now.Add(time.Duration(i)*time.Minute))
		p := SimulatedPosition(taipeiStation, 10, seed)
		require.True(t, ValidPoint(p))
		// The degree approximation is within a few percent of haversine.
		assert.LessOrEqual(t, DistanceKm(taipeiStation, p), 10.3, "seed %s", seed)
	}
}

func TestSimulatedPosition_ZeroRadiusReturnsCenter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, taipeiStation, SimulatedPosition(taipeiStation, 0, "x"))
}

func TestTelemetrySeed_ChangesPerMinute(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	start := base.Truncate(time.Minute)

	assert.Equal(t, TelemetrySeed("veh-1", start), TelemetrySeed("veh-1", start.Add(59*time.Second)))
	assert.NotEqual(t, TelemetrySeed("veh-1", start), TelemetrySeed("veh-1", start.Add(time.Minute)))
	assert.Equal(t, "veh-1-28333333", TelemetrySeed("veh-1", base))
}

func TestValidPoint(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidPoint(taipeiStation))
	assert.True(t, ValidPoint(domain.Point{Lat: -90, Lng: 180}))
	assert.False(t, ValidPoint(domain.Point{Lat: 91, Lng: 0}))
	assert.False(t, ValidPoint(domain.Point{Lat: 0, Lng: -181}))
}

func TestWithinRadius(t *testing.T) {
	t.Parallel()

	assert.True(t, WithinRadius(taipeiStation, taipei101, 10))
	assert.False(t, WithinRadius(taipeiStation, taipei101, 2))
}
