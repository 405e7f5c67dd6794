package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate_DefaultRates(t *testing.T) {
	t.Parallel()

	c := NewCalculator(DefaultRates())
	fare := c.Calculate(5, 10)

	assert.Equal(t, int64(50000), fare.BaseFare)
	assert.Equal(t, int64(50000), fare.DistanceFare)
	assert.Equal(t, int64(10000), fare.TimeFare)
	assert.Equal(t, int64(110000), fare.Subtotal)
	assert.Equal(t, int64(11000), fare.PlatformFee)
	assert.Equal(t, int64(121000), fare.Total)
	assert.Equal(t, int64(110000), fare.DriverAmount)
	assert.True(t, fare.Balanced())
}

func TestCalculate_FractionalDistanceUsesMetres(t *testing.T) {
	t.Parallel()

	c := NewCalculator(DefaultRates())
	fare := c.Calculate(5.1234, 11)

	// 5123 m at 10000 per km.
	assert.Equal(t, int64(51230), fare.DistanceFare)
	assert.Equal(t, int64(11000), fare.TimeFare)
	assert.Equal(t, int64(112230), fare.Subtotal)
	assert.Equal(t, int64(11223), fare.PlatformFee)
	assert.Equal(t, int64(123453), fare.Total)
	assert.True(t, fare.Balanced())
}

func TestCalculate_FeeRoundsHalfUp(t *testing.T) {
	t.Parallel()

	c := NewCalculator(Rates{BaseFare: 5, PlatformFeeBps: 1000})
	fare := c.Calculate(0, 0)

	// 5 * 10% = 0.5 rounds to 1.
	assert.Equal(t, int64(1), fare.PlatformFee)
	assert.Equal(t, int64(6), fare.Total)
	assert.Equal(t, int64(5), fare.DriverAmount)
}

func TestCalculate_NegativeInputsClampToZero(t *testing.T) {
	t.Parallel()

	c := NewCalculator(DefaultRates())
	fare := c.Calculate(-3, -7)

	assert.Equal(t, int64(0), fare.DistanceFare)
	assert.Equal(t, int64(0), fare.TimeFare)
	assert.Equal(t, 0.0, fare.DistanceKm)
	assert.Equal(t, 0, fare.DurationMinutes)
	assert.Equal(t, int64(55000), fare.Total)
}

func TestCalculate_AlwaysBalanced(t *testing.T) {
	t.Parallel()

	c := NewCalculator(Rates{BaseFare: 333, PerKm: 777, PerMinute: 99, PlatformFeeBps: 1234})
	for km := 0.0; km < 40; km += 0.37 {
		for minutes := 0; minutes < 90; minutes += 7 {
			fare := c.Calculate(km, minutes)
			assert.True(t, fare.Balanced(), "km=%.2f minutes=%d", km, minutes)
			assert.Equal(t, fare.Subtotal, fare.BaseFare+fare.DistanceFare+fare.TimeFare)
		}
	}
}

func TestCalculate_MonotonicInDistanceAndDuration(t *testing.T) {
	t.Parallel()

	c := NewCalculator(DefaultRates())
	prev := c.Calculate(0, 10).Total
	for km := 0.5; km <= 20; km += 0.5 {
		total := c.Calculate(km, 10).Total
		assert.GreaterOrEqual(t, total, prev)
		prev = total
	}

	prev = c.Calculate(5, 0).Total
	for minutes := 1; minutes <= 60; minutes++ {
		total := c.Calculate(5, minutes).Total
		assert.GreaterOrEqual(t, total, prev)
		prev = total
	}
}
