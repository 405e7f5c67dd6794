package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodrive/internal/domain"
)

func TestTripArgs_MatchColumns(t *testing.T) {
	t.Parallel()

	args := tripArgs(&domain.Trip{ID: "trip-1", Escrow: &domain.EscrowReference{EscrowID: "0xe"}})

	assert.Len(t, args, len(strings.Split(tripColumns, ",")))
}

func TestTripArgs_FareColumns(t *testing.T) {
	t.Parallel()

	fare := domain.FareBreakdown{
		BaseFare: 50000, DistanceFare: 10000, TimeFare: 1000, Subtotal: 61000,
		PlatformFee: 6100, Total: 67100, DriverAmount: 61000,
		DistanceKm: 1, DurationMinutes: 1, PerKmRate: 10000, PerMinuteRate: 1000, PlatformFeeBps: 1000,
	}
	args := tripArgs(&domain.Trip{ID: "trip-1", Fare: fare})

	cols := strings.Split(tripColumns, ",")
	values := make(map[string]any, len(cols))
	for i, col := range cols {
		values[strings.TrimSpace(col)] = args[i]
	}

	assert.Equal(t, int64(50000), values["fare_base"])
	assert.Equal(t, int64(6100), values["fare_platform_fee"])
	assert.Equal(t, int64(67100), values["fare_total"])
	assert.Equal(t, int64(61000), values["fare_driver_amount"])
	assert.Equal(t, values["fare_total"], values["fare_driver_amount"].(int64)+values["fare_platform_fee"].(int64))
	assert.Equal(t, 1, values["fare_duration_minutes"])
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$1, $2, $3", placeholders(1, 3))
	assert.Equal(t, "$4", placeholders(4, 1))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

// sliceScanner feeds tripArgs output back through scanTrip.
type sliceScanner []any

func (s sliceScanner) Scan(dest ...any) error {
	if len(dest) != len(s) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(s))
	}
	return nil
}

func TestScanTrip_DestinationCount(t *testing.T) {
	t.Parallel()

	args := tripArgs(&domain.Trip{ID: "trip-1", RequestedAt: time.Now()})

	_, err := scanTrip(sliceScanner(args))
	require.NoError(t, err)

	_, err = scanTrip(sliceScanner(args[1:]))
	require.Error(t, err)
}

func TestSchema_DeclaresActiveTripIndexes(t *testing.T) {
	t.Parallel()

	schema := Schema()
	assert.Contains(t, schema, "trips_one_active_per_rider")
	assert.Contains(t, schema, "trips_one_active_per_driver")
	assert.Contains(t, schema, "CHECK (status IN ('available', 'on_trip', 'offline', 'maintenance'))")
}

func TestSchema_FareColumnsAreBalanced(t *testing.T) {
	t.Parallel()

	schema := Schema()
	for _, col := range []string{"fare_base", "fare_distance", "fare_time", "fare_platform_fee", "fare_total", "fare_driver_amount"} {
		assert.Regexp(t, `(?m)^\s+`+col+`\s+BIGINT NOT NULL`, schema)
	}
	assert.Contains(t, schema, "CHECK (fare_driver_amount + fare_platform_fee = fare_total)")
	assert.NotContains(t, schema, "JSONB")
}

func TestSchema_FundingTransactionBacksOneTrip(t *testing.T) {
	t.Parallel()

	schema := Schema()
	assert.Contains(t, schema, "ON trips (escrow_funding_tx) WHERE escrow_funding_tx IS NOT NULL")
	assert.Contains(t, schema, "ON settlements (funding_tx_ref) WHERE funding_tx_ref <> ''")
}
