package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Trip.AutoMatch)
	assert.Equal(t, 10.0, cfg.Trip.SearchRadiusKm)
	assert.Equal(t, 30.0, cfg.Trip.AvgSpeedKmh)
	assert.Equal(t, int64(50000), cfg.Fare.BaseFare)
	assert.Equal(t, int64(10000), cfg.Fare.PerKm)
	assert.Equal(t, int64(1000), cfg.Fare.PerMinute)
	assert.Equal(t, int64(1000), cfg.Fare.PlatformFeeBps)
	assert.Equal(t, LedgerModeSimulated, cfg.Ledger.Mode)
	assert.Equal(t, int64(500), cfg.Ledger.ToleranceBps)
	assert.Equal(t, 15*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRIP_AUTO_MATCH", "true")
	t.Setenv("TRIP_SEARCH_RADIUS_KM", "4.5")
	t.Setenv("FARE_PER_KM", "12000")
	t.Setenv("LEDGER_MODE", "rpc")
	t.Setenv("LEDGER_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")

	cfg := Load()

	assert.True(t, cfg.Trip.AutoMatch)
	assert.Equal(t, 4.5, cfg.Trip.SearchRadiusKm)
	assert.Equal(t, int64(12000), cfg.Fare.PerKm)
	assert.Equal(t, LedgerModeRPC, cfg.Ledger.Mode)
	assert.Equal(t, 2*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TRIP_AUTO_MATCH", "maybe")
	t.Setenv("FARE_BASE", "lots")
	t.Setenv("LEDGER_TIMEOUT", "soon")

	cfg := Load()

	assert.False(t, cfg.Trip.AutoMatch)
	assert.Equal(t, int64(50000), cfg.Fare.BaseFare)
	assert.Equal(t, 15*time.Second, cfg.Ledger.Timeout)
}
