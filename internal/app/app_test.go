package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodrive/internal/config"
	"autodrive/internal/handler"
	"autodrive/internal/ledger"
	"autodrive/internal/logging"
	"autodrive/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter_RegistersRoutes(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterDeps{
		TripHandler:    handler.NewTripHandler(nil),
		VehicleHandler: handler.NewVehicleHandler(nil),
		AccountHandler: handler.NewAccountHandler(tests.NewMockAccountRepository()),
		Cache:          tests.NewMockCacheStore(),
		Logger:         logging.Discard(),
	})

	registered := map[string]bool{}
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"POST /v1/accounts",
		"GET /v1/accounts/:id",
		"POST /v1/vehicles",
		"GET /v1/vehicles",
		"GET /v1/vehicles/available",
		"GET /v1/vehicles/:id",
		"POST /v1/vehicles/:id/location",
		"POST /v1/vehicles/:id/status",
		"POST /v1/trips/estimate",
		"POST /v1/trips",
		"GET /v1/trips",
		"GET /v1/trips/active",
		"GET /v1/trips/:id",
		"POST /v1/trips/:id/match",
		"POST /v1/trips/:id/payment",
		"POST /v1/trips/:id/accept",
		"POST /v1/trips/:id/pickup",
		"POST /v1/trips/:id/complete",
		"POST /v1/trips/:id/cancel",
	} {
		assert.True(t, registered[want], want)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNewRouter_RequiredAuth(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterDeps{
		TripHandler:    handler.NewTripHandler(nil),
		VehicleHandler: handler.NewVehicleHandler(nil),
		AccountHandler: handler.NewAccountHandler(tests.NewMockAccountRepository()),
		Auth:           config.AuthConfig{JWTSecret: "s", Required: true},
		Logger:         logging.Discard(),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/rider-1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewLedgerClient(t *testing.T) {
	t.Parallel()
	logger := logging.Discard()

	client, err := NewLedgerClient(config.LedgerConfig{Mode: config.LedgerModeSimulated}, logger)
	require.NoError(t, err)
	assert.IsType(t, &ledger.Simulated{}, client)

	client, err = NewLedgerClient(config.LedgerConfig{
		Mode:      config.LedgerModeRPC,
		RPCURL:    "http://localhost:9000",
		PackageID: "0xpkg",
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &ledger.RPCClient{}, client)

	_, err = NewLedgerClient(config.LedgerConfig{Mode: config.LedgerModeRPC}, logger)
	assert.Error(t, err)

	_, err = NewLedgerClient(config.LedgerConfig{Mode: "mainnet"}, logger)
	assert.Error(t, err)
}

func TestLedgerHTTPClient_TransportNotWrapped(t *testing.T) {
	t.Parallel()

	client := ledgerHTTPClient(config.LedgerConfig{Timeout: 7 * time.Second})
	assert.Nil(t, client.Transport)
	assert.Equal(t, 7*time.Second, client.Timeout)
}

func TestNewPublisher_DisabledLogsOnly(t *testing.T) {
	t.Parallel()

	pub, closeFn := NewPublisher(config.KafkaConfig{Enabled: false}, logging.Discard())
	require.NotNil(t, pub)
	assert.NoError(t, closeFn())
}

func TestStartTelemetry_Disabled(t *testing.T) {
	t.Parallel()

	stop, err := StartTelemetry(config.MQTTConfig{}, tests.NewMockLocationStore(), logging.Discard())
	require.NoError(t, err)
	stop()
}

func TestKeyspace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	assert.Equal(t, "lock", keyspace(redis.NewStringCmd(ctx, "get", "lock:settlement:release:t1")))
	assert.Equal(t, "vehicles", keyspace(redis.NewStringCmd(ctx, "get", "vehicles")))
	assert.Equal(t, "redis", keyspace(redis.NewStatusCmd(ctx, "ping")))
}
