package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"autodrive/internal/logging"
	"autodrive/internal/middleware"
	"autodrive/internal/tests"
)

func idempotentRouter(cache *tests.MockCacheStore, status int, calls *int32) *gin.Engine {
	r := gin.New()
	r.Use(middleware.IdempotencyMiddleware(cache, logging.Discard()))
	r.POST("/v1/trips/:id/accept", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	return r
}

func post(r http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	var calls int32
	r := idempotentRouter(tests.NewMockCacheStore(), http.StatusOK, &calls)

	first := post(r, "/v1/trips/t1/accept", "key-1")
	second := post(r, "/v1/trips/t1/accept", "key-1")

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotency_KeyIsScopedToRoute(t *testing.T) {
	var calls int32
	r := idempotentRouter(tests.NewMockCacheStore(), http.StatusOK, &calls)

	post(r, "/v1/trips/t1/accept", "key-1")
	post(r, "/v1/trips/t2/accept", "key-1")

	assert.Equal(t, int32(2), calls)
}

func TestIdempotency_WithoutKey(t *testing.T) {
	var calls int32
	cache := tests.NewMockCacheStore()
	r := idempotentRouter(cache, http.StatusOK, &calls)

	post(r, "/v1/trips/t1/accept", "")
	post(r, "/v1/trips/t1/accept", "")

	assert.Equal(t, int32(2), calls)
	assert.Zero(t, cache.Len())
}

func TestIdempotency_ServerErrorsAreNotRecorded(t *testing.T) {
	var calls int32
	cache := tests.NewMockCacheStore()
	r := idempotentRouter(cache, http.StatusBadGateway, &calls)

	post(r, "/v1/trips/t1/accept", "key-1")
	post(r, "/v1/trips/t1/accept", "key-1")

	assert.Equal(t, int32(2), calls)
	assert.Zero(t, cache.Len())
}

func TestIdempotency_CacheFailureFallsThrough(t *testing.T) {
	var calls int32
	cache := tests.NewMockCacheStore()
	cache.GetError = errors.New("redis down")
	r := idempotentRouter(cache, http.StatusOK, &calls)

	w := post(r, "/v1/trips/t1/accept", "key-1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), calls)
}
