package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autodrive/internal/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	replayedHeader    = "Idempotent-Replayed"
)

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the recorded response of a mutating request
// that carries an Idempotency-Key already seen for the same actor and route.
// Server errors are not recorded so the request can be retried.
func IdempotencyMiddleware(cache redis.CacheStoreInterface, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache == nil || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := scopedKey(c, key)

		data, err := cache.GetResponse(ctx, cacheKey)
		if err != nil {
			logger.WithError(err).Warn("idempotency lookup failed, processing request")
			c.Next()
			return
		}

		if data != nil {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				for k, v := range cached.Headers {
					for _, val := range v {
						c.Header(k, val)
					}
				}
				c.Header(replayedHeader, "true")
				c.Data(cached.StatusCode, "application/json", cached.Body)
				c.Abort()
				return
			}
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 500 {
			return
		}
		payload, err := json.Marshal(cachedResponse{
			StatusCode: status,
			Body:       w.body.Bytes(),
			Headers:    extractResponseHeaders(c),
		})
		if err != nil {
			return
		}
		if _, err := cache.SetResponse(ctx, cacheKey, payload, idempotencyTTL); err != nil {
			logger.WithError(err).Warn("failed to record idempotent response")
		}
	}
}

func mutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// scopedKey binds a client key to the caller and the route it was sent to.
func scopedKey(c *gin.Context, key string) string {
	actor := "anonymous"
	if a, ok := ActorFrom(c); ok {
		actor = a.ID
	}
	return actor + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	// Only cache Content-Type header.
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
