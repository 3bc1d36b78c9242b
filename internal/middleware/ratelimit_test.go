package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// rateLimitedHandler spins up a miniredis-backed limiter with the given
// per-window budget and returns the wrapped handler plus a cleanup func.
func rateLimitedHandler(t *testing.T, requestsPerWindow int, keyPrefix string) (http.Handler, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mw := RateLimitMiddleware(redisClient, RateLimitConfig{
		RequestsPerWindow: requestsPerWindow,
		Window:            time.Second,
		KeyPrefix:         keyPrefix,
	}, zap.NewNop())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	return handler, func() {
		redisClient.Close()
		mr.Close()
	}
}

// Feature: rate-limiting, Property: excessive requests are blocked
func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exactly the window budget succeeds, the rest get 429", prop.ForAll(
		func(requestsPerWindow int, excessRequests int) bool {
			handler, cleanup := rateLimitedHandler(t, requestsPerWindow, "test_rate_limit")
			defer cleanup()

			successCount := 0
			blockedCount := 0
			for i := 0; i < requestsPerWindow+excessRequests; i++ {
				req := httptest.NewRequest("GET", "/api/products", nil)
				req.RemoteAddr = "192.168.1.100:52000"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					successCount++
				case http.StatusTooManyRequests:
					blockedCount++
				}
			}

			return successCount == requestsPerWindow && blockedCount == excessRequests
		},
		gen.IntRange(5, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: rate-limiting, Property: responses advertise the remaining budget
func TestProperty_RateLimitHeadersAreSet(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("allowed responses carry X-RateLimit headers", prop.ForAll(
		func(requestsPerWindow int) bool {
			handler, cleanup := rateLimitedHandler(t, requestsPerWindow, "test_rate_limit_headers")
			defer cleanup()

			req := httptest.NewRequest("GET", "/api/products", nil)
			req.RemoteAddr = "192.168.1.101:52000"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Header().Get("X-RateLimit-Limit") != strconv.Itoa(requestsPerWindow) {
				return false
			}
			return w.Header().Get("X-RateLimit-Remaining") != ""
		},
		gen.IntRange(5, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
