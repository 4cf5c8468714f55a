package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"payment-simulator/internal/auth"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/models"
	"payment-simulator/internal/ratelimit"
	"payment-simulator/internal/requestctx"
)

const validKey = "test-key-0123456789"

func init() {
	gin.SetMode(gin.TestMode)
}

func identityHandler(c *gin.Context) {
	state := requestctx.FromContext(c.Request.Context())
	id, _ := state.Identity()
	c.JSON(http.StatusOK, gin.H{"requestId": state.RequestID, "identity": id.ID})
}

func newRouter(log *logger.Logger, handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(log), RequestID())
	r.Use(handlers...)
	r.GET("/api/status", identityHandler)
	r.OPTIONS("/api/status", identityHandler)
	r.GET("/api/panic", func(c *gin.Context) { panic("card 4242424242424242 exploded") })
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	r := newRouter(logger.NewNop())

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Len(t, body["requestId"], 36)
	assert.Equal(t, body["requestId"], w.Header().Get(HeaderRequestID))
}

func TestRequestIDHonoursPlainInboundID(t *testing.T) {
	r := newRouter(logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderRequestID, "trace-abc_123")
	assert.Equal(t, "trace-abc_123", do(r, req).Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderRequestID, "bad\nid")
	assert.NotEqual(t, "bad\nid", do(r, req).Header().Get(HeaderRequestID))
}

func TestAPIKeyAuth(t *testing.T) {
	a := auth.NewAuthenticator([]string{validKey}, true, logger.NewNop())
	r := newRouter(logger.NewNop(), APIKeyAuth(a, nil))

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing", "/api/status", "", http.StatusUnauthorized},
		{"wrong", "/api/status", "nope-nope-nope", http.StatusUnauthorized},
		{"header", "/api/status", validKey, http.StatusOK},
		{"query", "/api/status?apiKey=" + validKey, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(auth.HeaderAPIKey, tt.header)
			}
			w := do(r, req)
			assert.Equal(t, tt.status, w.Code)

			if tt.status == http.StatusOK {
				var body map[string]string
				decode(t, w, &body)
				assert.Equal(t, "test-key", body["identity"])
			} else {
				var body models.PaymentFailure
				decode(t, w, &body)
				assert.Equal(t, "auth_error", body.Type)
				assert.NotEmpty(t, body.RequestID)
				assert.NotContains(t, w.Body.String(), "nope-nope-nope")
			}
		})
	}
}

func TestWindowRateLimitRejectsOverflow(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewWithCore(core, "test")
	clock := clockz.NewFakeClock()
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 15*time.Minute, 2, clock)
	a := auth.NewAuthenticator([]string{validKey}, true, logger.NewNop())
	r := newRouter(log, WindowRateLimit(limiter, a, log, nil), APIKeyAuth(a, nil))

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set(auth.HeaderAPIKey, validKey)
		return do(r, req)
	}

	first := call()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, http.StatusOK, call().Code)

	w := call()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))

	var body models.RateLimitFailure
	decode(t, w, &body)
	assert.Equal(t, int64(900), body.RetryAfter)
	assert.Equal(t, "rate_limit_error", body.Type)

	limited := logs.FilterField(zapcore.Field{Key: "category", Type: zapcore.StringType, String: string(logger.CategoryRateLimit)}).All()
	require.Len(t, limited, 1)
	assert.EqualValues(t, 3, limited[0].ContextMap()["count"])

	security := logs.FilterField(zapcore.Field{Key: "event", Type: zapcore.StringType, String: "RATE_LIMIT_EXCEEDED"}).All()
	require.Len(t, security, 1)
	assert.EqualValues(t, 3, security[0].ContextMap()["count"])

	clock.Advance(15*time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, call().Code)
}

func TestWindowRateLimitKeysAnonymousCallersByIP(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Minute, 1, clockz.NewFakeClock())
	a := auth.NewAuthenticator(nil, false, logger.NewNop())
	r := newRouter(logger.NewNop(), WindowRateLimit(limiter, a, logger.NewNop(), nil), APIKeyAuth(a, nil))

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = ip + ":5000"
		return do(r, req).Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
}

type failingStore struct{}

func (failingStore) Take(_ context.Context, _ string, _ time.Time, _ time.Duration, _ int) (ratelimit.Usage, error) {
	return ratelimit.Usage{}, errors.New("redis: connection refused")
}

func TestWindowRateLimitFailsOpenOnStoreError(t *testing.T) {
	limiter := ratelimit.NewLimiter(failingStore{}, time.Minute, 1, nil)
	r := newRouter(logger.NewNop(), WindowRateLimit(limiter, nil, logger.NewNop(), nil))

	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil)).Code)
}

func TestGlobalRateLimit(t *testing.T) {
	r := newRouter(logger.NewNop(), RateLimit(1, 1, logger.NewNop()))

	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil)).Code)
}

func TestRealTransactionsGate(t *testing.T) {
	r := newRouter(logger.NewNop(), RealTransactionsGate(false, logger.NewNop()))

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body models.PaymentFailure
	decode(t, w, &body)
	assert.Equal(t, "real_transactions_disabled", body.Code)

	open := newRouter(logger.NewNop(), RealTransactionsGate(true, logger.NewNop()))
	assert.Equal(t, http.StatusOK, do(open, httptest.NewRequest(http.MethodGet, "/api/status", nil)).Code)
}

func TestRecoveryReturnsSanitizedError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRouter(logger.NewWithCore(core, "test"))

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "4242424242424242")
	assert.Contains(t, w.Body.String(), "Internal server error")

	errs := logs.FilterField(zapcore.Field{Key: "category", Type: zapcore.StringType, String: string(logger.CategoryError)}).All()
	require.Len(t, errs, 1)
	assert.NotContains(t, errs[0].ContextMap()["error"], "4242424242424242")
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(logger.NewNop(), SecurityHeaders(logger.NewNop()), CORS())

	w := do(r, httptest.NewRequest(http.MethodOptions, "/api/status", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestWindowRateLimitCountsRejectedCredentials(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Minute, 2, clockz.NewFakeClock())
	a := auth.NewAuthenticator([]string{validKey}, true, logger.NewNop())
	r := newRouter(logger.NewNop(), WindowRateLimit(limiter, a, logger.NewNop(), nil), APIKeyAuth(a, nil))

	guess := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set(auth.HeaderAPIKey, key)
		return do(r, req).Code
	}

	assert.Equal(t, http.StatusUnauthorized, guess("guess-one-000000"))
	assert.Equal(t, http.StatusUnauthorized, guess("guess-two-000000"))
	assert.Equal(t, http.StatusTooManyRequests, guess("guess-three-0000"))
	assert.Equal(t, http.StatusOK, guess(validKey))
}
