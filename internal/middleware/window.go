package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/auth"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
	"payment-simulator/internal/models"
	"payment-simulator/internal/ratelimit"
	"payment-simulator/internal/utils"
)

// WindowRateLimit applies the per-caller sliding window. It runs before
// APIKeyAuth so rejected credentials are counted too. Allow-listed keys are
// keyed by identity; everything else by client IP.
func WindowRateLimit(l *ratelimit.Limiter, a *auth.Authenticator, log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := callerKey(c, a)

		d, err := l.Allow(ctx, key)
		if err != nil {
			// Store outages fail open; the global bucket still applies.
			log.LogError(ctx, "rate limit store unavailable", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if d.Allowed {
			c.Next()
			return
		}

		retryAfter := int64(math.Ceil(d.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))

		// The rejected request is not stored, so it is added back for the log.
		attempted := d.Count + 1
		log.LogRateLimit(ctx, key, attempted, d.Limit, d.RetryAfter)
		log.LogSecurityWarning(ctx, "RATE_LIMIT_EXCEEDED", "caller exceeded request window",
			zap.Int("count", attempted),
			zap.Int("limit", d.Limit),
			zap.Duration("window", l.Window()))
		m.RateLimited()

		status, body := utils.Failure(
			apperr.Newf(apperr.KindRateLimitExceeded, "Too many requests, retry after %s", time.Duration(retryAfter)*time.Second),
			utils.RequestID(c),
		)
		c.AbortWithStatusJSON(status, models.RateLimitFailure{PaymentFailure: body, RetryAfter: retryAfter})
	}
}

func callerKey(c *gin.Context, a *auth.Authenticator) string {
	if id, ok := a.Recognize(auth.KeyFromRequest(c.Request)); ok {
		return "key:" + id.ID
	}
	return "ip:" + c.ClientIP()
}
