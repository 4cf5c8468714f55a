package middleware

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
	"payment-simulator/internal/utils"
)

// EnhancedLogger records one api_access entry and one metrics observation
// per request.
func EnhancedLogger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		log.LogAPI(c.Request.Context(), c.Request.Method, c.Request.URL.Path, status, duration)
		m.ObserveHTTP(c.Request.Method, route, status, duration)
	}
}

func Recovery(log *logger.Logger) gin.HandlerFunc {
	// gin's own panic dump is discarded; it would print unredacted values.
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered interface{}) {
		log.LogError(c.Request.Context(), "recovered from panic", fmt.Errorf("%v", recovered))
		utils.AbortWithError(c, apperr.New(apperr.KindGeneralProcessing, "Internal server error"))
	})
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Api-Key, X-Request-Id")
		c.Header("Access-Control-Expose-Headers", "X-Request-Id, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit is a process-wide token bucket in front of every route. The
// per-caller window lives in WindowRateLimit.
func RateLimit(rps float64, burst int, log *logger.Logger) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.LogSecurityWarning(c.Request.Context(), "GLOBAL_RATE_LIMIT", "global request rate exceeded",
				zap.String("clientIp", c.ClientIP()))
			status, body := utils.Failure(apperr.New(apperr.KindRateLimitExceeded, "Too many requests"), utils.RequestID(c))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}

func SecurityHeaders(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Cache-Control", "no-store")

		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			log.LogSecurity(c.Request.Context(), "PROXY_REQUEST", "request via proxy", zap.String("forwardedFor", fwd))
		}

		c.Next()
	}
}
