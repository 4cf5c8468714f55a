package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/auth"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
	"payment-simulator/internal/requestctx"
	"payment-simulator/internal/utils"
)

// APIKeyAuth admits requests whose key is on the allow-list. The key is read
// from the x-api-key header, then the apiKey query parameter.
func APIKeyAuth(a *auth.Authenticator, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Authenticate(c.Request.Context(), auth.KeyFromRequest(c.Request))
		if err != nil {
			kind, _ := apperr.KindOf(err)
			m.AuthFailed(string(kind))
			utils.AbortWithError(c, err)
			return
		}

		if state := requestctx.FromContext(c.Request.Context()); state != nil {
			state.SetIdentity(id)
		}
		c.Next()
	}
}

// RealTransactionsGate blocks routes that move real money unless they are
// enabled in configuration.
func RealTransactionsGate(enabled bool, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			log.LogSecurityWarning(c.Request.Context(), "REAL_TRANSACTION_BLOCKED", "real transactions are disabled",
				zap.String("path", c.Request.URL.Path))
			utils.AbortWithError(c, apperr.New(apperr.KindRealTransactionsOff, "Real transactions are disabled"))
			return
		}
		c.Next()
	}
}
