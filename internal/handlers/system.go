package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payment-simulator/internal/browser"
	"payment-simulator/internal/ratelimit"
	"payment-simulator/internal/requestctx"
	"payment-simulator/internal/utils"
)

// SystemHandler serves liveness and caller status.
type SystemHandler struct {
	service          string
	version          string
	startedAt        time.Time
	limiter          *ratelimit.Limiter
	sessions         *browser.Manager
	realTransactions bool
}

func NewSystemHandler(service, version string, limiter *ratelimit.Limiter, sessions *browser.Manager, realTransactions bool) *SystemHandler {
	return &SystemHandler{
		service:          service,
		version:          version,
		startedAt:        time.Now(),
		limiter:          limiter,
		sessions:         sessions,
		realTransactions: realTransactions,
	}
}

func (h *SystemHandler) uptime() float64 {
	return time.Since(h.startedAt).Seconds()
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   h.service,
		"version":   h.version,
		"uptime":    h.uptime(),
		"requestId": utils.RequestID(c),
		"timestamp": time.Now().UTC(),
	})
}

// Status reports what the authenticated caller is subject to.
func (h *SystemHandler) Status(c *gin.Context) {
	var identity requestctx.Identity
	if state := requestctx.FromContext(c.Request.Context()); state != nil {
		identity, _ = state.Identity()
	}

	body := gin.H{
		"status":           "operational",
		"requestId":        utils.RequestID(c),
		"identity":         identity,
		"uptime":           h.uptime(),
		"realTransactions": h.realTransactions,
		"timestamp":        time.Now().UTC(),
	}
	if h.limiter != nil {
		body["rateLimit"] = gin.H{
			"windowMs": h.limiter.Window().Milliseconds(),
			"max":      h.limiter.Max(),
		}
	}
	if h.sessions != nil {
		body["browser"] = h.sessions.Stats()
	}
	c.JSON(http.StatusOK, body)
}
