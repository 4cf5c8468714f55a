package middleware

import (
	"github.com/gin-gonic/gin"

	"payment-simulator/internal/requestctx"
	"payment-simulator/internal/utils"
)

const HeaderRequestID = "X-Request-Id"

// RequestID attaches the per-request state every later stage logs against.
// An inbound id is reused when it is short and plain.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if !plainID(id) {
			id = utils.NewRequestID()
		}

		state := requestctx.New(id, c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(requestctx.WithState(c.Request.Context(), state))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func plainID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
