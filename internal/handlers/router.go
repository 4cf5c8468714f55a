package handlers

import (
	"path/filepath"

	"github.com/gin-gonic/gin"

	"payment-simulator/internal/auth"
	"payment-simulator/internal/config"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
	"payment-simulator/internal/middleware"
	"payment-simulator/internal/ratelimit"
)

type RouterDeps struct {
	Config        *config.Config
	Log           *logger.Logger
	Metrics       *metrics.Metrics
	Authenticator *auth.Authenticator
	Limiter       *ratelimit.Limiter
	Payments      *PaymentHandler
	System        *SystemHandler
}

// NewRouter wires middleware and routes. Health, metrics and the checkout
// page are exempt from authentication and every rate limit.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(d.Log))
	router.Use(middleware.RequestID())
	router.Use(middleware.EnhancedLogger(d.Log, d.Metrics))
	router.Use(middleware.SecurityHeaders(d.Log))
	router.Use(middleware.CORS())

	router.GET("/health", d.System.Health)
	if dir := d.Config.Server.StaticDir; dir != "" {
		router.Static("/static", dir)
		router.StaticFile("/payment-test.html", filepath.Join(dir, "payment-test.html"))
	}
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	api := router.Group("/api")
	api.Use(middleware.RateLimit(d.Config.RateLimit.GlobalRPS, d.Config.RateLimit.GlobalBurst, d.Log))
	api.Use(middleware.WindowRateLimit(d.Limiter, d.Authenticator, d.Log, d.Metrics))
	api.Use(middleware.APIKeyAuth(d.Authenticator, d.Metrics))
	{
		api.GET("/status", d.System.Status)
		api.POST("/simulate-payment", d.Payments.SimulatePayment)

		live := api.Group("")
		live.Use(middleware.RealTransactionsGate(d.Config.Stripe.EnableRealTransactions, d.Log))
		live.POST("/real-payment", d.Payments.RealPayment)
		live.POST("/card-to-payment", d.Payments.CardToPayment)
	}

	d.Log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
