package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"payment-simulator/internal/auth"
	"payment-simulator/internal/browser"
	"payment-simulator/internal/config"
	"payment-simulator/internal/handlers"
	"payment-simulator/internal/kafka"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
	"payment-simulator/internal/ratelimit"
	rediswindow "payment-simulator/internal/redis"
	"payment-simulator/internal/services"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: cfg.Log.Service})
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid logger configuration:", err)
		os.Exit(1)
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("ENV", "No .env file loaded, using environment variables")
	}

	log.LogProcess("STARTUP", "Payment simulator starting up...")
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", "Invalid configuration", zap.Error(err))
	}
	log.Info("CONFIG", "Configuration loaded successfully",
		zap.Bool("requireKeys", cfg.Auth.RequireKeys),
		zap.Int("apiKeys", len(cfg.Auth.APIKeys)),
		zap.Bool("realTransactions", cfg.Stripe.EnableRealTransactions),
		zap.String("stripeKey", logger.MaskSecret(cfg.Stripe.SecretKey)))

	m := metrics.New()

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, kafka.Topics{
		Audit:  cfg.Kafka.AuditTopic,
		Events: cfg.Kafka.EventsTopic,
	}, !cfg.Kafka.Enabled, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()
	log.SetAuditSink(producer)

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ws, err := rediswindow.Dial(ctx, cfg.RateLimit.RedisAddr)
		cancel()
		if err != nil {
			log.Fatal("REDIS", "Failed to connect to rate limit store", zap.Error(err))
		}
		defer ws.Close()
		store = ws
		log.LogProcess("REDIS", "Redis rate limit store connected")
	}
	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Window, cfg.RateLimit.Max, nil)

	var api services.ProcessorAPI
	if cfg.Stripe.SecretKey != "" {
		api = services.NewStripeAPI(cfg.Stripe.SecretKey)
		log.LogProcess("STRIPE", "Stripe API client initialized")
	} else {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, real-payment is unavailable")
	}
	stripeService := services.NewStripeService(api, cfg.Stripe.Currency, log)

	sessions := browser.NewManager(browser.NewChromeLauncher(browser.ChromeOptions{
		ExecPath: cfg.Browser.ExecPath,
		Headless: cfg.Browser.Headless,
	}), m, log)
	orchestrator := services.NewOrchestrator(services.OrchestratorConfig{
		Page:              services.DefaultPageContract(cfg.Browser.CheckoutURL),
		Currency:          cfg.Stripe.Currency,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		FormTimeout:       cfg.Browser.FormTimeout,
		SubmitTimeout:     cfg.Browser.SubmitTimeout,
		SubmitAttempts:    cfg.Retry.SubmitAttempts,
		FillAttempts:      cfg.Retry.FillAttempts,
		BaseDelay:         cfg.Retry.BaseDelay,
	}, browser.NewPrefixFrameLocator(cfg.Browser.FrameTimeout), log, m)

	paymentService := services.NewPaymentService(sessions, orchestrator, stripeService, producer, log, m)
	log.LogProcess("SERVICE", "Payment service initialized")

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterDeps{
		Config:        cfg,
		Log:           log,
		Metrics:       m,
		Authenticator: auth.NewAuthenticator(cfg.Auth.APIKeys, cfg.Auth.RequireKeys, log),
		Limiter:       limiter,
		Payments:      handlers.NewPaymentHandler(paymentService, services.NewValidator(), log, cfg.Server.RequestTimeout),
		System:        handlers.NewSystemHandler(cfg.Log.Service, cfg.Server.Version, limiter, sessions, cfg.Stripe.EnableRealTransactions),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on port "+cfg.Server.Port)
		banner(cfg)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("SERVER", "Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("SHUTDOWN", "Server forced to shutdown", zap.Error(err))
	}

	stats := sessions.Stats()
	log.Info("SHUTDOWN", "Payment simulator shutdown completed",
		zap.Int64("sessionsAcquired", stats.Acquired),
		zap.Int64("sessionsReleased", stats.Released))
}

func banner(cfg *config.Config) {
	title := color.New(color.FgCyan, color.Bold)
	title.Println("Payment simulator is ready to accept requests")
	fmt.Println("  Health:   " + color.GreenString("http://localhost%s/health", cfg.Server.Port))
	fmt.Println("  Simulate: " + color.GreenString("http://localhost%s/api/simulate-payment", cfg.Server.Port))
	if cfg.Stripe.EnableRealTransactions {
		fmt.Println("  Real:     " + color.YellowString("real transactions ENABLED"))
	} else {
		fmt.Println("  Real:     " + color.WhiteString("real transactions disabled"))
	}
}
