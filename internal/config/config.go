package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingAPIKeys       = errors.New("API_KEYS must be set when REQUIRE_API_KEYS is enabled")
	ErrMissingStripeKey     = errors.New("STRIPE_SECRET_KEY must be set when ENABLE_REAL_TRANSACTIONS is enabled")
	ErrInvalidRateLimit     = errors.New("rate limit window and max must be positive")
	ErrInvalidRetryAttempts = errors.New("retry attempts must be at least 1")
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Stripe    StripeConfig
	Browser   BrowserConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Kafka     KafkaConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            string
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	// StaticDir holds the checkout page the browser navigates to.
	StaticDir string
}

// AuthConfig holds the API key allow-list. It is read once at startup and
// never mutated afterwards.
type AuthConfig struct {
	APIKeys     []string
	RequireKeys bool
}

type StripeConfig struct {
	SecretKey              string
	Currency               string
	EnableRealTransactions bool
}

type BrowserConfig struct {
	CheckoutURL       string
	ExecPath          string
	Headless          bool
	NavigationTimeout time.Duration
	FormTimeout       time.Duration
	FrameTimeout      time.Duration
	SubmitTimeout     time.Duration
}

type RateLimitConfig struct {
	Window      time.Duration
	Max         int
	RedisAddr   string
	GlobalRPS   float64
	GlobalBurst int
}

type RetryConfig struct {
	SubmitAttempts int
	FillAttempts   int
	BaseDelay      time.Duration
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	AuditTopic  string
	EventsTopic string
}

type LogConfig struct {
	Level   string
	Format  string
	Service string
}

// Load reads configuration from the environment. Callers are expected to
// have loaded any .env file beforehand.
func Load() *Config {
	port := getEnvOrDefault("PORT", "3000")

	return &Config{
		Server: ServerConfig{
			Port:            ":" + strings.TrimPrefix(port, ":"),
			Version:         getEnvOrDefault("APP_VERSION", "1.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getDurationOrDefault("REQUEST_TIMEOUT", 90*time.Second),
			StaticDir:       getEnvOrDefault("STATIC_DIR", "public"),
		},
		Auth: AuthConfig{
			APIKeys:     getListOrDefault("API_KEYS", nil),
			RequireKeys: getBoolOrDefault("REQUIRE_API_KEYS", true),
		},
		Stripe: StripeConfig{
			SecretKey:              os.Getenv("STRIPE_SECRET_KEY"),
			Currency:               strings.ToLower(getEnvOrDefault("STRIPE_CURRENCY", "usd")),
			EnableRealTransactions: getBoolOrDefault("ENABLE_REAL_TRANSACTIONS", false),
		},
		Browser: BrowserConfig{
			CheckoutURL:       getEnvOrDefault("CHECKOUT_URL", "http://localhost"+":"+strings.TrimPrefix(port, ":")+"/payment-test.html"),
			ExecPath:          os.Getenv("CHROME_EXEC_PATH"),
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			NavigationTimeout: getDurationOrDefault("BROWSER_NAVIGATION_TIMEOUT", 30*time.Second),
			FormTimeout:       getDurationOrDefault("BROWSER_FORM_TIMEOUT", 10*time.Second),
			FrameTimeout:      getDurationOrDefault("BROWSER_FRAME_TIMEOUT", 15*time.Second),
			SubmitTimeout:     getDurationOrDefault("BROWSER_SUBMIT_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Window:      getDurationOrDefault("RATE_LIMIT_WINDOW", 15*time.Minute),
			Max:         getIntOrDefault("RATE_LIMIT_MAX", 100),
			RedisAddr:   os.Getenv("RATE_LIMIT_REDIS_ADDR"),
			GlobalRPS:   getFloatOrDefault("GLOBAL_RATE_RPS", 100),
			GlobalBurst: getIntOrDefault("GLOBAL_RATE_BURST", 100),
		},
		Retry: RetryConfig{
			SubmitAttempts: getIntOrDefault("RETRY_SUBMIT_ATTEMPTS", 3),
			FillAttempts:   getIntOrDefault("RETRY_FILL_ATTEMPTS", 2),
			BaseDelay:      getDurationOrDefault("RETRY_BASE_DELAY", time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:     getBoolOrDefault("KAFKA_ENABLED", false),
			Brokers:     getListOrDefault("KAFKA_BROKERS", []string{"localhost:29092"}),
			AuditTopic:  getEnvOrDefault("KAFKA_AUDIT_TOPIC", "payment-simulator-audit"),
			EventsTopic: getEnvOrDefault("KAFKA_EVENTS_TOPIC", "payment-simulator-events"),
		},
		Log: LogConfig{
			Level:   getEnvOrDefault("LOG_LEVEL", "info"),
			Format:  getEnvOrDefault("LOG_FORMAT", "json"),
			Service: getEnvOrDefault("SERVICE_NAME", "payment-simulator"),
		},
	}
}

// Validate reports configuration that must stop the process at startup.
func (c *Config) Validate() error {
	if c.Auth.RequireKeys && len(c.Auth.APIKeys) == 0 {
		return ErrMissingAPIKeys
	}
	if c.Stripe.EnableRealTransactions && c.Stripe.SecretKey == "" {
		return ErrMissingStripeKey
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		return ErrInvalidRateLimit
	}
	if c.Retry.SubmitAttempts < 1 || c.Retry.FillAttempts < 1 {
		return fmt.Errorf("%w: submit=%d fill=%d", ErrInvalidRetryAttempts, c.Retry.SubmitAttempts, c.Retry.FillAttempts)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnvOrDefault(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getListOrDefault(key string, defaultValue []string) []string {
	raw := getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
