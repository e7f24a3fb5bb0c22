package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	// TrustProxyHeaders honours X-Forwarded-For/X-Real-IP; enable only
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool

	MarketplaceAPIURL      string
	MarketplaceTimeout     time.Duration
	MarketplaceMaxAttempts int
	MarketplaceBackoff     time.Duration
	MarketplaceCSRFHeader  string

	SessionTTL         time.Duration
	AdminFee           decimal.Decimal
	PaymentMethod      string
	PaymentURLTemplate string

	IdempotencyTTL     time.Duration
	RateLimitPerMinute int

	EventsQueueEnabled   bool
	EventsQueue          string
	EventsMaxRetry       int
	EventsConcurrency    int
	EventsWebhookURL     string
	EventsWebhookSecret  string
	EventsWebhookTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TrustProxyHeaders:  parseBool(k.String("TRUST_PROXY_HEADERS"), false),

		MarketplaceAPIURL:      strings.TrimRight(strings.TrimSpace(k.String("MARKETPLACE_API_URL")), "/"),
		MarketplaceTimeout:     parseDuration(k.String("MARKETPLACE_TIMEOUT"), "10s"),
		MarketplaceMaxAttempts: parseInt(k.String("MARKETPLACE_MAX_ATTEMPTS"), 3),
		MarketplaceBackoff:     parseDuration(k.String("MARKETPLACE_BACKOFF"), "200ms"),
		MarketplaceCSRFHeader:  valueOrDefault(k.String("MARKETPLACE_CSRF_HEADER"), "X-XSRF-TOKEN"),

		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "30m"),
		AdminFee:           parseDecimal(k.String("CHECKOUT_ADMIN_FEE"), "1000"),
		PaymentMethod:      valueOrDefault(k.String("CHECKOUT_PAYMENT_METHOD"), "midtrans"),
		PaymentURLTemplate: valueOrDefault(k.String("CHECKOUT_PAYMENT_URL_TEMPLATE"), "/pembayaran/{code}"),

		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		RateLimitPerMinute: parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120),

		EventsQueueEnabled:   parseBool(k.String("EVENTS_QUEUE_ENABLE"), false),
		EventsQueue:          valueOrDefault(k.String("EVENTS_QUEUE"), "checkout_events"),
		EventsMaxRetry:       parseInt(k.String("EVENTS_MAX_RETRY"), 8),
		EventsConcurrency:    parseInt(k.String("EVENTS_CONCURRENCY"), 5),
		EventsWebhookURL:     strings.TrimSpace(k.String("EVENTS_WEBHOOK_URL")),
		EventsWebhookSecret:  strings.TrimSpace(k.String("EVENTS_WEBHOOK_SECRET")),
		EventsWebhookTimeout: parseDuration(k.String("EVENTS_WEBHOOK_TIMEOUT"), "5s"),
	}

	if cfg.MarketplaceAPIURL == "" {
		return nil, errors.New("MARKETPLACE_API_URL is required")
	}
	if cfg.MarketplaceMaxAttempts <= 0 {
		cfg.MarketplaceMaxAttempts = 1
	}
	if cfg.AdminFee.IsNegative() {
		return nil, errors.New("CHECKOUT_ADMIN_FEE must not be negative")
	}
	if cfg.EventsQueueEnabled && cfg.RedisURL == "" {
		return nil, errors.New("EVENTS_QUEUE_ENABLE requires REDIS_URL")
	}
	if !strings.Contains(cfg.PaymentURLTemplate, "{code}") {
		return nil, errors.New("CHECKOUT_PAYMENT_URL_TEMPLATE must contain {code}")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// PaymentURL renders the payment page location for a billing code.
func (c *Config) PaymentURL(code string) string {
	return strings.ReplaceAll(c.PaymentURLTemplate, "{code}", code)
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	}
	return fallback
}

func parseDecimal(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
