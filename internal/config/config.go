package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessTokenTTL     time.Duration
	WebhookSecret      string
	CORSAllowedOrigins []string
	Currency           string
	MetricsNamespace   string
	OTLPEndpoint       string

	CatalogCacheTTL  time.Duration
	ShippingCacheTTL time.Duration
	IdempotencyTTL   time.Duration
	WorkerLockTTL    time.Duration

	CouponPurgeInterval time.Duration
	OrderPaymentWindow  time.Duration

	PreviewRateLimit  int
	PreviewRateWindow time.Duration
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
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "bazar"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "bazar-api"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		WebhookSecret:      k.String("PAYMENT_WEBHOOK_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Currency:           valueOrDefault(k.String("CURRENCY"), "IDR"),
		MetricsNamespace:   valueOrDefault(k.String("METRICS_NAMESPACE"), "bazar"),
		OTLPEndpoint:       strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),

		CatalogCacheTTL:  parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		ShippingCacheTTL: parseDuration(k.String("SHIPPING_CACHE_TTL"), "5m"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		WorkerLockTTL:    parseDuration(k.String("WORKER_LOCK_TTL"), "1m"),

		CouponPurgeInterval: parseDuration(k.String("COUPON_PURGE_INTERVAL"), "1h"),
		OrderPaymentWindow:  parseDuration(k.String("ORDER_PAYMENT_WINDOW"), "24h"),

		PreviewRateLimit:  parseInt(k.String("PREVIEW_RATE_LIMIT"), 30),
		PreviewRateWindow: parseDuration(k.String("PREVIEW_RATE_WINDOW"), "1m"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("PAYMENT_WEBHOOK_SECRET is required")
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
		return value
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
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(trimmed, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
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
