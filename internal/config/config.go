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
)

// Rate limit counter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBMaxConns         int32
	DBAutoMigrate      bool
	RedisURL           string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
	SecurityHeaders    bool
	HSTS               bool
	HSTSMaxAge         int

	CurrencyCode     string
	SettingsCacheTTL time.Duration
	IdempotencyTTL   time.Duration

	PromoRateLimit         int
	PromoRateWindow        time.Duration
	RateLimitBackend       string
	RateLimitSweepInterval time.Duration
	// APIRateLimit is a formatted rate such as "300-M"; "off" disables the
	// global throttle.
	APIRateLimit string

	Auth AuthConfig
	Obs  ObsConfig
}

// AuthConfig configures access-token verification.
type AuthConfig struct {
	JWTSecret    string
	Issuer       string
	Audience     string
	ClockSkew    time.Duration
	AccessCookie string
}

// ObsConfig configures logging, metrics and tracing.
type ObsConfig struct {
	LogFormat          string
	LogLevel           string
	MetricsEnabled     bool
	MetricsNamespace   string
	MetricsBucketsMS   string
	TracingEnabled     bool
	TracingExporter    string
	OTLPEndpoint       string
	SamplingRatio      float64
	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
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
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		DBMaxConns:         int32(parseInt(k.String("DB_MAX_CONNS"), 10)),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		SecurityHeaders:    parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTS:               parseBool(k.String("SECURITY_HSTS_ENABLED")),
		HSTSMaxAge:         parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 31536000),

		CurrencyCode:     strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "EUR")),
		SettingsCacheTTL: parseDuration(k.String("SETTINGS_CACHE_TTL"), "5m"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		PromoRateLimit:         parseInt(k.String("PROMO_RATE_LIMIT"), 10),
		PromoRateWindow:        parseDuration(k.String("PROMO_RATE_WINDOW"), "60s"),
		RateLimitBackend:       strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), BackendMemory)),
		RateLimitSweepInterval: parseDuration(k.String("RATE_LIMIT_SWEEP_INTERVAL"), "1m"),
		APIRateLimit:           valueOrDefault(k.String("API_RATE_LIMIT"), "300-M"),

		Auth: AuthConfig{
			JWTSecret:    k.String("AUTH_JWT_SECRET"),
			Issuer:       strings.TrimSpace(k.String("AUTH_JWT_ISSUER")),
			Audience:     valueOrDefault(k.String("AUTH_JWT_AUDIENCE"), "authenticated"),
			ClockSkew:    parseDuration(k.String("AUTH_CLOCK_SKEW"), "30s"),
			AccessCookie: strings.TrimSpace(k.String("AUTH_ACCESS_COOKIE")),
		},
		Obs: ObsConfig{
			LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "parfum"),
			MetricsBucketsMS:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:     parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:    valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:      parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			HealthDBTimeout:    time.Duration(parseInt(k.String("HEALTH_READY_DB_TIMEOUT_MS"), 500)) * time.Millisecond,
			HealthRedisTimeout: time.Duration(parseInt(k.String("HEALTH_READY_REDIS_TIMEOUT_MS"), 300)) * time.Millisecond,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	switch c.RateLimitBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.RateLimitBackend)
	}
	if c.PromoRateLimit < 1 {
		return errors.New("PROMO_RATE_LIMIT must be at least 1")
	}
	if c.PromoRateWindow <= 0 {
		return errors.New("PROMO_RATE_WINDOW must be positive")
	}
	if len(c.CurrencyCode) != 3 {
		return fmt.Errorf("CURRENCY_CODE must be a three-letter code, got %q", c.CurrencyCode)
	}
	return nil
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

// GlobalRateLimitEnabled reports whether the API-wide throttle is on.
func (c *Config) GlobalRateLimitEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.APIRateLimit)) {
	case "", "off", "0", "false":
		return false
	default:
		return true
	}
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
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
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
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return n
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	return fallback
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
