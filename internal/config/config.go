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

// Backend names accepted by STORAGE_DRIVER, CATALOG_SOURCE and DISCOUNT_SOURCE.
const (
	BackendMemory   = "memory"
	BackendStatic   = "static"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	StorageDriver     string
	DatabaseURL       string
	RedisURL          string
	CatalogSource     string
	CatalogServiceURL string
	DiscountSource    string
	PromoServiceURL   string
	CacheTTL          time.Duration
	DiscountCacheTTL  time.Duration
	QuoteSubmittedTTL time.Duration
	CurrencyCode      string
	LockTTL           time.Duration

	AuthJWTSecret string
	AuthIssuer    string
	AuthAudience  string

	GlobalRateLimit      string
	PromoRateLimitMax    int
	PromoRateLimitWindow time.Duration
	IdempotencyTTL       time.Duration
	BodyLimitBytes       int64
	CORSAllowedOrigins   []string

	OutboundTimeout  time.Duration
	RetryMaxAttempts int
	RetryBase        time.Duration
	BreakerMinReqs   int
	BreakerRatio     float64
	BreakerOpenFor   time.Duration

	WorkerConcurrency   int
	NotifyFrom          string
	ClinicWebhookURL    string
	ClinicWebhookSecret string
	WebhookReplayTTL    time.Duration

	Obs Observability
}

// Observability groups logging, metrics and tracing settings.
type Observability struct {
	ServiceName      string
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	HTTPBucketsMS    string
	TracingEnabled   bool
	TraceExporter    string
	OTLPEndpoint     string
	TraceSampleRatio float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:            valueOrDefault(k.String("APP_ENV"), "development"),
		Port:              valueOrDefault(k.String("PORT"), "8080"),
		StorageDriver:     strings.ToLower(valueOrDefault(k.String("STORAGE_DRIVER"), BackendMemory)),
		DatabaseURL:       k.String("DATABASE_URL"),
		RedisURL:          k.String("REDIS_URL"),
		CatalogSource:     strings.ToLower(valueOrDefault(k.String("CATALOG_SOURCE"), BackendStatic)),
		CatalogServiceURL: strings.TrimRight(k.String("CATALOG_SERVICE_URL"), "/"),
		DiscountSource:    strings.ToLower(valueOrDefault(k.String("DISCOUNT_SOURCE"), BackendMemory)),
		PromoServiceURL:   strings.TrimRight(k.String("PROMO_SERVICE_URL"), "/"),
		CacheTTL:          parseDuration(k.String("CACHE_TTL"), "5m"),
		DiscountCacheTTL:  parseDuration(k.String("DISCOUNT_CACHE_TTL"), "1m"),
		QuoteSubmittedTTL: parseDuration(k.String("QUOTE_SUBMITTED_TTL"), "720h"),
		CurrencyCode:      strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),
		LockTTL:           parseDuration(k.String("LOCK_TTL"), "10s"),

		AuthJWTSecret: k.String("AUTH_JWT_SECRET"),
		AuthIssuer:    k.String("AUTH_ISSUER"),
		AuthAudience:  k.String("AUTH_AUDIENCE"),

		GlobalRateLimit:      valueOrDefault(k.String("GLOBAL_RATE_LIMIT"), "600-M"),
		PromoRateLimitMax:    parseInt(k.String("PROMO_RATE_LIMIT_MAX"), 20),
		PromoRateLimitWindow: parseDuration(k.String("PROMO_RATE_LIMIT_WINDOW"), "1m"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes:       int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),
		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		OutboundTimeout:  parseDuration(k.String("OUTBOUND_TIMEOUT"), "3s"),
		RetryMaxAttempts: parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:        parseDuration(k.String("RETRY_BASE"), "100ms"),
		BreakerMinReqs:   parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerRatio:     parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:   parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),
		NotifyFrom:        valueOrDefault(k.String("NOTIFY_FROM"), "quotes@smilequote.local"),

		ClinicWebhookURL:    strings.TrimSpace(k.String("CLINIC_WEBHOOK_URL")),
		ClinicWebhookSecret: k.String("CLINIC_WEBHOOK_SECRET"),
		WebhookReplayTTL:    parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		Obs: Observability{
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "smilequote-api"),
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
			HTTPBucketsMS:    k.String("OBS_HTTP_BUCKETS_MS"),
			TracingEnabled:   parseBoolDefault(k.String("OBS_TRACING_ENABLED"), false),
			TraceExporter:    valueOrDefault(k.String("OBS_TRACE_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			TraceSampleRatio: parseFloat(k.String("OBS_TRACE_SAMPLE_RATIO"), 1),
			PprofEnabled:     parseBoolDefault(k.String("OBS_PPROF_ENABLED"), false),
			PprofUser:        k.String("OBS_PPROF_BASIC_AUTH_USER"),
			PprofPass:        k.String("OBS_PPROF_BASIC_AUTH_PASS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !oneOf(c.StorageDriver, BackendMemory, BackendPostgres) {
		return fmt.Errorf("STORAGE_DRIVER must be memory or postgres, got %q", c.StorageDriver)
	}
	if !oneOf(c.CatalogSource, BackendStatic, BackendPostgres, BackendRemote) {
		return fmt.Errorf("CATALOG_SOURCE must be static, postgres or remote, got %q", c.CatalogSource)
	}
	if !oneOf(c.DiscountSource, BackendMemory, BackendPostgres, BackendRemote) {
		return fmt.Errorf("DISCOUNT_SOURCE must be memory, postgres or remote, got %q", c.DiscountSource)
	}
	if c.UsesPostgres() && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for postgres backends")
	}
	if c.CatalogSource == BackendRemote && c.CatalogServiceURL == "" {
		return errors.New("CATALOG_SERVICE_URL is required when CATALOG_SOURCE=remote")
	}
	if c.DiscountSource == BackendRemote && c.PromoServiceURL == "" {
		return errors.New("PROMO_SERVICE_URL is required when DISCOUNT_SOURCE=remote")
	}
	if c.ClinicWebhookURL != "" && c.ClinicWebhookSecret == "" {
		return errors.New("CLINIC_WEBHOOK_SECRET is required when CLINIC_WEBHOOK_URL is set")
	}
	if c.AppEnv == "production" && c.AuthJWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required in production")
	}
	return nil
}

// UsesPostgres reports whether any backend needs DATABASE_URL.
func (c *Config) UsesPostgres() bool {
	return c.StorageDriver == BackendPostgres || c.CatalogSource == BackendPostgres || c.DiscountSource == BackendPostgres
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

func oneOf(value string, options ...string) bool {
	for _, o := range options {
		if value == o {
			return true
		}
	}
	return false
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
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
