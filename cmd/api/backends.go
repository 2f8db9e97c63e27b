package main

import (
	"context"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/smilequote/internal/cache"
	"github.com/noah-isme/smilequote/internal/catalog"
	"github.com/noah-isme/smilequote/internal/config"
	"github.com/noah-isme/smilequote/internal/discount"
	"github.com/noah-isme/smilequote/internal/events"
	"github.com/noah-isme/smilequote/internal/health"
	"github.com/noah-isme/smilequote/internal/notify"
	"github.com/noah-isme/smilequote/internal/obs"
	"github.com/noah-isme/smilequote/internal/quote"
	"github.com/noah-isme/smilequote/internal/resilience"
)

// backends holds the storage and collaborator clients selected by config.
type backends struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Tasks *asynq.Client

	Catalog   catalog.Lookup
	Lister    catalog.Lister
	Discounts discount.Store
	Quotes    quote.Store
	Bus       *events.Bus

	// DiscountCache is set when rules from postgres or the promo service are
	// cached in redis.
	DiscountCache *discount.CachedStore
}

func mustInitBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *backends {
	b := &backends{}
	if cfg.UsesPostgres() {
		b.Pool = mustInitDatabase(ctx, cfg, logger)
	}
	if cfg.RedisURL != "" {
		b.Redis = mustInitRedis(ctx, cfg, logger)
	}

	var jsonCache *cache.JSON
	if b.Redis != nil {
		jsonCache = cache.NewJSON(b.Redis, cfg.CacheTTL)
	}

	switch cfg.CatalogSource {
	case config.BackendPostgres:
		store := &catalog.PostgresStore{DB: b.Pool}
		b.Catalog, b.Lister = store, store
	case config.BackendRemote:
		b.Catalog = &catalog.RemoteClient{HTTP: outboundClient(cfg, "catalog", logger), BaseURL: cfg.CatalogServiceURL}
	default:
		static := catalog.DefaultCatalog()
		b.Catalog, b.Lister = static, static
	}
	if jsonCache != nil && cfg.CatalogSource != config.BackendStatic {
		b.Catalog = &catalog.Cached{Next: b.Catalog, Cache: jsonCache, Logger: logger.With().Str("component", "catalog_cache").Logger()}
	}

	switch cfg.DiscountSource {
	case config.BackendPostgres:
		b.Discounts = &discount.PostgresStore{DB: b.Pool}
	case config.BackendRemote:
		b.Discounts = &discount.RemoteStore{HTTP: outboundClient(cfg, "promo-service", logger), BaseURL: cfg.PromoServiceURL}
	default:
		b.Discounts = discount.DefaultStore()
	}
	if b.Redis != nil && cfg.DiscountSource != config.BackendMemory {
		b.DiscountCache = &discount.CachedStore{
			Next:   b.Discounts,
			Cache:  cache.NewJSON(b.Redis, cfg.DiscountCacheTTL),
			Logger: logger.With().Str("component", "discount_cache").Logger(),
		}
		b.Discounts = b.DiscountCache
	}

	b.Bus = &events.Bus{}
	if cfg.StorageDriver == config.BackendPostgres {
		b.Quotes = &quote.PostgresStore{DB: b.Pool}
		b.Bus.Store = &events.PostgresStore{DB: b.Pool}
	} else {
		b.Quotes = quote.NewMemoryStore()
	}

	eventLogger := logger.With().Str("component", "events").Logger()
	b.Bus.Notifiers = append(b.Bus.Notifiers, events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		eventLogger.Info().Str("event_id", ev.ID).Str("topic", ev.Topic).Str("quote_id", ev.AggregateID).Msg("quote_event")
		return nil
	}))
	if b.Redis != nil {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url for task queue")
		}
		b.Tasks = asynq.NewClient(redisOpt)
		b.Bus.Notifiers = append(b.Bus.Notifiers, notify.Enqueuer{
			Client:    b.Tasks,
			Queue:     notify.QueueNotifications,
			MaxRetry:  8,
			Retention: 24 * time.Hour,
		})
	}
	return b
}

// Probes returns readiness checks for the configured dependencies only.
func (b *backends) Probes() map[string]health.Probe {
	probes := map[string]health.Probe{}
	if b.Pool != nil {
		probes["postgres"] = b.Pool.Ping
	}
	if b.Redis != nil {
		rdb := b.Redis
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return probes
}

func (b *backends) Close(logger zerolog.Logger) {
	if b.Tasks != nil {
		if err := b.Tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
}

func outboundClient(cfg *config.Config, target string, logger zerolog.Logger) resilience.HTTPClient {
	return resilience.HTTPClient{
		Client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker: resilience.NewBreaker(cfg.BreakerMinReqs, cfg.BreakerRatio, cfg.BreakerOpenFor).
			WithTarget(target).
			WithLogger(logger),
		Target:      target,
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      0.2,
		Timeout:     cfg.OutboundTimeout,
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.Obs.ServiceName

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
