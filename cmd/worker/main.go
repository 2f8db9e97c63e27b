package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/smilequote/internal/config"
	"github.com/noah-isme/smilequote/internal/events"
	"github.com/noah-isme/smilequote/internal/notify"
	"github.com/noah-isme/smilequote/internal/obs"
)

// logMailer records outgoing patient emails in the worker log. It stands in
// for an SMTP or provider-backed sender.
type logMailer struct {
	logger zerolog.Logger
	from   string
}

func (m logMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info().Str("from", m.from).Str("to", to).Str("subject", subject).Int("body_bytes", len(body)).Msg("email_sent")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.ServiceName, cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics("smilequote", nil)
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the worker")
	}
	exporter := "none"
	if cfg.Obs.TracingEnabled {
		exporter = cfg.Obs.TraceExporter
	}
	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   cfg.Obs.ServiceName + "-worker",
		Endpoint:      cfg.Obs.OTLPEndpoint,
		Exporter:      exporter,
		SamplingRatio: cfg.Obs.TraceSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var webhook events.Notifier
	if cfg.ClinicWebhookURL != "" {
		webhook = notify.ClinicWebhook{
			URL:       cfg.ClinicWebhookURL,
			Secret:    cfg.ClinicWebhookSecret,
			Client:    notify.HTTPClient(cfg.OutboundTimeout),
			Replay:    notify.RedisReplayProtector{Client: redisClient},
			ReplayTTL: cfg.WebhookReplayTTL,
		}
	} else {
		logger.Warn().Msg("CLINIC_WEBHOOK_URL not set; clinic notifications are skipped")
	}

	worker := notify.Worker{
		Email: notify.EmailNotifier{
			Mail:      logMailer{logger: logger.With().Str("component", "mailer").Logger(), from: cfg.NotifyFrom},
			From:      cfg.NotifyFrom,
			Replay:    notify.RedisReplayProtector{Client: redisClient},
			ReplayTTL: cfg.WebhookReplayTTL,
		},
		Webhook: webhook,
		Logger:  logger,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{notify.QueueNotifications: 1},
		ShutdownTimeout: 10 * time.Second,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(1<<min(n, 8)) * time.Second
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task_type", task.Type()).Msg("task_failed")
		}),
	})

	mux := asynq.NewServeMux()
	worker.Register(mux)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
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
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
