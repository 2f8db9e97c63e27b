package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/smilequote/internal/auth"
	"github.com/noah-isme/smilequote/internal/catalog"
	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/config"
	"github.com/noah-isme/smilequote/internal/discount"
	"github.com/noah-isme/smilequote/internal/health"
	"github.com/noah-isme/smilequote/internal/lock"
	"github.com/noah-isme/smilequote/internal/obs"
	"github.com/noah-isme/smilequote/internal/quote"
	"github.com/noah-isme/smilequote/internal/ratelimit"
	"github.com/noah-isme/smilequote/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.ServiceName, cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics("smilequote", nil)

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   cfg.Obs.ServiceName,
		Endpoint:      cfg.Obs.OTLPEndpoint,
		Exporter:      tracingExporter(cfg),
		SamplingRatio: cfg.Obs.TraceSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := mustInitBackends(ctx, cfg, logger)
	defer deps.Close(logger)

	svc := &quote.Service{
		Store:        deps.Quotes,
		Catalog:      deps.Catalog,
		Resolver:     &discount.Resolver{Store: deps.Discounts},
		Events:       deps.Bus,
		SubmittedTTL: cfg.QuoteSubmittedTTL,
		LockTTL:      cfg.LockTTL,
		Logger:       logger.With().Str("component", "quote").Logger(),
	}
	if deps.Redis != nil {
		svc.Locker = lock.Locker{R: deps.Redis, RetryBackoff: 25 * time.Millisecond, Wait: cfg.LockTTL}
	}

	quoteHandler := &quote.Handler{Svc: svc}
	promoHandler := &discount.Handler{Resolver: svc.Resolver}
	if deps.DiscountCache != nil {
		promoHandler.Cache = deps.DiscountCache
	}
	catalogHandler := &catalog.Handler{Lister: deps.Lister, Lookup: deps.Catalog}

	var verifier *auth.Verifier
	if cfg.AuthJWTSecret != "" {
		verifier, err = auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer, cfg.AuthAudience)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise token verifier")
		}
	} else {
		logger.Warn().Msg("AUTH_JWT_SECRET not set; admin routes are disabled")
	}
	authMiddleware := auth.Middleware{Verifier: verifier}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	limiterStore, err := ratelimit.NewLimiterStore(deps.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	globalLimit, err := ratelimit.Global(cfg.GlobalRateLimit, limiterStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse GLOBAL_RATE_LIMIT")
	}
	promoLimit := func(next http.Handler) http.Handler { return next }
	if deps.Redis != nil {
		promoLimit = ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "smilequote:rl"},
			Config: ratelimit.Config{
				Key:    ratelimit.PromoKey,
				Window: cfg.PromoRateLimitWindow,
				Max:    cfg.PromoRateLimitMax,
			},
		}.Middleware
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.TracingMiddleware)
	if cfg.Obs.MetricsEnabled {
		httpMetrics := obs.NewHTTPMetrics("smilequote", obs.ParseBucketsCSV(cfg.Obs.HTTPBucketsMS), nil)
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	healthHandler := health.Handler{Probes: deps.Probes(), Timeout: 500 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(globalLimit)

		api.Route("/catalog", func(c chi.Router) {
			c.Get("/treatments", catalogHandler.Treatments)
			c.Get("/packages", catalogHandler.Packages)
			c.Get("/addons", catalogHandler.AddOns)
			c.Get("/{kind}/{id}", catalogHandler.Item)
		})

		api.With(promoLimit).Get("/promo-codes/validate", promoHandler.Validate)

		api.Route("/quote", func(q chi.Router) {
			q.Get("/{id}", quoteHandler.Get)
			q.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", quoteHandler.Create)
				g.Post("/add-treatment", quoteHandler.AddTreatment)
				g.Post("/remove-treatment", quoteHandler.RemoveTreatment)
				g.Post("/update-quantity", quoteHandler.UpdateQuantity)
				g.With(promoLimit).Post("/apply-promo", quoteHandler.ApplyPromo)
				g.With(promoLimit).Post("/apply-offer", quoteHandler.ApplyOffer)
				g.Post("/remove-promo", quoteHandler.RemovePromo)
				g.Post("/submit", quoteHandler.Submit)
				g.Post("/cancel", quoteHandler.Cancel)
			})
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireRole(auth.RoleAdmin, auth.RoleClinic))
			admin.With(idem.Middleware).Post("/quotes/{id}/assign", quoteHandler.Assign)
			admin.With(authMiddleware.RequireRole(auth.RoleAdmin)).Delete("/promo-codes/{code}/cache", promoHandler.Invalidate)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).
			Str("storage", cfg.StorageDriver).
			Str("catalog", cfg.CatalogSource).
			Str("discounts", cfg.DiscountSource).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func tracingExporter(cfg *config.Config) string {
	if !cfg.Obs.TracingEnabled {
		return "none"
	}
	return cfg.Obs.TraceExporter
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
