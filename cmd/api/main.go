package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/maison-parfum/internal/auth"
	"github.com/noah-isme/maison-parfum/internal/cache"
	"github.com/noah-isme/maison-parfum/internal/cart"
	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/checkout"
	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/config"
	"github.com/noah-isme/maison-parfum/internal/db"
	"github.com/noah-isme/maison-parfum/internal/health"
	"github.com/noah-isme/maison-parfum/internal/obs"
	"github.com/noah-isme/maison-parfum/internal/promo"
	"github.com/noah-isme/maison-parfum/internal/ratelimit"
	"github.com/noah-isme/maison-parfum/internal/resilience"
	"github.com/noah-isme/maison-parfum/internal/security"
	"github.com/noah-isme/maison-parfum/internal/settings"
)

const serviceName = "maison-parfum-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	decimal.MarshalJSONWithoutQuotes = true

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Obs.TracingEnabled,
		ServiceName:   serviceName,
		Endpoint:      cfg.Obs.OTLPEndpoint,
		Exporter:      cfg.Obs.TracingExporter,
		SamplingRatio: cfg.Obs.SamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		cfg.Obs.TracingEnabled = false
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	if cfg.DBAutoMigrate {
		status, err := db.Migrate(cfg.DatabaseURL, db.Up)
		if err != nil {
			return err
		}
		logger.Info().Uint("version", status.Version).Bool("changed", status.Changed).Msg("migrations applied")
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := db.NewPool(startCtx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		ApplicationName: serviceName,
		MaxConns:        cfg.DBMaxConns,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := openRedis(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	srv, err := newServer(ctx, cfg, logger, pool, redisClient)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// openRedis connects when REDIS_URL is set. Without Redis the API keeps rate
// limit counters in memory and reads settings straight from Postgres.
func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; running without redis")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// newServer builds the handlers. ctx bounds background work such as the
// in-memory limiter sweeper.
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client) (*server, error) {
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:    cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
		ClockSkew: cfg.Auth.ClockSkew,
	})
	if err != nil {
		return nil, err
	}

	catalogStore := catalog.Store{DB: pool}
	promoStore := promo.PGStore{DB: pool}
	promoSvc := &promo.Service{
		Store:      promoStore,
		Exclusions: catalogStore,
		Currency:   cfg.CurrencyCode,
		Logger:     logger.With().Str("component", "promo").Logger(),
	}
	settingsStore := settings.PGStore{DB: pool}
	settingsSvc := &settings.Service{
		Store: settings.GuardedStore{
			Store:   settingsStore,
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{Target: "settings_db"}, logger),
		},
		Writer: settingsStore,
		Cache:  cache.New(rdb, "parfum", cfg.SettingsCacheTTL),
		Logger: logger.With().Str("component", "settings").Logger(),
	}

	var promoLimiter ratelimit.Limiter
	switch cfg.RateLimitBackend {
	case config.BackendRedis:
		promoLimiter = ratelimit.RedisFixedWindow{Client: rdb, Prefix: "parfum:rl:"}
	default:
		fw := ratelimit.NewFixedWindow()
		go fw.Run(ctx, cfg.RateLimitSweepInterval)
		promoLimiter = fw
	}
	limiterErrors := func(err error) {
		logger.Error().Err(err).Msg("rate limiter unavailable; allowing request")
	}

	var global *ratelimit.Global
	if cfg.GlobalRateLimitEnabled() {
		global, err = ratelimit.NewGlobal(cfg.APIRateLimit, rdb, limiterErrors)
		if err != nil {
			return nil, err
		}
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBucketsMS), nil)
	}

	return &server{
		logger:         logger,
		corsOrigins:    cfg.CORSAllowedOrigins,
		httpMetrics:    httpMetrics,
		tracingEnabled: cfg.Obs.TracingEnabled,
		global:         global,
		headers: security.Headers{
			Enable:     cfg.SecurityHeaders,
			EnableHSTS: cfg.HSTS,
			HSTSMaxAge: cfg.HSTSMaxAge,
		},
		promoLimit: ratelimit.Handler{
			Limiter: promoLimiter,
			Config:  ratelimit.Config{Window: cfg.PromoRateWindow, Max: cfg.PromoRateLimit, Scope: "promo_validate"},
			OnError: limiterErrors,
		},
		authMW: auth.Middleware{Verifier: verifier, AccessCookie: cfg.Auth.AccessCookie},
		idem:   common.Idem{R: rdb, TTL: cfg.IdempotencyTTL, Prefix: "parfum:idem:"},
		promo: &promo.Handler{
			Svc:    promoSvc,
			Admin:  promoStore,
			Logger: logger,
		},
		cart: &cart.Handler{
			Svc: &cart.Service{
				Catalog:  catalogStore,
				Promos:   promoSvc,
				Settings: settingsSvc,
				Currency: cfg.CurrencyCode,
			},
			Logger: logger,
		},
		checkout: &checkout.Handler{
			Svc: &checkout.Service{
				Tx:       checkout.PGTransactor{Pool: pool},
				Promos:   promoSvc,
				Settings: settingsSvc,
				Currency: cfg.CurrencyCode,
				Logger:   logger.With().Str("component", "checkout").Logger(),
			},
			Logger: logger,
		},
		settings: &settings.Handler{Svc: settingsSvc, Logger: logger},
		health: health.Handler{
			Checker:      health.Probes{DB: pool, Redis: rdb},
			DBTimeout:    cfg.Obs.HealthDBTimeout,
			RedisTimeout: cfg.Obs.HealthRedisTimeout,
		},
		metricsEnabled: cfg.Obs.MetricsEnabled,
	}, nil
}
