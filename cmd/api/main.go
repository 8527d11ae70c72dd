package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/eventtix/tix-mercadopago/internal/common"
	"github.com/eventtix/tix-mercadopago/internal/config"
	"github.com/eventtix/tix-mercadopago/internal/gateway"
	"github.com/eventtix/tix-mercadopago/internal/mercadopago"
	"github.com/eventtix/tix-mercadopago/internal/obs"
	"github.com/eventtix/tix-mercadopago/internal/store"
	"github.com/eventtix/tix-mercadopago/internal/tix"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "tixmp")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "tix-mercadopago",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "tix-mercadopago"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	currencies := tix.NewRegistry()
	gateway.ContributeCurrencies(currencies)
	if _, ok := currencies.Lookup(cfg.Currency); !ok {
		logger.Warn().Str("currency", cfg.Currency).Msg("configured currency is not settleable by this gateway")
	}

	platformStore := store.New(pool)
	mpClient := mercadopago.NewClient(mercadopago.Config{
		ClientID:     cfg.MPClientID,
		ClientSecret: cfg.MPClientSecret,
		Sandbox:      cfg.MPSandbox,
		LogEnabled:   cfg.MPLogEnabled,
		Timeout:      cfg.MPTimeout,
		InsecureTLS:  cfg.MPInsecureTLS,
	}, logger)

	addon := &gateway.Addon{
		Settings: gateway.Settings{
			ClientID:     cfg.MPClientID,
			ClientSecret: cfg.MPClientSecret,
			Sandbox:      cfg.MPSandbox,
			LogEnabled:   cfg.MPLogEnabled,
		},
		MP:         mpClient,
		Orders:     platformStore,
		Attendees:  platformStore,
		Results:    platformStore,
		Replay:     gateway.RedisReplay{R: redisClient},
		ReplayTTL:  cfg.ReplayTTL,
		Logger:     logger,
		TicketsURL: cfg.TicketsURL,
		EventName:  cfg.EventName,
		Currency:   cfg.Currency,
	}
	gatewayHandler := &gateway.Handler{Addon: addon}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePattern)
	if tracingEnabled {
		r.Use(obs.Tracing)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Gateway redirects buyers (and posts IPNs) back to the tickets page.
	r.Get("/tickets", gatewayHandler.TicketsPage)
	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/checkout/{token}", gatewayHandler.Checkout)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Bool("sandbox", cfg.MPSandbox).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envFloat(key string, fallback float64) float64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return fallback
	}
	return parsed
}
