package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/clock"
	"github.com/beaconmeet/relay-server-go/internal/config"
	"github.com/beaconmeet/relay-server-go/internal/database"
	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
	"github.com/beaconmeet/relay-server-go/internal/handler"
	"github.com/beaconmeet/relay-server-go/internal/httputil"
	"github.com/beaconmeet/relay-server-go/internal/jobs"
	"github.com/beaconmeet/relay-server-go/internal/metrics"
	"github.com/beaconmeet/relay-server-go/internal/middleware"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/realtime"
	"github.com/beaconmeet/relay-server-go/internal/redis"
	"github.com/beaconmeet/relay-server-go/internal/repository"
	"github.com/beaconmeet/relay-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL, config.ConnectMaxElapsed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	healthChecks := map[string]handler.Pinger{
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}

	// The api_keys table is optional; without it only the static keys work.
	var apiKeyRepo repository.APIKeyRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL, config.ConnectMaxElapsed)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Migrate(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		cancel()
		log.Info().Msg("database connected")

		apiKeyRepo = repository.NewAPIKeyRepository(db.DB)
		healthChecks["database"] = db
	}

	clk := &clock.DefaultClock{}
	sessionStore := repository.NewSessionStore(redisClient.Client)

	analyticsService := service.NewAnalyticsService(redisClient.Client, clk)
	sessionService := service.NewSessionService(sessionStore, analyticsService, clk, service.SessionConfig{
		TTL:    cfg.SessionTTL(),
		MetTTL: cfg.MetTTL(),
	})
	authService := service.NewAuthService(service.AuthConfig{
		AdminAPIKey:  cfg.AdminAPIKey,
		TesterAPIKey: cfg.TesterAPIKey,
	}, apiKeyRepo, clk)
	rateLimiter := service.NewRateLimiter(redisClient.Client, clk)

	authMiddleware := middleware.NewAuthMiddleware(authService).
		WithFailureLimiter(middleware.NewAuthFailureLimiter(clk))
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(rateLimiter)
	sessionIPLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.IPRateLimitPerMin, config.IPRateLimitWindow, "sessions",
	)
	wsIPLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.IPRateLimitPerMin, config.IPRateLimitWindow, "ws",
	)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSOrigin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	registry := realtime.NewRegistry()
	realtimeHandler := handler.NewRealtimeHandler(sessionService, authService, registry, handler.RealtimeConfig{
		Conn: realtime.ConnOptions{
			WriteWait:      config.WSWriteWait,
			PongWait:       config.WSPongWait,
			PingInterval:   config.WSPingInterval,
			MaxMessageSize: config.WSMaxMessageSize,
		},
		MetCloseDelay: cfg.MetCloseDelay(),
		CheckOrigin:   corsMiddleware.AllowOrigin,
	})
	sessionHandler := handler.NewSessionHandler(sessionService, realtimeHandler, cfg.ShareURL)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	healthHandler := handler.NewHealthHandler(healthChecks)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware.Handler)

	// Long-lived connections stay outside the request timeout.
	r.With(wsIPLimit.Handler).Get("/ws", realtimeHandler.ServeHTTP)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(securityHeadersMiddleware.Handler)

		r.Get("/v1/health", healthHandler.ServeHTTP)

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Use(sessionIPLimit.Handler)
			r.Mount("/", sessionHandler.Routes(authMiddleware.Handler, rateLimitMiddleware.Handler))
		})

		r.Route("/v1/analytics", func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Use(middleware.RequireClass(model.KeyClassAdmin))
			r.Use(rateLimitMiddleware.Handler)
			r.Mount("/", analyticsHandler.Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, apperrors.NotFound("Route"))
	})

	retentionJob := jobs.NewRetentionJob(
		analyticsService, apiKeyRepo, config.AnalyticsRetention, config.RetentionJobInterval,
	)
	retentionJob.Start()
	defer retentionJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	closed := registry.Shutdown(websocket.CloseGoingAway, "Server shutting down")
	log.Info().Int("connections", closed).Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
