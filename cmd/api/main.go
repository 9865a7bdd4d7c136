// Package main is the entrypoint for the APOD mailing list API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/apodmail/apodmail/internal/apod"
	"github.com/apodmail/apodmail/internal/cache"
	"github.com/apodmail/apodmail/internal/config"
	"github.com/apodmail/apodmail/internal/dispatch"
	"github.com/apodmail/apodmail/internal/email"
	"github.com/apodmail/apodmail/internal/handler"
	"github.com/apodmail/apodmail/internal/metrics"
	"github.com/apodmail/apodmail/internal/middleware"
	"github.com/apodmail/apodmail/internal/server"
	"github.com/apodmail/apodmail/internal/service"
	"github.com/apodmail/apodmail/internal/store"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	db, err := store.NewPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize services
	metricsRecorder := metrics.NewInMemory()
	subscriptionService := service.NewSubscriptionService(db, metricsRecorder)
	statsService := service.NewStatsService(db, cacheClient, metricsRecorder, logger)

	scraper := apod.NewScraper(cfg.APODBaseURL, logger)
	builder := email.NewBuilder(cfg.BaseURL, cfg.GAMeasurementID)
	publisher := dispatch.NewPublisher(cacheClient.Client(), logger, metricsRecorder)
	digestService := service.NewDigestService(subscriptionService, scraper, builder, publisher, metricsRecorder, logger)

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(db, cacheClient)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, logger)
	statsHandler := handler.NewStatsHandler(statsService, logger)
	digestHandler := handler.NewDigestHandler(digestService, logger)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	// Setup router
	r := setupRouter(h, healthHandler, subscriptionHandler, statsHandler, digestHandler, metricsHandler, cacheClient, cfg, logger)

	// Create server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Start the mail dispatch worker when a mailer is configured.
	if cfg.MailerURL != "" {
		worker := dispatch.NewWorker(
			cacheClient.Client(),
			cfg.MailerURL,
			logger,
			dispatch.NewConsumerID(),
			metricsRecorder,
		)
		workerCtx, workerCancel := context.WithCancel(ctx)
		go func() {
			if err := worker.Run(workerCtx); err != nil {
				logger.Error("mail worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("mail_worker", func(ctx context.Context) error {
			workerCancel()
			return worker.Shutdown(ctx)
		})
		logger.Info("mail dispatch worker started", "mailer_url", redactURL(cfg.MailerURL))
	} else {
		logger.Warn("MAILER_URL not set; email tasks will queue without delivery")
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	statsHandler *handler.StatsHandler,
	digestHandler *handler.DigestHandler,
	metricsHandler *handler.MetricsHandler,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Root info endpoint
	r.Get("/", h.Hello)

	// Metrics endpoint
	r.Get("/metrics", metricsHandler.Metrics)

	// Rate limit middleware configuration for the public surface
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Cache:   cacheClient,
		Enabled: cfg.RateLimitSignupEnabled,
		RPS:     cfg.RateLimitSignupRPS,
		Burst:   cfg.RateLimitSignupBurst,
	}

	// Public subscription endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))
		r.Post("/signup", subscriptionHandler.Signup)
		r.Get("/unsubscribe", subscriptionHandler.Unsubscribe)
	})

	r.Get("/usercount", subscriptionHandler.Count)
	r.Get("/stats", statsHandler.Get)

	// Operator endpoints: scheduler cron header or admin key
	adminCfg := middleware.AdminAuthConfig{
		Logger:          logger,
		KeyHash:         cfg.AdminKeyHash,
		TrustCronHeader: cfg.IsProduction(),
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(adminCfg))
		r.Post("/stats/generate", statsHandler.Generate)
		r.Get("/subscribers", subscriptionHandler.ListByRange)
		r.Get("/dailyemail/{year}/{startMonth}/{endMonth}", digestHandler.EnqueueDaily)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
