// Command beacon-collector is a development collector for the beacon SDK.
// It stores every delivered request and serves behavior settings and
// journey content back to SDKs.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/penshort/beacon/internal/collector"
	"github.com/penshort/beacon/internal/config"
	"github.com/penshort/beacon/internal/handler"
	"github.com/penshort/beacon/internal/metrics"
	"github.com/penshort/beacon/internal/middleware"
	"github.com/penshort/beacon/internal/server"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadCollector()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := collector.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open repository",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}

	settings, err := collector.LoadSettings(cfg.SettingsFile)
	if err != nil {
		logger.Error("failed to load settings", "error", err, "path", cfg.SettingsFile)
		repo.Close()
		os.Exit(1)
	}

	recorder := metrics.NewInMemory()
	r := setupRouter(routerDeps{
		repo:     repo,
		settings: settings,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	})

	srv := server.New(r, server.Config{
		Addr:            ":" + strconv.Itoa(cfg.AppPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.OnShutdown("repository", func(context.Context) error {
		repo.Close()
		return nil
	})

	logger.Info("starting collector",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"postgres", cfg.DatabaseURL != "",
		"checksum", cfg.Salt != "",
		"content_blocks", len(settings.Content),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

type routerDeps struct {
	repo     collector.Repository
	settings collector.Settings
	recorder *metrics.InMemoryRecorder
	cfg      *config.Collector
	logger   *slog.Logger
}

func setupRouter(d routerDeps) *chi.Mux {
	h := handler.New()
	health := handler.NewHealthHandler(map[string]handler.HealthChecker{"repository": d.repo})
	ingest := handler.NewIngestHandler(d.repo, d.cfg.Salt, d.recorder, d.logger)
	sdk := handler.NewSDKHandler(d.settings.Behavior, collector.NewContentQueue(d.settings.Content...), d.cfg.Salt, d.logger)
	requests := handler.NewRequestsHandler(d.repo, d.logger)
	metricsHandler := handler.NewMetricsHandler(d.recorder)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger, d.cfg.IsDevelopment()))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: d.cfg.AllowedOrigins(),
		MaxAge:         24 * time.Hour,
	}))

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)
	r.Get("/requests", requests.List)
	r.Post("/content", sdk.PushContent)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))

		r.Get("/i", ingest.Ingest)
		r.Post("/i", ingest.Ingest)
		r.Get("/o/sdk", sdk.Settings)
		r.Get("/o/sdk/content", sdk.Content)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)
	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

// redactURL drops the password from a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	if parsed.User != nil {
		if name := parsed.User.Username(); name != "" {
			parsed.User = url.User(name)
		} else {
			parsed.User = url.User("redacted")
		}
	}
	return parsed.String()
}

// sanitizeError replaces secrets that leak into driver error messages.
func sanitizeError(err error, secrets ...string) string {
	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, secret, redactURL(secret))
	}
	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
