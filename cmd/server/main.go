// Tranquili+ - mental wellness journal server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/tranquili/internal/api"
	"github.com/ashureev/tranquili/internal/companion"
	"github.com/ashureev/tranquili/internal/config"
	"github.com/ashureev/tranquili/internal/identity"
	"github.com/ashureev/tranquili/internal/middleware"
	"github.com/ashureev/tranquili/internal/notify"
	"github.com/ashureev/tranquili/internal/progress"
	"github.com/ashureev/tranquili/internal/retention"
	"github.com/ashureev/tranquili/internal/store"
	"github.com/ashureev/tranquili/web"
)

func openStore(cfg *config.Config) (store.Repository, error) {
	if cfg.Database.Driver == config.DriverPostgres {
		return store.NewPostgres(cfg.Database.URL)
	}
	return store.NewSQLite(cfg.Database.Path)
}

func newResponder(cfg *config.Config, logger *slog.Logger) (companion.Responder, bool) {
	if !cfg.CompanionEnabled() {
		slog.Info("Companion sidecar not configured, using offline responder")
		return companion.EchoResponder{}, false
	}

	grpcCfg := companion.DefaultGrpcConfig(cfg.Companion.Addr)
	grpcCfg.RequestTimeout = cfg.Companion.Timeout
	responder, err := companion.NewGrpcResponder(grpcCfg, logger)
	if err != nil {
		slog.Warn("Failed to connect to companion, falling back to offline responder", "error", err)
		return companion.EchoResponder{}, false
	}
	return responder, true
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.Database.Driver)

	// Initialize dependencies.
	repo, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services.
	hub := notify.NewHub(cfg.Notify.QueueSize)
	prog := progress.NewService(repo, hub)

	responder, companionEnabled := newResponder(cfg, logger)
	limiter := companion.NewRateLimiter(cfg.Companion.RateLimit, cfg.Companion.RateWindow)
	limiter.StartEviction(ctx)
	chat := companion.NewService(repo, responder, prog, limiter)
	defer func() {
		if closeErr := chat.Close(); closeErr != nil {
			slog.Warn("Failed to close companion responder", "error", closeErr)
		}
	}()

	// Initialize handlers.
	apiHandler, err := api.NewHandler(repo, prog, chat, companionEnabled)
	if err != nil {
		slog.Error("Failed to initialize API handler", "error", err)
		os.Exit(1)
	}
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := notify.NewWebSocketHandler(hub, cfg.Notify.Keepalive, cfg.FrontendURL, cfg.IsDevelopment())

	// New users start from an empty baseline, so every later unlock notifies.
	syncBaseline := func(ctx context.Context, userID string) error {
		_, err := prog.Refresh(ctx, userID)
		return err
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment(), syncBaseline))
		apiHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/notifications", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSockets are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start retention worker.
	retention.StartWorker(ctx, repo, cfg.RetentionPeriod(), cfg.Retention.Interval, func(userID string) {
		hub.CloseUser(userID)
		prog.Forget(userID)
		chat.Forget(userID)
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
