// Symptom checker chat server.
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

	"github.com/ashureev/symptom-checker/internal/analyzer"
	"github.com/ashureev/symptom-checker/internal/api"
	"github.com/ashureev/symptom-checker/internal/chat"
	"github.com/ashureev/symptom-checker/internal/config"
	"github.com/ashureev/symptom-checker/internal/identity"
	"github.com/ashureev/symptom-checker/internal/middleware"
	"github.com/ashureev/symptom-checker/internal/remote"
	"github.com/ashureev/symptom-checker/internal/store"
	"github.com/ashureev/symptom-checker/internal/webhook"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "remote_mode", cfg.Remote.Mode, "store_enabled", cfg.StoreEnabled)

	rules, err := analyzer.LoadRules(cfg.RulesPath)
	if err != nil {
		slog.Error("Failed to load rule table", "error", err, "path", cfg.RulesPath)
		os.Exit(1)
	}
	az := analyzer.New(rules)
	slog.Info("Rule table loaded", "version", az.RulesVersion())

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

	notifier := webhook.New(cfg.Webhook.URL, cfg.Webhook.Timeout, logger)
	if !notifier.Enabled() {
		slog.Info("Webhook disabled (WEBHOOK_URL not set)")
	}

	mgr := chat.NewManager(chat.Deps{
		Analyzer: az,
		Remote:   newRemote(cfg, logger),
		Store:    repo,
		Webhook:  notifier,
		Logger:   logger,
	})

	chatHandler := chat.NewHandler(mgr, chat.HandlerConfig{
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		AllowedOrigins:     cfg.AllowedOrigins,
	})
	statusHandler := api.NewStatusHandler(repo, mgr, api.StatusConfig{
		RulesVersion:       az.RulesVersion(),
		RemoteMode:         cfg.Remote.Mode,
		HealthCheckTimeout: cfg.HealthCheckTimeout,
	})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware)

	statusHandler.RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		chatHandler.RegisterRoutes(r)
	})

	// WebSocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat.StartSweeper(ctx, mgr, repo, chat.SweeperConfig{
		Interval:   cfg.SweepInterval,
		SessionTTL: cfg.SessionTTL,
		Retention:  cfg.Retention,
	})

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
	}
	notifier.Wait()

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	if !cfg.StoreEnabled {
		slog.Info("Interaction store disabled")
		return store.NewNop(), nil
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := repo.Ping(context.Background()); err != nil {
		_ = repo.Close()
		return nil, err
	}
	slog.Info("Database connected", "path", cfg.DBPath)
	return repo, nil
}

// newRemote returns the configured remote analyzer, or nil for local only.
func newRemote(cfg *config.Config, logger *slog.Logger) remote.Client {
	switch cfg.Remote.Mode {
	case config.RemoteHTTP:
		slog.Info("Remote analyzer enabled", "mode", cfg.Remote.Mode, "url", cfg.Remote.URL, "timeout", cfg.Remote.Timeout)
		return remote.NewHTTPClient(remote.HTTPConfig{
			URL:      cfg.Remote.URL,
			Timeout:  cfg.Remote.Timeout,
			Attempts: cfg.Remote.Attempts,
			Backoff:  cfg.Remote.Backoff,
		}, logger)
	case config.RemoteOpenAI:
		slog.Info("Remote analyzer enabled", "mode", cfg.Remote.Mode, "model", cfg.OpenAI.Model)
		return remote.NewOpenAIClient(remote.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.Remote.Timeout,
		}, logger)
	default:
		slog.Info("Remote analyzer disabled, answering locally")
		return nil
	}
}
