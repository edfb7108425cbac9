package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/knesgoda/opql-toolkit/internal/api"
	"github.com/knesgoda/opql-toolkit/internal/api/handlers"
	"github.com/knesgoda/opql-toolkit/internal/cache"
	"github.com/knesgoda/opql-toolkit/internal/config"
	"github.com/knesgoda/opql-toolkit/internal/repository"
)

func main() {
	// Load .env file if present (development convenience).
	_ = godotenv.Load()             // cmd/opqld/.env
	_ = godotenv.Load("../.env")    // running from cmd/opqld/ -> project root .env
	_ = godotenv.Load("../../.env") // running from repo root -> project root .env

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)
	slog.Info("starting opql query server", "port", cfg.APIPort, "env", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := repository.NewMemory()
	seedDemoWorkspace(repo)

	// Redis is non-critical at startup: plan caching and rate limiting are
	// both optional, so a Redis outage degrades the server rather than
	// preventing it from starting.
	redisClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable; plan caching and rate limiting disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	queryHandlers := &handlers.QueryHandlers{
		Repo:          repo,
		Cache:         redisClient,
		GraphDepthCap: cfg.GraphDepthCap,
		RateLimit:     cfg.RateLimitPerMinute,
		RateWindow:    cfg.RateLimitWindow,
		CacheTTL:      cfg.PlanCacheTTL,
	}
	healthHandler := handlers.NewHealthHandler(redisClient, "0.1.0")

	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins:  cfg.AllowedOrigins,
		DevMode:         cfg.IsDevelopment(),
		AuthSecretKey:   cfg.AuthSecretKey,
		HealthHandler:   healthHandler,
		ExecuteHandler:  queryHandlers.Execute(),
		ExplainHandler:  queryHandlers.Explain(),
		BuildHandler:    queryHandlers.Build(),
		FromTreeHandler: queryHandlers.FromTree(),
		JQLHandler:      queryHandlers.CompileJQL(),
		NLHandler:       queryHandlers.InterpretNL(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("opql query server stopped")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
