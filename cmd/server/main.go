// Package main is the entrypoint for the Keydex API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/keydexhq/keydex/internal/analytics"
	"github.com/keydexhq/keydex/internal/api"
	"github.com/keydexhq/keydex/internal/api/handler"
	mw "github.com/keydexhq/keydex/internal/api/middleware"
	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/internal/auth"
	"github.com/keydexhq/keydex/internal/cache"
	"github.com/keydexhq/keydex/internal/config"
	"github.com/keydexhq/keydex/internal/fingerprint"
	"github.com/keydexhq/keydex/internal/report"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/internal/sweep"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Core components
	pgStore := store.NewPostgresStore(pool)
	hasher := fingerprint.NewHasher(cfg.Fingerprint.Salt)
	engine := report.NewEngine(pgStore, hasher)
	sweeper := sweep.New(pgStore, redisCache, cfg.Sweep.MinInterval)
	aggregator := analytics.New(pgStore)

	signer, err := auth.NewTokenSigner(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("create token signer: %w", err)
	}

	// 6. Background workers. The aggregator flushes pending counts when
	// ctx is cancelled, so shutdown must wait for both to return.
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		sweeper.Start(ctx, cfg.Sweep.Interval)
	}()
	go func() {
		defer workers.Done()
		aggregator.Start(ctx, cfg.Analytics.FlushInterval)
	}()

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Visitor:   mw.NewVisitor(hasher),
		Auth:      mw.NewAuth(signer),
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler: healthHandler(pgStore, redisCache),

		ListProgramsHandler: handler.NewListProgramsHandler(pgStore),
		GetProgramHandler:   handler.NewGetProgramHandler(pgStore),

		CheckDuplicateHandler: handler.NewCheckDuplicateHandler(engine),
		CreateReportHandler:   handler.NewCreateReportHandler(engine),
		RenewReportHandler:    handler.NewRenewReportHandler(engine),

		CreateSuggestionHandler: handler.NewCreateSuggestionHandler(pgStore),
		CreateMessageHandler:    handler.NewCreateMessageHandler(pgStore),
		RecordEventHandler:      handler.NewRecordEventHandler(aggregator),

		LoginHandler: handler.NewLoginHandler(pgStore, signer),

		SweepHandler:            handler.NewSweepHandler(sweeper),
		SetKeyStatusHandler:     handler.NewSetKeyStatusHandler(pgStore),
		ListSuggestionsHandler:  handler.NewListSuggestionsHandler(pgStore),
		ReviewSuggestionHandler: handler.NewReviewSuggestionHandler(pgStore),
		ListMessagesHandler:     handler.NewListMessagesHandler(pgStore),
		MarkMessageReadHandler:  handler.NewMarkMessageReadHandler(pgStore),
		ListEventStatsHandler:   handler.NewListEventStatsHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		stop()
		workers.Wait()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	workers.Wait()
	if shutdownErr != nil {
		return fmt.Errorf("server shutdown: %w", shutdownErr)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
