// Package main is the entrypoint for the settleq API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahulvgmr/settleq/internal/api"
	"github.com/rahulvgmr/settleq/internal/api/handler"
	mw "github.com/rahulvgmr/settleq/internal/api/middleware"
	"github.com/rahulvgmr/settleq/internal/api/response"
	"github.com/rahulvgmr/settleq/internal/cache"
	"github.com/rahulvgmr/settleq/internal/config"
	"github.com/rahulvgmr/settleq/internal/jobs"
	"github.com/rahulvgmr/settleq/internal/reconcile"
	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/internal/wallet"
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

	// 5. Build services
	txm := store.NewTxManager(pool)
	walletSvc := wallet.NewService(wallet.NewRepository(), txm)
	jobsRepo := jobs.NewRepository()
	jobsSvc := jobs.NewService(jobsRepo, walletSvc, txm)
	engine := reconcile.NewEngine(reconcile.NewRepository(), jobsRepo, jobsSvc, txm, cfg.Reconcile.StuckAfter)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		AdminAuth: mw.NewAdminAuth(cfg.Admin.TokenHash),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.JobsPerMinute),

		HealthHandler: healthHandler(pool, redisCache),

		CreateJob:   handler.NewCreateJobHandler(jobsSvc),
		FetchAndRun: handler.NewFetchAndRunHandler(jobsSvc),
		SettleJob:   handler.NewSettleJobHandler(jobsSvc),
		ListJobs:    handler.NewListJobsHandler(jobsSvc),

		GetWallet:    handler.NewGetWalletHandler(walletSvc, redisCache),
		CreditWallet: handler.NewCreditWalletHandler(walletSvc, redisCache),

		ReconcileScan:    handler.NewReconcileScanHandler(engine),
		ReconcilePreview: handler.NewReconcilePreviewHandler(engine),
		ReconcileApply:   handler.NewReconcileApplyHandler(engine),
		AuditLogs:        handler.NewAuditLogsHandler(engine),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
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
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db pinger, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
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
