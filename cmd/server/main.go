package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "billing-engine/internal/adapters/web"
	"billing-engine/internal/app"
	"billing-engine/internal/config"
	"billing-engine/internal/core"
	"billing-engine/internal/db"
	"billing-engine/internal/lock"
	"billing-engine/internal/store/memory"
	"billing-engine/internal/store/postgres"

	"github.com/sirupsen/logrus"
)

// migrateTimeout bounds the wait for another instance's migration run.
const migrateTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := core.DefaultRetryPolicy
	policy.MaxAttempts = cfg.TxMaxRetries

	var store core.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		store = memory.New(policy)
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer pool.Close()
		migrateCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
		err = db.Migrate(migrateCtx, pool, cfg.MigrationsDir, logger)
		cancel()
		if err != nil {
			logger.Fatalf("migrations: %v", err)
		}
		store = postgres.New(pool, postgres.Options{Retry: policy, LockTimeout: cfg.LockTimeout})
	}

	var guard core.Guard
	if cfg.RedisAddr != "" {
		g, rdb, err := lock.NewRedisGuard(ctx, cfg.RedisAddr, cfg.GuardTTL, logger)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		guard = g
		logger.WithField("addr", cfg.RedisAddr).Info("posting guard enabled")
	}

	svc := app.NewAppService(store, guard, logger)
	handler := webAdapter.NewHandler(svc, logger, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server shutdown")
		}
	}()

	logger.WithFields(logrus.Fields{"port": cfg.Port, "backend": cfg.StoreBackend}).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server: %v", err)
	}
}
