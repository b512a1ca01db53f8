package main

import (
	"context"
	"flag"
	"os"

	"billing-engine/internal/config"
	"billing-engine/internal/db"
)

func main() {
	cfg, err := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logger.Fatalf("[CONFIG] %v", err)
	}

	dir := flag.String("dir", cfg.MigrationsDir, "directory holding NNN_name.sql migrations")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()
	logger.Info("[CONNECT] success")

	if err := db.TryMigrate(ctx, pool, *dir, logger); err != nil {
		logger.Fatalf("[MIGRATE] %v", err)
	}
	logger.Info("[DONE] All migrations processed.")
}
