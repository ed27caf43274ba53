/**
 * @description
 * Worker Service Entry Point.
 * Consumes backfill jobs from the Redis queue, one job at a time, resolving
 * each job's timestamps through the tiered price lookup.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/queue
 * - backend/internal/services
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chronoprice-project/backend/internal/alchemy"
	"github.com/chronoprice-project/backend/internal/cache"
	"github.com/chronoprice-project/backend/internal/config"
	"github.com/chronoprice-project/backend/internal/db"
	"github.com/chronoprice-project/backend/internal/logger"
	"github.com/chronoprice-project/backend/internal/models"
	"github.com/chronoprice-project/backend/internal/queue"
	"github.com/chronoprice-project/backend/internal/services"
	"github.com/chronoprice-project/backend/internal/store"
)

func main() {
	logger.Info("🔥 Starting Chronoprice Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	if err := pgDB.AutoMigrate(&models.PriceRecord{}); err != nil {
		logger.Fatal("Price records migration failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}

	// 3. Initialize Services
	priceCache := cache.NewRedisCache(redisClient)
	priceStore := store.NewPriceStore(pgDB)
	provider := alchemy.NewClient(cfg)
	priceService := services.NewPriceService(priceCache, priceStore, provider)

	jobQueue := queue.NewQueue(redisClient)
	worker := queue.NewWorker(jobQueue, priceService, int64(cfg.Backfill.Concurrency), cfg.Backfill.MaxRetries)

	// 4. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Consume Jobs
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Error("Worker did not stop in time")
	}
	logger.Info("Worker exited.")
}
