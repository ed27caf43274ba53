/**
 * @description
 * Main entry point for the Chronoprice API.
 * Initializes the Fiber web server, loads configuration, and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Database connections
 *
 * @notes
 * - Connects to Postgres and Redis on startup.
 * - Sets up basic middleware (CORS, Logger, Recover).
 */

package main

import (
	"log"

	"github.com/chronoprice-project/backend/internal/alchemy"
	"github.com/chronoprice-project/backend/internal/api"
	"github.com/chronoprice-project/backend/internal/cache"
	"github.com/chronoprice-project/backend/internal/chain"
	"github.com/chronoprice-project/backend/internal/config"
	"github.com/chronoprice-project/backend/internal/db"
	"github.com/chronoprice-project/backend/internal/models"
	"github.com/chronoprice-project/backend/internal/queue"
	"github.com/chronoprice-project/backend/internal/services"
	"github.com/chronoprice-project/backend/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	if err := pgDB.AutoMigrate(&models.PriceRecord{}); err != nil {
		log.Fatalf("Failed to migrate price records table: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// 3. Initialize Services
	// External-client handles are process-wide and injected, not re-created per call
	birthdate, err := chain.NewBirthdateService(cfg)
	if err != nil {
		log.Fatalf("Failed to init birthdate service: %v", err)
	}

	priceCache := cache.NewRedisCache(redisClient)
	priceStore := store.NewPriceStore(pgDB)
	provider := alchemy.NewClient(cfg)
	priceService := services.NewPriceService(priceCache, priceStore, provider)

	jobQueue := queue.NewQueue(redisClient)
	backfillService := services.NewBackfillService(jobQueue, birthdate)

	// 4. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "Chronoprice API",
		StrictRouting: true,
		CaseSensitive: true,
	})

	// 5. Global Middleware
	app.Use(recover.New()) // Panic recovery
	app.Use(logger.New())  // Request logging
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	// 6. Routes
	api.SetupRoutes(app, api.Deps{
		PriceService:    priceService,
		BackfillService: backfillService,
		Birthdate:       birthdate,
		Queue:           jobQueue,
		Redis:           redisClient,
	})

	// 7. Start Server
	log.Printf("🚀 Starting Chronoprice API on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
