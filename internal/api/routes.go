/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/services
 * - backend/internal/queue
 */

package api

import (
	"github.com/chronoprice-project/backend/internal/api/handlers"
	"github.com/chronoprice-project/backend/internal/queue"
	"github.com/chronoprice-project/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Deps carries the wired services the routes need. Handles are constructed
// once at startup and injected, never re-created per call.
type Deps struct {
	PriceService    *services.PriceService
	BackfillService *services.BackfillService
	Birthdate       services.BirthdateProvider
	Queue           *queue.Queue
	Redis           *redis.Client
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Deps) {
	priceHandler := handlers.NewPriceHandler(deps.PriceService, deps.Birthdate)
	backfillHandler := handlers.NewBackfillHandler(deps.BackfillService, deps.Queue, deps.Redis)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1.Post("/price", priceHandler.ResolvePrice)

	v1.Post("/backfill", backfillHandler.ScheduleBackfill)
	v1.Get("/backfill/stream", backfillHandler.StreamProgress)
	v1.Get("/backfill/:id", backfillHandler.GetJobStatus)
}
