/**
 * @description
 * Backfill API Handlers.
 * Schedules historical backfill jobs, reports job status, and streams
 * progress updates over SSE.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/queue
 */

package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chronoprice-project/backend/internal/logger"
	"github.com/chronoprice-project/backend/internal/queue"
	"github.com/chronoprice-project/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type BackfillHandler struct {
	Service *services.BackfillService
	Queue   *queue.Queue
	Redis   *redis.Client
}

func NewBackfillHandler(service *services.BackfillService, q *queue.Queue, rdb *redis.Client) *BackfillHandler {
	return &BackfillHandler{Service: service, Queue: q, Redis: rdb}
}

type backfillRequest struct {
	TokenAddress string `json:"tokenAddress"`
	Network      string `json:"network"`
}

// ScheduleBackfill enqueues one job covering the token's whole lifetime
// POST /api/v1/backfill
func (h *BackfillHandler) ScheduleBackfill(c *fiber.Ctx) error {
	ctx := c.Context()

	var req backfillRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.TokenAddress == "" || req.Network == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing required fields",
		})
	}

	result, err := h.Service.Schedule(ctx, req.TokenAddress, req.Network)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedNetwork) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unsupported network",
			})
		}
		logger.Error("Backfill scheduling failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to schedule backfill",
		})
	}

	return c.JSON(fiber.Map{
		"jobId":   result.JobID,
		"count":   result.Count,
		"from":    result.From.Format("2006-01-02"),
		"to":      result.To.Format("2006-01-02"),
		"message": fmt.Sprintf("Scheduled %d prices from %s to %s.", result.Count, result.From.Format("2006-01-02"), result.To.Format("2006-01-02")),
	})
}

// GetJobStatus reports the state of a scheduled job
// GET /api/v1/backfill/:id
func (h *BackfillHandler) GetJobStatus(c *fiber.Ctx) error {
	status, err := h.Queue.GetStatus(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch job status",
		})
	}
	return c.JSON(status)
}

// StreamProgress streams backfill progress updates over SSE
// GET /api/v1/backfill/stream
func (h *BackfillHandler) StreamProgress(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()

	ctx, cancel := context.WithCancel(context.Background())

	pubsub := h.Redis.Subscribe(ctx, queue.ProgressChannel)
	ch := pubsub.Channel()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cancel()
			_ = pubsub.Close()
		}()

		requestDone := requestCtx.Done()

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-requestDone:
				return
			case <-ctx.Done():
				return
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
