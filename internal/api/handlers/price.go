/**
 * @description
 * Price API Handlers.
 * Exposes the single-timestamp price resolution endpoint.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/chronoprice-project/backend/internal/alchemy"
	"github.com/chronoprice-project/backend/internal/logger"
	"github.com/chronoprice-project/backend/internal/pricing"
	"github.com/chronoprice-project/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type PriceHandler struct {
	Service   *services.PriceService
	Birthdate services.BirthdateProvider
}

func NewPriceHandler(service *services.PriceService, birthdate services.BirthdateProvider) *PriceHandler {
	return &PriceHandler{Service: service, Birthdate: birthdate}
}

type priceRequest struct {
	TokenAddress string `json:"tokenAddress"`
	Network      string `json:"network"`
	// Timestamp accepts an ISO-8601 string or an epoch-seconds number
	Timestamp interface{} `json:"timestamp"`
}

func (r priceRequest) parseTimestamp() (time.Time, error) {
	switch v := r.Timestamp.(type) {
	case string:
		return pricing.ParseTimestamp(v)
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// ResolvePrice answers a single historical price query
// POST /api/v1/price
func (h *PriceHandler) ResolvePrice(c *fiber.Ctx) error {
	ctx := c.Context()

	var req priceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.TokenAddress == "" || req.Network == "" || req.Timestamp == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing required fields",
		})
	}

	ts, err := req.parseTimestamp()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid timestamp",
		})
	}

	// Birthdate augmentation is best-effort; the collaborator being down
	// never blocks a resolvable query
	var birthDate *time.Time
	if h.Birthdate != nil {
		if bd, err := h.Birthdate.TokenBirthdate(ctx, req.TokenAddress); err == nil {
			if ts.Before(bd) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Timestamp predates token birthdate",
				})
			}
			birthDate = &bd
		} else {
			logger.Error("Birthdate lookup failed for %s: %v", req.TokenAddress, err)
		}
	}

	resolved, err := h.Service.Resolve(ctx, req.TokenAddress, req.Network, ts)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedNetwork) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":     "Unsupported network",
				"supported": alchemy.SupportedNetworks(),
			})
		}
		logger.Error("Price resolution failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve price",
		})
	}

	resp := fiber.Map{
		"price":  resolved.Price,
		"source": resolved.Source,
	}
	if birthDate != nil {
		resp["birthDate"] = birthDate.Format(time.RFC3339)
	}
	return c.JSON(resp)
}
