package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-issuance-system/internal/model"
	"github.com/fairyhunter13/coupon-issuance-system/internal/service"
)

// AdminServiceInterface defines the administrative operations.
type AdminServiceInterface interface {
	InitializeStock(ctx context.Context, eventID string, stock int) (bool, error)
	InvalidateEvent(ctx context.Context, eventID string) (int64, error)
	EventStats(ctx context.Context, eventID string) (*model.EventCacheStats, error)
}

// AdminHandler handles stock provisioning and cache invalidation.
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler creates an AdminHandler with the given service.
func NewAdminHandler(svc AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: svc}
}

// InitializeStock handles POST /api/v1/admin/events/:event_id/stock?initial_stock=N.
func (h *AdminHandler) InitializeStock(c *fiber.Ctx) error {
	eventID := c.Params("event_id")
	if eventID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request: event_id is required",
		})
	}
	stock, err := strconv.Atoi(c.Query("initial_stock"))
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request: initial_stock must be an integer",
		})
	}

	created, err := h.service.InitializeStock(c.Context(), eventID, stock)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStock) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"code": CodeValidation, "error": "invalid request: initial_stock must not be negative",
			})
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("event_id", eventID).
			Msg("stock initialization failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": CodeKVIO, "error": "internal server error",
		})
	}

	if !created {
		return c.JSON(fiber.Map{
			"event_id": eventID,
			"message":  "Stock already exists for this event",
		})
	}
	return c.JSON(fiber.Map{
		"event_id":      eventID,
		"initial_stock": stock,
		"message":       "Stock initialized successfully",
	})
}

// CacheStats handles GET /api/v1/admin/events/:event_id/stats.
func (h *AdminHandler) CacheStats(c *fiber.Ctx) error {
	eventID := c.Params("event_id")
	if eventID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request: event_id is required",
		})
	}

	stats, err := h.service.EventStats(c.Context(), eventID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("event_id", eventID).
			Msg("cache stats lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": CodeKVIO, "error": "internal server error",
		})
	}
	return c.JSON(stats)
}

// InvalidateCache handles DELETE /api/v1/admin/events/:event_id/cache.
func (h *AdminHandler) InvalidateCache(c *fiber.Ctx) error {
	eventID := c.Params("event_id")
	if eventID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request: event_id is required",
		})
	}

	deleted, err := h.service.InvalidateEvent(c.Context(), eventID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("event_id", eventID).
			Msg("cache invalidation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": CodeKVIO, "error": "internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"event_id":     eventID,
		"keys_deleted": deleted,
		"message":      "Event cache invalidated",
	})
}
