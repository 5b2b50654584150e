package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-issuance-system/internal/model"
)

// StatusServiceInterface defines the read-side lookups.
type StatusServiceInterface interface {
	Status(ctx context.Context, eventID string) (*model.EventStatus, error)
	UserCoupon(ctx context.Context, userID, eventID string) (string, error)
}

// StatusHandler serves the cached, non-authoritative views of events and
// user coupons.
type StatusHandler struct {
	service StatusServiceInterface
}

// NewStatusHandler creates a StatusHandler with the given service.
func NewStatusHandler(svc StatusServiceInterface) *StatusHandler {
	return &StatusHandler{service: svc}
}

// EventStatus handles GET /api/v1/coupons/status/:event_id.
func (h *StatusHandler) EventStatus(c *fiber.Ctx) error {
	eventID := c.Params("event_id")
	if eventID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request: event_id is required",
		})
	}

	status, err := h.service.Status(c.Context(), eventID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("event_id", eventID).
			Msg("event status lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": CodeKVIO, "error": "internal server error",
		})
	}
	return c.JSON(status)
}

// UserCoupon handles GET /api/v1/coupons/user/:user_id/event/:event_id.
func (h *StatusHandler) UserCoupon(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	eventID := c.Params("event_id")
	if userID == "" || eventID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request: user_id and event_id are required",
		})
	}

	couponID, err := h.service.UserCoupon(c.Context(), userID, eventID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", userID).
			Str("event_id", eventID).
			Msg("user coupon lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": CodeKVIO, "error": "internal server error",
		})
	}

	resp := model.UserCouponResponse{UserID: userID, EventID: eventID, CouponID: couponID}
	if couponID == "" {
		resp.Message = "No coupon found"
	}
	return c.JSON(resp)
}
