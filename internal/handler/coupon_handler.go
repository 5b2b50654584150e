package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-issuance-system/internal/model"
	"github.com/fairyhunter13/coupon-issuance-system/internal/service"
)

// Stable error codes surfaced alongside HTTP statuses.
const (
	CodeKVIO          = "KV_IO"
	CodeTimeout       = "TIMEOUT"
	CodeValidation    = "VALIDATION"
	CodePublishFailed = "PUBLISH_FAILED"
)

// outcomeMessages maps business outcomes to caller-facing text.
var outcomeMessages = map[model.Outcome]string{
	model.OutcomeAlreadyParticipated: "User already has a coupon for this event",
	model.OutcomeNoStock:             "No coupons available",
	model.OutcomeStockNotInitialized: "Event not found or not active",
}

// IssuerServiceInterface defines the issuance business logic.
type IssuerServiceInterface interface {
	Issue(ctx context.Context, userID, eventID string) (*model.IssuanceResult, error)
	Redeem(ctx context.Context, userID, eventID string) (string, error)
}

// CouponHandler handles HTTP requests on the issuance critical path.
type CouponHandler struct {
	service        IssuerServiceInterface
	validator      *validator.Validate
	requestTimeout time.Duration
}

// NewCouponHandler creates a CouponHandler with the given service and validator.
func NewCouponHandler(svc IssuerServiceInterface, v *validator.Validate, requestTimeout time.Duration) *CouponHandler {
	return &CouponHandler{service: svc, validator: v, requestTimeout: requestTimeout}
}

// formatValidationError converts validator errors to stable messages.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "max":
				return "invalid request: " + field + " exceeds maximum length"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// IssueCoupon handles POST /api/v1/coupons/issue.
// Business failures are HTTP 200 with success=false and a stable code;
// infrastructure faults map to 500, ambiguous admission to 504.
func (h *CouponHandler) IssueCoupon(c *fiber.Ctx) error {
	var req model.IssueCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": formatValidationError(err),
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.service.Issue(ctx, req.UserID, req.EventID)
	if err != nil {
		if errors.Is(err, service.ErrAmbiguousTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
				"code": CodeTimeout, "error": "admission did not complete, retry is safe",
			})
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", req.UserID).
			Str("event_id", req.EventID).
			Msg("coupon issuance failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": CodeKVIO, "error": "internal server error",
		})
	}

	resp := model.IssueCouponResponse{Success: result.Success()}
	if result.StockKnown {
		remaining := result.RemainingStock
		resp.RemainingStock = &remaining
	}
	if result.Success() {
		resp.Message = "Coupon issued successfully"
		resp.CouponID = result.CouponID

		log.Info().
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", req.UserID).
			Str("event_id", req.EventID).
			Str("coupon_id", result.CouponID).
			Int("remaining_stock", result.RemainingStock).
			Msg("coupon issued")
		return c.JSON(resp)
	}

	resp.Code = string(result.Outcome)
	resp.Message = outcomeMessages[result.Outcome]
	return c.JSON(resp)
}

// RedeemCoupon handles POST /api/v1/coupons/redeem.
func (h *CouponHandler) RedeemCoupon(c *fiber.Ctx) error {
	var req model.RedeemCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": "invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code": CodeValidation, "error": formatValidationError(err),
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.requestTimeout)
	defer cancel()

	couponID, err := h.service.Redeem(ctx, req.UserID, req.EventID)
	if err != nil {
		if errors.Is(err, service.ErrNoCoupon) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "no coupon found for user and event",
			})
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", req.UserID).
			Str("event_id", req.EventID).
			Msg("coupon redemption failed")
		code := CodeKVIO
		if errors.Is(err, service.ErrPublishFailed) {
			code = CodePublishFailed
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": code, "error": "internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"coupon_id": couponID,
		"message":   "Coupon redeemed successfully",
	})
}
