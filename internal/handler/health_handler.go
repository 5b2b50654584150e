package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests against the KV store, which
// is the dependency the issuance critical path cannot live without.
type HealthHandler struct {
	kv Pinger
}

// NewHealthHandler creates a HealthHandler with the given KV pinger.
func NewHealthHandler(kv Pinger) *HealthHandler {
	return &HealthHandler{kv: kv}
}

// Check performs a health check by pinging the KV store.
// Returns 200 OK with {"status": "healthy"} when the store is reachable.
// Returns 503 Service Unavailable otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.kv.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: kv store unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "kv store connection failed",
		})
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
