package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/pkg/response"
)

// HealthCheck reports whether one integration is configured
type HealthCheck func() bool

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	integrations := make(map[string]bool, len(h.checks))
	for name, check := range h.checks {
		integrations[name] = check()
	}
	return response.OK(c, model.HealthResponse{
		Status:       "ok",
		Integrations: integrations,
	})
}
