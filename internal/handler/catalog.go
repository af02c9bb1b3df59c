package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/wavedeck/studio/internal/engine"
	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/pkg/response"
)

type CatalogHandler struct {
	catalog   *model.Catalog
	validator *validator.Validate
}

func NewCatalogHandler(catalog *model.Catalog, v *validator.Validate) *CatalogHandler {
	return &CatalogHandler{
		catalog:   catalog,
		validator: v,
	}
}

// Models handles GET /api/models
func (h *CatalogHandler) Models(c *fiber.Ctx) error {
	return response.OK(c, lo.Map(h.catalog.List(), func(spec model.ModelSpec, _ int) model.ModelInfo {
		return model.NewModelInfo(spec)
	}))
}

// Estimate handles POST /api/estimate
func (h *CatalogHandler) Estimate(c *fiber.Ctx) error {
	var req model.EstimateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	spec, ok := h.catalog.Lookup(req.Model)
	if !ok {
		return response.ValidationError(c, "Unknown model", map[string]string{"model": req.Model})
	}

	params := model.Params{Duration: req.Duration, ArtifactCount: req.ArtifactCount}.WithDefaults(spec.BodyStyle)

	return response.OK(c, model.EstimateResponse{
		Model:         spec.ID,
		EstimatedCost: engine.Estimate(spec.Pricing, params),
	})
}
