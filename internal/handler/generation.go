package handler

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/wavedeck/studio/internal/encoder"
	"github.com/wavedeck/studio/internal/middleware"
	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/internal/service"
	ws "github.com/wavedeck/studio/internal/websocket"
	"github.com/wavedeck/studio/pkg/response"
)

type GenerationHandler struct {
	service   *service.GenerationService
	hub       *ws.Hub
	validator *validator.Validate
}

func NewGenerationHandler(svc *service.GenerationService, hub *ws.Hub, v *validator.Validate) *GenerationHandler {
	return &GenerationHandler{
		service:   svc,
		hub:       hub,
		validator: v,
	}
}

// Start handles POST /api/generations
func (h *GenerationHandler) Start(c *fiber.Ctx) error {
	var req model.GenerationStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	genReq, err := toGenerationRequest(&req)
	if err != nil {
		return writeError(c, err)
	}

	result, err := h.service.Start(genReq, middleware.GetCredential(c))
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/generations/:id
func (h *GenerationHandler) Status(c *fiber.Ctx) error {
	op, err := h.service.Status(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, op)
}

// Result handles GET /api/generations/:id/result
func (h *GenerationHandler) Result(c *fiber.Ctx) error {
	result, err := h.service.Result(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, result)
}

// Cancel handles POST /api/generations/:id/cancel
func (h *GenerationHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.service.Cancel(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, result)
}

// Reset handles POST /api/workspace/reset
func (h *GenerationHandler) Reset(c *fiber.Ctx) error {
	return response.OK(c, h.service.Reset(c.UserContext()))
}

// Stream handles GET /ws/generations/:id
func (h *GenerationHandler) Stream(c *websocket.Conn) {
	opID := c.Params("id")

	var initial []byte
	if op, err := h.service.Status(opID); err == nil {
		initial, _ = json.Marshal(model.WSSnapshotMessage{Type: model.WSMessageTypeSnapshot, Operation: op})
	} else {
		initial, _ = json.Marshal(model.WSErrorMessage{
			Type:        model.WSMessageTypeError,
			OperationID: opID,
			Error:       model.WSError{Code: response.CodeNotFound, Message: "Operation not found"},
		})
	}

	h.hub.HandleConnection(c, opID, initial)
}

func toGenerationRequest(req *model.GenerationStartRequest) (model.GenerationRequest, error) {
	images := make([]model.InputImage, 0, len(req.Images))
	for _, payload := range req.Images {
		img, err := encoder.DecodeDataURI(payload.DataURI)
		if err != nil {
			return model.GenerationRequest{}, err
		}
		img.Name = payload.Name
		images = append(images, img)
	}

	return model.GenerationRequest{
		Endpoint: req.Model,
		Prompt:   req.Prompt,
		Images:   images,
		Params: model.Params{
			Duration:       req.Duration,
			GuidanceScale:  req.GuidanceScale,
			Width:          req.Width,
			Height:         req.Height,
			NegativePrompt: req.NegativePrompt,
			ArtifactCount:  req.ArtifactCount,
			Seed:           req.Seed,
		},
	}, nil
}
