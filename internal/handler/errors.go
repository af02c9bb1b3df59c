package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/internal/service"
	"github.com/wavedeck/studio/pkg/response"
)

func formatValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		out := make(map[string]string)
		for _, e := range validationErrors {
			out[e.Field()] = e.Tag()
		}
		return out
	}
	return nil
}

// writeError renders a service or engine error with its stable code.
func writeError(c *fiber.Ctx, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		var details map[string]string
		if verr.Field != "" {
			details = map[string]string{verr.Field: verr.Message}
		}
		return response.ValidationError(c, verr.Error(), details)
	case errors.Is(err, service.ErrOperationNotFound):
		return response.NotFound(c, "Operation not found")
	case errors.Is(err, service.ErrOperationNotComplete):
		return response.Conflict(c, "Operation not completed yet")
	case errors.Is(err, service.ErrOperationFinished):
		return response.Conflict(c, "Operation already finished")
	}

	switch code := model.ErrorCode(err); code {
	case model.CodeSubmissionFailed, model.CodeProtocolError, model.CodeJobFailed,
		model.CodeTimeout, model.CodeEmptyResult, model.CodeUnrecognizedOutput:
		return response.Upstream(c, code, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}
