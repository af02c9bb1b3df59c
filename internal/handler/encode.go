package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wavedeck/studio/internal/encoder"
	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/pkg/response"
)

type EncodeHandler struct{}

func NewEncodeHandler() *EncodeHandler {
	return &EncodeHandler{}
}

// Encode handles POST /api/encode
func (h *EncodeHandler) Encode(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	// Validate file size
	if file.Size > encoder.MaxImageSize {
		return response.ValidationError(c, "File size exceeds 20MB limit", map[string]any{
			"maxSize":  encoder.MaxImageSize,
			"fileSize": file.Size,
		})
	}

	// Open file
	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	img, err := encoder.EncodeReader(f, file.Filename)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, model.EncodeResponse{
		Name:     img.Name,
		MIMEType: img.MIMEType,
		Size:     len(img.Data),
		DataURI:  img.DataURI(),
	})
}
