package handler

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/wavedeck/studio/internal/config"
	"github.com/wavedeck/studio/internal/middleware"
	"github.com/wavedeck/studio/pkg/response"
)

// Routes groups the handlers and middleware mounted on the app
type Routes struct {
	Health      *HealthHandler
	Catalog     *CatalogHandler
	Encode      *EncodeHandler
	Generations *GenerationHandler
	Credential  *middleware.Credential
	RateLimiter *middleware.RateLimiter
	Limits      config.RateLimitConfig
}

// Mount registers every route on app
func (r *Routes) Mount(app *fiber.App) {
	// Health check
	app.Get("/health", r.Health.Health)

	// API routes
	api := app.Group("/api")
	api.Get("/models", r.Catalog.Models)
	api.Post("/estimate", r.Catalog.Estimate)
	api.Post("/encode", r.Credential.Require(), r.RateLimiter.EncodeLimit(r.Limits.EncodePerMin), r.Encode.Encode)

	// Generation routes
	generations := api.Group("/generations")
	generations.Post("/", r.Credential.Require(), r.RateLimiter.GenerateLimit(r.Limits.GeneratePerHour), r.Generations.Start)
	generations.Get("/:id", r.Generations.Status)
	generations.Get("/:id/result", r.Generations.Result)
	generations.Post("/:id/cancel", r.Generations.Cancel)

	api.Post("/workspace/reset", r.Generations.Reset)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/generations/:id", websocket.New(r.Generations.Stream))
}

// ErrorHandler renders errors that escaped the handlers in the API envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	if code == fiber.StatusNotFound {
		errCode = response.CodeNotFound
	}

	return response.Error(c, code, errCode, message, nil)
}
