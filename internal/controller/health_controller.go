package controller

import (
	"ai-interview-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IHealthController interface {
	RegisterRoutes(app fiber.Router)
	Health(ctx *fiber.Ctx) error
}

type healthController struct {
	service service.ISessionService
}

func NewHealthController(sessionService service.ISessionService) IHealthController {
	return &healthController{service: sessionService}
}

func (c *healthController) RegisterRoutes(app fiber.Router) {
	app.Get("/health", c.Health)
}

func (c *healthController) Health(ctx *fiber.Ctx) error {
	res := c.service.Health(ctx.Context())
	status := fiber.StatusOK
	if res.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return ctx.Status(status).JSON(res)
}
