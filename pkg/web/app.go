package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/mnemion/mnemion/pkg/orchestration"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// NewApp builds the operations API application.
func NewApp(service *orchestration.Service, store persistence.Persistence) *fiber.App {
	handlers := NewAPIHandlers(service, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Mnemion Orchestrator")
	})

	executions := app.Group("/executions")
	executions.Post("/", handlers.CreateExecution)
	executions.Get("/", handlers.GetQueuedExecutions)
	executions.Get("/:id", handlers.GetExecution)
	executions.Post("/:id/cancel", handlers.CancelExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}
