package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/mnemion/mnemion/pkg/chain"
	"github.com/mnemion/mnemion/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine errors to problem+json responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, chain.ErrPluginExecutionNotAllowed):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("plugin_execution_not_allowed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, persistence.ErrExecutionTerminal):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("execution_terminal").
			WithDetail("execution already reached a terminal state")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case errors.Is(err, persistence.ErrDatasetNotFound):
		return notFound(c, "dataset not found")

	case errors.Is(err, persistence.ErrWorkflowNotFound):
		return notFound(c, "workflow not found")

	default:
		return internalError(c, err)
	}
}
