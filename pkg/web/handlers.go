package web

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/orchestration"
	"github.com/mnemion/mnemion/pkg/persistence"
)

const defaultQueuePageSize = 20

type APIHandlers struct {
	service   *orchestration.Service
	store     persistence.Persistence
	validator *validator.Validate
}

func NewAPIHandlers(service *orchestration.Service, store persistence.Persistence, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		service:   service,
		store:     store,
		validator: validate,
	}
}

// CreateExecution enqueues a new execution for a dataset's workflow.
func (h *APIHandlers) CreateExecution(c fiber.Ctx) error {
	var request CreateExecutionRequest

	err := c.Bind().Body(&request)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(request)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.service.AddExecution(c.Context(),
		request.DatasetID,
		request.WorkflowID,
		models.PluginType(request.EnforcedPredecessorType),
		request.Priority,
	)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

// GetExecution returns the stored execution record.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.service.GetExecution(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// GetQueuedExecutions returns a page of the dispatch-ordered queue.
func (h *APIHandlers) GetQueuedExecutions(c fiber.Ctx) error {
	limit := defaultQueuePageSize

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	executions, nextCursor, err := h.service.ListQueued(c.Context(), limit, c.Query("cursor"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"next_cursor": nextCursor,
	})
}

// CancelExecution requests cooperative cancellation.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var request CancelExecutionRequest

	err := c.Bind().Body(&request)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(request)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.service.CancelExecution(c.Context(), id, request.CancelledBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// HealthCheck reports the backing store's reachability.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.store.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
