// Package orchestration exposes the engine's entry points: enqueueing,
// cancelling and inspecting workflow executions. The HTTP API, the request
// queue and the calendar trigger all go through this service.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mnemion/mnemion/pkg/eventbus"
	"github.com/mnemion/mnemion/pkg/events"
	"github.com/mnemion/mnemion/pkg/factory"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

type Service struct {
	store     persistence.Persistence
	factory   *factory.Factory
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewService(store persistence.Persistence, executionFactory *factory.Factory, publisher eventbus.EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		factory:   executionFactory,
		publisher: publisher,
		logger:    logger.With("module", "orchestration_service"),
	}
}

// AddExecution builds, persists and announces a new execution for the
// dataset. The scheduler picks it up on the next dispatch pass; the
// published event merely shortens the wait.
func (s *Service) AddExecution(ctx context.Context, datasetID, workflowID string, enforcedPredecessorType models.PluginType, priority int) (*models.WorkflowExecution, error) {
	dataset, err := s.store.Datasets().GetByID(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", datasetID, err)
	}

	workflow, err := s.store.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if workflow.DatasetID != dataset.ID {
		return nil, fmt.Errorf("workflow %s does not belong to dataset %s", workflowID, datasetID)
	}

	execution, err := s.factory.CreateExecution(ctx, workflow, dataset, enforcedPredecessorType, priority)
	if err != nil {
		return nil, err
	}

	err = s.store.Executions().Create(ctx, execution)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Execution enqueued",
		"execution_id", execution.ID,
		"dataset_id", datasetID,
		"workflow_id", workflowID,
		"priority", priority,
	)

	if s.publisher != nil {
		event := events.ExecutionRequested{
			BaseEvent: events.NewBaseEvent(events.ExecutionRequestedEvent, execution.ID, datasetID),
			Priority:  priority,
		}

		publishErr := s.publisher.Publish(ctx, datasetID, event)
		if publishErr != nil {
			s.logger.WarnContext(ctx, "Failed to publish enqueue notification",
				"execution_id", execution.ID, "error", publishErr)
		}
	}

	return execution, nil
}

// CancelExecution requests cooperative cancellation, recording who asked.
// The running worker observes the flag on its next monitor tick.
func (s *Service) CancelExecution(ctx context.Context, id, cancelledBy string) error {
	err := s.store.Executions().SetCancelling(ctx, id, cancelledBy)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Cancellation requested",
		"execution_id", id, "cancelled_by", cancelledBy)

	return nil
}

// GetExecution returns the stored execution record.
func (s *Service) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return s.store.Executions().GetByID(ctx, id)
}

// ListQueued exposes the dispatch-ordered queue page for the API.
func (s *Service) ListQueued(ctx context.Context, limit int, cursor string) ([]*models.WorkflowExecution, string, error) {
	return s.store.Executions().ListQueued(ctx, limit, cursor)
}
