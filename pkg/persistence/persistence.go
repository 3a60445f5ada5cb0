// Package persistence provides the storage abstraction for workflow
// executions, templates, datasets and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/mnemion/mnemion/pkg/models"
)

// ExecutionRepository is the shared source of truth for workflow
// executions. All writes replace the listed fields in full rather than
// applying deltas, so that the claim protocol is the only coordination
// needed between workers.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)

	// Update replaces the whole execution record and, when the writer still
	// holds the claim, refreshes the claim expiry.
	Update(ctx context.Context, execution *models.WorkflowExecution) error

	// UpdateMonitorInfo writes only progress counters, plugin statuses and
	// timestamps. It is the cheap per-poll write path and also serves as the
	// claim heartbeat.
	UpdateMonitorInfo(ctx context.Context, execution *models.WorkflowExecution) error

	// UpdatePlugins replaces the plugin list only.
	UpdatePlugins(ctx context.Context, execution *models.WorkflowExecution) error

	// TryClaim atomically takes or renews the claim on an execution. It
	// succeeds when the claim is expired, unset, or already held by the
	// same worker.
	TryClaim(ctx context.Context, id, workerID string, ttl time.Duration) (bool, error)

	// ReleaseClaim reverts a stale RUNNING execution to INQUEUE with no
	// claim holder, making it claimable again.
	ReleaseClaim(ctx context.Context, id string) error

	IsCancelling(ctx context.Context, id string) (bool, error)

	// SetCancelling flags the execution for cooperative cancellation,
	// recording who asked for it.
	SetCancelling(ctx context.Context, id, cancelledBy string) error

	// ListQueued returns a page of INQUEUE executions ordered by
	// (priority ASC, createdDate ASC). The cursor is the id of the last
	// execution of the previous page; empty for the first page.
	ListQueued(ctx context.Context, limit int, cursor string) ([]*models.WorkflowExecution, string, error)

	CountRunningForDataset(ctx context.Context, datasetID string) (int, error)

	// FindStaleClaims returns ids of RUNNING executions whose claim expired
	// before the given instant.
	FindStaleClaims(ctx context.Context, now time.Time) ([]string, error)

	// FindRunningStartedBefore returns ids of RUNNING executions that
	// started before the cutoff, used for wall-clock cap enforcement.
	FindRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// FinishedPluginRevisions lists FINISHED, non-invalidated plugins of the
	// given types across all executions of a dataset, newest finished first
	// (ties broken by execution start time, newest first).
	FinishedPluginRevisions(ctx context.Context, datasetID string, types []models.PluginType) ([]models.RevisionInformation, error)
}

// WorkflowRepository stores workflow templates.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
}

// DatasetRepository exposes the dataset fields the engine needs.
type DatasetRepository interface {
	GetByID(ctx context.Context, id string) (*models.Dataset, error)
	Save(ctx context.Context, dataset *models.Dataset) error
}

// XsltRepository stores transformation stylesheets.
type XsltRepository interface {
	GetByID(ctx context.Context, id string) (*models.DatasetXslt, error)
	LatestDefault(ctx context.Context) (*models.DatasetXslt, error)
	Save(ctx context.Context, xslt *models.DatasetXslt) error
}

// ScheduleRepository stores calendar rules for the trigger producer.
type ScheduleRepository interface {
	Due(ctx context.Context, now time.Time) ([]*models.ScheduledWorkflow, error)
	Save(ctx context.Context, schedule *models.ScheduledWorkflow) error
}

// Persistence bundles the repositories behind one backing store.
type Persistence interface {
	Executions() ExecutionRepository
	Workflows() WorkflowRepository
	Datasets() DatasetRepository
	Xslts() XsltRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
