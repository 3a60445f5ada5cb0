// Package driver submits plugins to the distributed processing service and
// translates its task states into plugin states.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mnemion/mnemion/pkg/dps"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

const (
	submitRetries    = 3
	submitRetryDelay = 5 * time.Second
)

// MonitorResult is the outcome of one monitor poll, already translated
// into plugin terms.
type MonitorResult struct {
	State    dps.TaskState
	Progress models.ExecutionProgress

	// Info carries the drop reason when State is DROPPED.
	Info string
}

// PluginStatus maps the task state to the plugin status it implies.
func (r *MonitorResult) PluginStatus() models.PluginStatus {
	switch r.State {
	case dps.TaskStateProcessed:
		return models.PluginStatusFinished
	case dps.TaskStateDropped:
		return models.PluginStatusFailed
	case dps.TaskStateCurrentlyProcessing:
		return models.PluginStatusRunning
	case dps.TaskStatePending:
		return models.PluginStatusPending
	}

	return models.PluginStatusPending
}

// Driver drives plugins through their external task lifecycle. One driver
// is shared by all workers of a process; it is safe for concurrent use.
type Driver struct {
	client        dps.Client
	executions    persistence.ExecutionRepository
	providerID    string
	pendingBudget int
	logger        *slog.Logger

	mu sync.Mutex
	// consecutive transient monitor failures per external task, reset on
	// every successful poll
	pendingPolls map[string]int
}

// NewDriver creates a driver. pendingBudget is the number of consecutive
// transient monitor failures tolerated (reported as PENDING) before an
// error is propagated.
func NewDriver(client dps.Client, executions persistence.ExecutionRepository, providerID string, pendingBudget int, logger *slog.Logger) *Driver {
	return &Driver{
		client:        client,
		executions:    executions,
		providerID:    providerID,
		pendingBudget: pendingBudget,
		logger:        logger.With("module", "plugin_driver"),
		pendingPolls:  make(map[string]int),
	}
}

// Execute composes the external task for the plugin, submits it, persists
// the assigned task id, and only then moves the plugin to RUNNING. The
// persist-before-RUNNING order guarantees a RUNNING plugin always has a
// stored external task id.
func (d *Driver) Execute(ctx context.Context, execution *models.WorkflowExecution, plugin *models.PluginInstance) error {
	topology := TopologyName(plugin.PluginType)
	task := composeTask(execution, plugin, d.providerID)

	externalTaskID, err := d.submitWithRetry(ctx, topology, task)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	plugin.ExternalTaskID = externalTaskID
	plugin.StartedDate = &now
	plugin.UpdatedDate = &now

	err = d.executions.UpdatePlugins(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to persist external task id %s: %w", externalTaskID, err)
	}

	plugin.SetStatusAndResetFailMessage(models.PluginStatusRunning)

	d.logger.InfoContext(ctx, "Submitted plugin task",
		"execution_id", execution.ID,
		"plugin_type", plugin.PluginType,
		"topology", topology,
		"external_task_id", externalTaskID,
	)

	return nil
}

// Monitor performs one progress poll. Transient upstream failures are
// absorbed and reported as PENDING until the consecutive-failure budget is
// exhausted; the counter resets on every successful poll.
func (d *Driver) Monitor(ctx context.Context, plugin *models.PluginInstance) (*MonitorResult, error) {
	topology := TopologyName(plugin.PluginType)

	progress, err := d.client.TaskProgress(ctx, topology, plugin.ExternalTaskID)
	if err != nil {
		if dps.IsTransient(err) && d.recordTransientPoll(plugin.ExternalTaskID) {
			d.logger.WarnContext(ctx, "Transient monitor failure, reporting task as pending",
				"external_task_id", plugin.ExternalTaskID,
				"error", err,
			)

			return &MonitorResult{State: dps.TaskStatePending, Progress: plugin.ExecutionProgress}, nil
		}

		d.resetTransientPolls(plugin.ExternalTaskID)

		return nil, err
	}

	d.resetTransientPolls(plugin.ExternalTaskID)

	return &MonitorResult{
		State: progress.State,
		Progress: models.ExecutionProgress{
			ExpectedRecords:  progress.ExpectedRecords,
			ProcessedRecords: progress.ProcessedRecords,
			Errors:           progress.Errors,
		},
		Info: progress.Info,
	}, nil
}

// Cancel requests best-effort cancellation of the plugin's task. It is
// idempotent: plugins without a task, or already terminal ones, are a no-op.
func (d *Driver) Cancel(ctx context.Context, plugin *models.PluginInstance, reason string) error {
	if plugin.ExternalTaskID == "" || plugin.PluginStatus.IsTerminal() {
		return nil
	}

	err := d.client.KillTask(ctx, TopologyName(plugin.PluginType), plugin.ExternalTaskID, reason)
	if err != nil {
		return fmt.Errorf("failed to kill task %s: %w", plugin.ExternalTaskID, err)
	}

	return nil
}

func (d *Driver) submitWithRetry(ctx context.Context, topology string, task *dps.Task) (string, error) {
	var lastErr error

	for attempt := range submitRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(submitRetryDelay):
			}
		}

		externalTaskID, err := d.client.SubmitTask(ctx, topology, task)
		if err == nil {
			return externalTaskID, nil
		}

		if !dps.IsTransient(err) {
			return "", err
		}

		lastErr = err
	}

	return "", lastErr
}

// recordTransientPoll counts a consecutive transient failure and reports
// whether it is still within budget.
func (d *Driver) recordTransientPoll(externalTaskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pendingPolls[externalTaskID]++

	return d.pendingPolls[externalTaskID] <= d.pendingBudget
}

func (d *Driver) resetTransientPolls(externalTaskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pendingPolls, externalTaskID)
}
