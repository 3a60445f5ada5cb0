// Package executor runs claimed workflow executions to completion: it
// drives each plugin through the external processing service and persists
// every state transition.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnemion/mnemion/pkg/dps"
	"github.com/mnemion/mnemion/pkg/driver"
	"github.com/mnemion/mnemion/pkg/eventbus"
	"github.com/mnemion/mnemion/pkg/events"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/otelhelper"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// PluginDriver is what the executor needs from the plugin driver.
type PluginDriver interface {
	Execute(ctx context.Context, execution *models.WorkflowExecution, plugin *models.PluginInstance) error
	Monitor(ctx context.Context, plugin *models.PluginInstance) (*driver.MonitorResult, error)
	Cancel(ctx context.Context, plugin *models.PluginInstance, reason string) error
}

// Claimer takes the exclusive claim on an execution for this worker. A nil
// execution with a nil error means someone else holds it.
type Claimer interface {
	ClaimExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
}

// Config carries the executor timing knobs.
type Config struct {
	// PollInterval is the period between task progress polls.
	PollInterval time.Duration

	// StallTimeout fails a plugin whose processed-record count has not
	// moved for this long.
	StallTimeout time.Duration
}

// pluginOutcome tells the run loop what to do after a plugin leaves the
// monitor loop.
type pluginOutcome int

const (
	outcomeFinished pluginOutcome = iota
	outcomeFailed
	outcomeCancelRequested
)

// Executor is safe for concurrent use; the scheduler shares one instance
// across all workers of the process.
type Executor struct {
	executions persistence.ExecutionRepository
	driver     PluginDriver
	claimer    Claimer
	publisher  eventbus.EventPublisher
	workerID   string
	config     Config
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewExecutor(
	executions persistence.ExecutionRepository,
	pluginDriver PluginDriver,
	claimer Claimer,
	publisher eventbus.EventPublisher,
	workerID string,
	config Config,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Executor {
	return &Executor{
		executions: executions,
		driver:     pluginDriver,
		claimer:    claimer,
		publisher:  publisher,
		workerID:   workerID,
		config:     config,
		logger:     logger.With("module", "workflow_executor", "worker_id", workerID),
		tracer:     tracer,
	}
}

// Run claims and executes one workflow execution to a terminal state. A
// failed claim is not an error: the executor returns without side effects
// and leaves the execution to whichever worker holds it.
func (e *Executor) Run(ctx context.Context, executionID string) error {
	execution, err := e.claimer.ClaimExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to claim execution %s: %w", executionID, err)
	}

	if execution == nil {
		e.logger.DebugContext(ctx, "Execution not claimable, skipping", "execution_id", executionID)

		return nil
	}

	execution.WorkerID = e.workerID

	logger := e.logger.With("execution_id", execution.ID, "dataset_id", execution.DatasetID)

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "executor.run",
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
			attribute.String(otelhelper.DatasetIDKey, execution.DatasetID),
			attribute.String(otelhelper.WorkerIDKey, e.workerID),
		)
		defer span.End()
	}

	if execution.WorkflowStatus == models.WorkflowStatusInqueue {
		err = e.initialize(ctx, execution)
		if err != nil {
			return e.abortOnClaimLoss(ctx, logger, err)
		}
	}

	logger.InfoContext(ctx, "Starting execution run", "plugins", len(execution.Plugins))

	cancelRequested := false

	for plugin := execution.CurrentPlugin(); plugin != nil; plugin = execution.CurrentPlugin() {
		if plugin.PluginStatus == models.PluginStatusInqueue {
			cancelling, cancelErr := e.executions.IsCancelling(ctx, execution.ID)
			if cancelErr != nil {
				return e.abortOnClaimLoss(ctx, logger, cancelErr)
			}

			if cancelling {
				cancelRequested = true

				break
			}

			execErr := e.driver.Execute(ctx, execution, plugin)
			if execErr != nil {
				if persistence.IsClaimLost(execErr) {
					return e.abortOnClaimLoss(ctx, logger, execErr)
				}

				logger.ErrorContext(ctx, "Plugin submission failed",
					"plugin_type", plugin.PluginType, "error", execErr)
				plugin.Fail(execErr.Error())

				break
			}
		}

		outcome, monitorErr := e.monitorPlugin(ctx, execution, plugin)
		if monitorErr != nil {
			return e.abortOnClaimLoss(ctx, logger, monitorErr)
		}

		if outcome == outcomeCancelRequested {
			cancelRequested = true

			break
		}

		if outcome == outcomeFailed {
			break
		}

		logger.InfoContext(ctx, "Plugin finished", "plugin_type", plugin.PluginType)
	}

	if cancelRequested {
		err = e.cancelRemaining(ctx, execution)
		if err != nil {
			return e.abortOnClaimLoss(ctx, logger, err)
		}
	}

	return e.finalize(ctx, logger, execution)
}

// initialize moves a freshly claimed INQUEUE execution to RUNNING.
func (e *Executor) initialize(ctx context.Context, execution *models.WorkflowExecution) error {
	now := time.Now().UTC()
	execution.WorkflowStatus = models.WorkflowStatusRunning
	execution.StartedDate = &now
	execution.UpdatedDate = &now

	err := e.executions.UpdateMonitorInfo(ctx, execution)
	if err != nil {
		return err
	}

	if e.publisher != nil {
		event := events.ExecutionStarted{
			BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, execution.ID, execution.DatasetID),
		}
		if first := execution.CurrentPlugin(); first != nil {
			event.FirstPluginType = first.PluginType
		}

		event.WorkerID = e.workerID

		publishErr := e.publisher.Publish(ctx, execution.DatasetID, event)
		if publishErr != nil {
			e.logger.WarnContext(ctx, "Failed to publish start event",
				"execution_id", execution.ID, "error", publishErr)
		}
	}

	return nil
}

// monitorPlugin polls the plugin's task until it terminates, cancellation
// is requested, or the claim is lost. All persisted writes go through the
// cheap monitor-info path, which doubles as the claim heartbeat.
func (e *Executor) monitorPlugin(ctx context.Context, execution *models.WorkflowExecution, plugin *models.PluginInstance) (pluginOutcome, error) {
	lastProcessed := plugin.ExecutionProgress.ProcessedRecords
	lastProgressChange := time.Now()

	for {
		select {
		case <-ctx.Done():
			return outcomeCancelRequested, nil
		case <-time.After(e.config.PollInterval):
		}

		cancelling, err := e.executions.IsCancelling(ctx, execution.ID)
		if err != nil {
			return 0, err
		}

		if cancelling {
			return outcomeCancelRequested, nil
		}

		result, err := e.driver.Monitor(ctx, plugin)
		if err != nil {
			plugin.Fail(err.Error())
			e.stampPluginEnd(plugin)

			return outcomeFailed, e.persistMonitorInfo(ctx, execution)
		}

		plugin.ExecutionProgress.Advance(result.Progress)

		now := time.Now().UTC()
		plugin.UpdatedDate = &now
		execution.UpdatedDate = &now

		if result.State == dps.TaskStateDropped {
			reason := result.Info
			if reason == "" {
				reason = "task dropped by processing service"
			}

			plugin.Fail(reason)
			e.stampPluginEnd(plugin)

			return outcomeFailed, e.persistMonitorInfo(ctx, execution)
		}

		plugin.SetStatusAndResetFailMessage(result.PluginStatus())

		if plugin.PluginStatus == models.PluginStatusRunning {
			if plugin.ExecutionProgress.ProcessedRecords != lastProcessed {
				lastProcessed = plugin.ExecutionProgress.ProcessedRecords
				lastProgressChange = time.Now()
			} else if time.Since(lastProgressChange) > e.config.StallTimeout {
				plugin.Fail(fmt.Sprintf("no record progress for %s", e.config.StallTimeout))
				e.stampPluginEnd(plugin)

				return outcomeFailed, e.persistMonitorInfo(ctx, execution)
			}
		}

		if plugin.PluginStatus == models.PluginStatusFinished {
			e.stampPluginEnd(plugin)

			return outcomeFinished, e.persistMonitorInfo(ctx, execution)
		}

		err = e.persistMonitorInfo(ctx, execution)
		if err != nil {
			return 0, err
		}
	}
}

// persistMonitorInfo writes the cheap monitor path and surfaces only claim
// loss; other repository errors are logged and absorbed, a later poll or
// the finalize write will retry.
func (e *Executor) persistMonitorInfo(ctx context.Context, execution *models.WorkflowExecution) error {
	err := e.executions.UpdateMonitorInfo(ctx, execution)
	if err == nil {
		return nil
	}

	if persistence.IsClaimLost(err) || persistence.IsExecutionNotFound(err) {
		return err
	}

	e.logger.WarnContext(ctx, "Monitor info write failed, will retry on next poll",
		"execution_id", execution.ID, "error", err)

	return nil
}

// cancelRemaining runs the cancellation path: every not-yet-terminal plugin
// gets a best-effort kill and is marked CANCELLED. The active plugin is
// given time to reach a terminal task state first.
func (e *Executor) cancelRemaining(ctx context.Context, execution *models.WorkflowExecution) error {
	latest, err := e.executions.GetByID(ctx, execution.ID)
	if err == nil {
		execution.Cancelling = true
		execution.CancelledBy = latest.CancelledBy
	}

	for _, plugin := range execution.Plugins {
		if plugin.PluginStatus.IsTerminal() {
			continue
		}

		cancelErr := e.driver.Cancel(ctx, plugin, execution.CancelledBy)
		if cancelErr != nil {
			e.logger.WarnContext(ctx, "Best-effort task kill failed",
				"execution_id", execution.ID,
				"plugin_type", plugin.PluginType,
				"error", cancelErr)
		}

		if plugin.ExternalTaskID != "" && !plugin.PluginStatus.IsTerminal() {
			err = e.awaitTaskEnd(ctx, execution, plugin)
			if err != nil {
				return err
			}
		}

		plugin.SetStatusAndResetFailMessage(models.PluginStatusCancelled)
		e.stampPluginEnd(plugin)
	}

	return nil
}

// awaitTaskEnd polls a killed task until the processing service reports a
// terminal state, bounded by the stall timeout. Every poll renews the claim
// through the monitor-info write; the wait can outlast the lease otherwise.
// It returns an error only when the claim is lost.
func (e *Executor) awaitTaskEnd(ctx context.Context, execution *models.WorkflowExecution, plugin *models.PluginInstance) error {
	deadline := time.Now().Add(e.config.StallTimeout)

	for time.Now().Before(deadline) {
		result, err := e.driver.Monitor(ctx, plugin)
		if err != nil {
			return nil
		}

		if result.State.IsTerminal() {
			return nil
		}

		err = e.persistMonitorInfo(ctx, execution)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.config.PollInterval):
		}
	}

	return nil
}

// finalize writes the terminal record exactly once and emits the matching
// lifecycle event.
func (e *Executor) finalize(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution) error {
	now := time.Now().UTC()
	execution.FinishedDate = &now
	execution.UpdatedDate = &now
	execution.WorkflowStatus = execution.OutcomeStatus()

	err := e.executions.Update(ctx, execution)
	if err != nil {
		return e.abortOnClaimLoss(ctx, logger, err)
	}

	logger.InfoContext(ctx, "Execution finalized", "status", execution.WorkflowStatus)

	e.publishOutcome(ctx, execution)

	return nil
}

func (e *Executor) publishOutcome(ctx context.Context, execution *models.WorkflowExecution) {
	if e.publisher == nil {
		return
	}

	duration := time.Duration(0)
	if execution.StartedDate != nil && execution.FinishedDate != nil {
		duration = execution.FinishedDate.Sub(*execution.StartedDate)
	}

	var event eventbus.Event

	switch execution.WorkflowStatus {
	case models.WorkflowStatusFinished:
		finished := 0

		for _, plugin := range execution.Plugins {
			if plugin.PluginStatus == models.PluginStatusFinished {
				finished++
			}
		}

		event = events.ExecutionFinished{
			BaseEvent:       events.NewBaseEvent(events.ExecutionFinishedEvent, execution.ID, execution.DatasetID),
			PluginsExecuted: finished,
			Duration:        duration,
		}
	case models.WorkflowStatusCancelled:
		event = events.ExecutionCancelled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.ID, execution.DatasetID),
			CancelledBy: execution.CancelledBy,
			Duration:    duration,
		}
	case models.WorkflowStatusFailed:
		failed := events.ExecutionFailed{
			BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, execution.ID, execution.DatasetID),
			Duration:  duration,
		}

		for _, plugin := range execution.Plugins {
			if plugin.PluginStatus == models.PluginStatusFailed {
				failed.FailedPluginType = plugin.PluginType
				failed.Error = plugin.FailMessage

				break
			}
		}

		event = failed
	case models.WorkflowStatusInqueue, models.WorkflowStatusRunning:
		return
	}

	err := e.publisher.Publish(ctx, execution.DatasetID, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish outcome event",
			"execution_id", execution.ID, "error", err)
	}
}

func (e *Executor) stampPluginEnd(plugin *models.PluginInstance) {
	now := time.Now().UTC()
	plugin.UpdatedDate = &now
	plugin.FinishedDate = &now
}

// abortOnClaimLoss converts a lost claim into a silent return: the stale
// reclamation pass will hand the execution to another worker.
func (e *Executor) abortOnClaimLoss(ctx context.Context, logger *slog.Logger, err error) error {
	if persistence.IsClaimLost(err) {
		logger.WarnContext(ctx, "Claim lost mid-run, aborting without side effects", "error", err)

		return nil
	}

	return err
}
