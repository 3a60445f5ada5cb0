package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow execution.
type WorkflowStatus string

const (
	WorkflowStatusInqueue   WorkflowStatus = "INQUEUE"
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusFinished  WorkflowStatus = "FINISHED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether the execution can never be mutated again.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusFinished || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// CancelledBySystemMinuteCapExpire is persisted verbatim as the canceller
// identity when the monitor cancels an execution that exceeded its
// wall-clock budget. User-initiated cancellations carry the user id instead.
const CancelledBySystemMinuteCapExpire = "SYSTEM_MINUTE_CAP_EXPIRE"

// WorkflowExecution is one concrete run of a workflow for a dataset: an
// ordered list of plugin instances plus shared lifecycle state. Executions
// are mutated by at most one worker at a time, enforced by the embedded
// claim, and are never deleted once terminal.
type WorkflowExecution struct {
	ID               string            `json:"id"`
	DatasetID        string            `json:"datasetId"`
	WorkflowPriority int               `json:"workflowPriority"`
	WorkflowStatus   WorkflowStatus    `json:"workflowStatus"`
	Plugins          []*PluginInstance `json:"plugins"`
	CreatedDate      time.Time         `json:"createdDate"`
	StartedDate      *time.Time        `json:"startedDate,omitempty"`
	UpdatedDate      *time.Time        `json:"updatedDate,omitempty"`
	FinishedDate     *time.Time        `json:"finishedDate,omitempty"`
	Cancelling       bool              `json:"cancelling"`
	CancelledBy      string            `json:"cancelledBy,omitempty"`

	// Claim lease. A worker may act on the execution only while WorkerID
	// matches its own id and the expiry lies in the future.
	WorkerID    string     `json:"workerId,omitempty"`
	ClaimExpiry *time.Time `json:"claimExpiry,omitempty"`
}

// NewWorkflowExecution builds an un-persisted execution in INQUEUE state.
func NewWorkflowExecution(datasetID string, plugins []*PluginInstance, priority int) *WorkflowExecution {
	return &WorkflowExecution{
		ID:               NewExecutionID(),
		DatasetID:        datasetID,
		WorkflowPriority: priority,
		WorkflowStatus:   WorkflowStatusInqueue,
		Plugins:          plugins,
		CreatedDate:      time.Now().UTC(),
	}
}

// ClaimedBy reports whether the worker currently holds a live claim.
func (e *WorkflowExecution) ClaimedBy(workerID string, now time.Time) bool {
	return e.WorkerID == workerID && e.ClaimExpiry != nil && now.Before(*e.ClaimExpiry)
}

// CurrentPlugin returns the first plugin that has not reached a terminal
// state, or nil when every plugin is terminal. While the execution is
// RUNNING this is the single active plugin.
func (e *WorkflowExecution) CurrentPlugin() *PluginInstance {
	for _, plugin := range e.Plugins {
		if !plugin.PluginStatus.IsTerminal() {
			return plugin
		}
	}

	return nil
}

// PluginIndex returns the position of the given plugin in the execution,
// or -1 when the plugin does not belong to it.
func (e *WorkflowExecution) PluginIndex(plugin *PluginInstance) int {
	for i, candidate := range e.Plugins {
		if candidate == plugin {
			return i
		}
	}

	return -1
}

// OutcomeStatus derives the terminal execution status from the plugin
// states: CANCELLED wins over FAILED, FAILED wins over FINISHED.
func (e *WorkflowExecution) OutcomeStatus() WorkflowStatus {
	outcome := WorkflowStatusFinished

	for _, plugin := range e.Plugins {
		switch plugin.PluginStatus {
		case PluginStatusCancelled:
			return WorkflowStatusCancelled
		case PluginStatusFailed:
			outcome = WorkflowStatusFailed
		case PluginStatusInqueue, PluginStatusPending, PluginStatusRunning:
			// A non-terminal plugin means the run was interrupted.
			outcome = WorkflowStatusFailed
		case PluginStatusFinished:
		}
	}

	return outcome
}
