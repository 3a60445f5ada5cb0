// Package dps defines the client interface to the external distributed
// processing service that performs the record-level work of every plugin.
package dps

import "context"

// TaskState is the lifecycle state the processing service reports for a
// submitted task.
type TaskState string

const (
	TaskStatePending             TaskState = "PENDING"
	TaskStateCurrentlyProcessing TaskState = "CURRENTLY_PROCESSING"
	TaskStateProcessed           TaskState = "PROCESSED"
	TaskStateDropped             TaskState = "DROPPED"
)

// IsTerminal reports whether the task can change state no further.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateProcessed || s == TaskStateDropped
}

// Task describes one unit of bulk processing to submit. Parameters are
// topology-specific; the revision fields tell the service which record
// revision to read and which to write.
type Task struct {
	DatasetID      string            `json:"datasetId"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	InputRevision  *Revision         `json:"inputRevision,omitempty"`
	OutputRevision *Revision         `json:"outputRevision"`
}

// Revision identifies a record revision on the processing service.
type Revision struct {
	ProviderID   string `json:"providerId"`
	RevisionName string `json:"revisionName"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// TaskProgress is one progress observation for a running task.
type TaskProgress struct {
	State            TaskState `json:"state"`
	ExpectedRecords  int64     `json:"expectedRecords"`
	ProcessedRecords int64     `json:"processedRecords"`
	Errors           int64     `json:"errors"`

	// Info carries the drop reason when State is DROPPED.
	Info string `json:"info,omitempty"`
}

// Client talks to the distributed processing service. Implementations must
// be safe for concurrent use; all workers share one client.
type Client interface {
	// SubmitTask submits a task to the given topology and returns the
	// external task identifier.
	SubmitTask(ctx context.Context, topology string, task *Task) (string, error)

	// TaskProgress performs one progress poll.
	TaskProgress(ctx context.Context, topology, externalTaskID string) (*TaskProgress, error)

	// KillTask requests best-effort cancellation of a task. Killing an
	// already terminal task is a no-op.
	KillTask(ctx context.Context, topology, externalTaskID, reason string) error
}
