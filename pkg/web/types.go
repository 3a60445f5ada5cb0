// Package web provides the HTTP operations API for workflow executions.
package web

// CreateExecutionRequest is the request body for enqueueing an execution.
type CreateExecutionRequest struct {
	DatasetID               string `json:"datasetId"                         validate:"required"`
	WorkflowID              string `json:"workflowId"                        validate:"required"`
	Priority                int    `json:"priority"                          validate:"gte=0"`
	EnforcedPredecessorType string `json:"enforcedPredecessorType,omitempty"`
}

// CancelExecutionRequest is the request body for cancelling an execution.
type CancelExecutionRequest struct {
	CancelledBy string `json:"cancelledBy" validate:"required"`
}
