package dps

import (
	"errors"
	"fmt"
)

// ExternalTaskError is returned for failures talking to the processing
// service. Transient errors (5xx, connection failures) may be retried by
// the caller; non-transient ones (4xx, rejected tasks) must not be.
type ExternalTaskError struct {
	Op             string
	Topology       string
	ExternalTaskID string
	StatusCode     int
	Transient      bool
	Err            error
}

func (e *ExternalTaskError) Error() string {
	if e.ExternalTaskID != "" {
		return fmt.Sprintf("%s failed for task %s on topology %s: %v", e.Op, e.ExternalTaskID, e.Topology, e.Err)
	}

	return fmt.Sprintf("%s failed on topology %s: %v", e.Op, e.Topology, e.Err)
}

func (e *ExternalTaskError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is a retryable upstream failure.
func IsTransient(err error) bool {
	var taskErr *ExternalTaskError
	if errors.As(err, &taskErr) {
		return taskErr.Transient
	}

	return false
}
