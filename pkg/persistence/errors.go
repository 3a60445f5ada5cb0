// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates a workflow execution was not found by
	// the given identifier.
	ErrExecutionNotFound = errors.New("workflow execution not found")

	// ErrWorkflowNotFound indicates a workflow template was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrDatasetNotFound indicates a dataset was not found.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrXsltNotFound indicates no matching stylesheet exists.
	ErrXsltNotFound = errors.New("xslt not found")

	// ErrExecutionTerminal indicates a write was attempted against an
	// execution that already reached a terminal status.
	ErrExecutionTerminal = errors.New("workflow execution is terminal")

	// ErrClaimLost indicates a guarded write found the claim no longer held
	// by the writing worker. The worker must abort silently; reclamation
	// will make the execution runnable again.
	ErrClaimLost = errors.New("execution claim lost")
)

// IsClaimLost checks if an error indicates the worker lost its claim.
func IsClaimLost(err error) bool {
	return errors.Is(err, ErrClaimLost)
}

// ExecutionError wraps execution-related storage errors with context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g. "TryClaim", "Update")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsWorkflowNotFound checks if an error indicates a missing template.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsDatasetNotFound checks if an error indicates a missing dataset.
func IsDatasetNotFound(err error) bool {
	return errors.Is(err, ErrDatasetNotFound)
}
