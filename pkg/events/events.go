// Package events defines the event types exchanged between the trigger
// producers, the scheduler and the executors.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/mnemion/mnemion/pkg/models"
)

type EventType string

// Topic is the Kafka topic all execution lifecycle events travel on.
const Topic = "mnemion.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// ExecutionRequestedEvent asks the scheduler to consider a freshly
	// enqueued execution without waiting for the next tick.
	ExecutionRequestedEvent EventType = "execution.requested"

	// Lifecycle notifications emitted by the executor.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionFinishedEvent  EventType = "execution.finished"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	DatasetID   string         `json:"dataset_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID, datasetID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		DatasetID:   datasetID,
		Metadata:    make(map[string]any),
	}
}

type ExecutionRequested struct {
	BaseEvent

	Priority int `json:"priority"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	FirstPluginType models.PluginType `json:"first_plugin_type"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionFinished struct {
	BaseEvent

	PluginsExecuted int           `json:"plugins_executed"`
	Duration        time.Duration `json:"duration"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

type ExecutionFailed struct {
	BaseEvent

	FailedPluginType models.PluginType `json:"failed_plugin_type"`
	Error            string            `json:"error"`
	Duration         time.Duration     `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	CancelledBy string        `json:"cancelled_by"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}
