package models

import "time"

// PluginType identifies one kind of processing step. The values match the
// topology names of the external distributed processing service.
type PluginType string

const (
	PluginTypeOaipmhHarvest      PluginType = "OAIPMH_HARVEST"
	PluginTypeValidationExternal PluginType = "VALIDATION_EXTERNAL"
	PluginTypeTransformation     PluginType = "TRANSFORMATION"
	PluginTypeValidationInternal PluginType = "VALIDATION_INTERNAL"
	PluginTypeNormalization      PluginType = "NORMALIZATION"
	PluginTypeEnrichment         PluginType = "ENRICHMENT"
	PluginTypeMediaProcess       PluginType = "MEDIA_PROCESS"
	PluginTypePreviewIndex       PluginType = "PREVIEW_INDEX"
	PluginTypePublishIndex       PluginType = "PUBLISH_INDEX"
	PluginTypeLinkChecking       PluginType = "LINK_CHECKING"
)

// PluginStatus represents the lifecycle state of a single plugin instance.
type PluginStatus string

const (
	PluginStatusInqueue   PluginStatus = "INQUEUE"
	PluginStatusPending   PluginStatus = "PENDING"
	PluginStatusRunning   PluginStatus = "RUNNING"
	PluginStatusFinished  PluginStatus = "FINISHED"
	PluginStatusFailed    PluginStatus = "FAILED"
	PluginStatusCancelled PluginStatus = "CANCELLED"
)

// IsTerminal reports whether no further status transition is allowed.
func (s PluginStatus) IsTerminal() bool {
	return s == PluginStatusFinished || s == PluginStatusFailed || s == PluginStatusCancelled
}

// RevisionInformation points at the upstream plugin whose output a plugin
// consumes. It is an identifier-based reference (execution id plus plugin
// index), resolved through the repository when needed.
type RevisionInformation struct {
	WorkflowExecutionID string     `json:"workflowExecutionId"`
	PluginIndex         int        `json:"pluginIndex"`
	PluginType          PluginType `json:"pluginType"`
	FinishedDate        *time.Time `json:"finishedDate,omitempty"`
}

// PluginInstance is one step of a workflow execution. It corresponds to
// exactly one task on the external distributed processing service once it
// has been submitted.
type PluginInstance struct {
	PluginType                  PluginType           `json:"pluginType"`
	PluginStatus                PluginStatus         `json:"pluginStatus"`
	ExternalTaskID              string               `json:"externalTaskId,omitempty"`
	ExecutionProgress           ExecutionProgress    `json:"executionProgress"`
	PluginMetadata              PluginMetadata       `json:"pluginMetadata"`
	StartedDate                 *time.Time           `json:"startedDate,omitempty"`
	UpdatedDate                 *time.Time           `json:"updatedDate,omitempty"`
	FinishedDate                *time.Time           `json:"finishedDate,omitempty"`
	FailMessage                 string               `json:"failMessage,omitempty"`
	PreviousRevisionInformation *RevisionInformation `json:"previousRevisionInformation,omitempty"`

	// Invalidated marks a finished plugin whose output has been superseded
	// by a later run of the same plugin type for the dataset. Invalidated
	// plugins are never selected as predecessors.
	Invalidated bool `json:"invalidated,omitempty"`
}

// SetStatusAndResetFailMessage moves the plugin to the given status and
// clears any failure message left over from a previous transition.
func (p *PluginInstance) SetStatusAndResetFailMessage(status PluginStatus) {
	p.PluginStatus = status
	p.FailMessage = ""
}

// Fail marks the plugin FAILED with the given message.
func (p *PluginInstance) Fail(message string) {
	p.PluginStatus = PluginStatusFailed
	p.FailMessage = message
}
