// Package models defines the core domain models of the orchestration engine.
package models

import "time"

// Workflow is the template from which executions are created: the ordered
// plugin configuration a dataset owner has set up for their dataset.
type Workflow struct {
	ID        string           `json:"id"        validate:"required"`
	DatasetID string           `json:"datasetId" validate:"required"`
	Plugins   []PluginMetadata `json:"plugins"   validate:"required,min=1,dive"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// EnabledPlugins returns the template's plugin metadata filtered down to
// the enabled entries, preserving order.
func (w *Workflow) EnabledPlugins() []PluginMetadata {
	enabled := make([]PluginMetadata, 0, len(w.Plugins))

	for _, metadata := range w.Plugins {
		if metadata.Enabled {
			enabled = append(enabled, metadata)
		}
	}

	return enabled
}
