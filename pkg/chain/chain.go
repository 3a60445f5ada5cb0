// Package chain encodes which plugin types may follow which, and resolves
// the concrete predecessor run a new plugin consumes.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// ErrPluginExecutionNotAllowed is returned when no finished, non-invalidated
// run of any allowed predecessor type exists for the dataset.
var ErrPluginExecutionNotAllowed = errors.New("plugin execution not allowed: no eligible predecessor found")

// predecessors lists, per plugin type, the types whose output the plugin
// may consume, in no particular order. Harvests have no predecessor.
var predecessors = map[models.PluginType][]models.PluginType{
	models.PluginTypeOaipmhHarvest:      nil,
	models.PluginTypeValidationExternal: {models.PluginTypeOaipmhHarvest},
	models.PluginTypeTransformation:     {models.PluginTypeValidationExternal},
	models.PluginTypeValidationInternal: {models.PluginTypeTransformation},
	models.PluginTypeNormalization:      {models.PluginTypeValidationInternal},
	models.PluginTypeEnrichment:         {models.PluginTypeNormalization},
	models.PluginTypeMediaProcess:       {models.PluginTypeEnrichment},
	models.PluginTypePreviewIndex:       {models.PluginTypeMediaProcess},
	models.PluginTypePublishIndex:       {models.PluginTypePreviewIndex},
	models.PluginTypeLinkChecking: {
		models.PluginTypePreviewIndex,
		models.PluginTypePublishIndex,
	},
}

// AllowedPredecessors returns the plugin types that may directly precede
// the given type. A nil result means the type needs no predecessor.
func AllowedPredecessors(pluginType models.PluginType) []models.PluginType {
	return predecessors[pluginType]
}

// RequiresPredecessor reports whether the plugin type consumes upstream
// output at all.
func RequiresPredecessor(pluginType models.PluginType) bool {
	return len(predecessors[pluginType]) > 0
}

// Resolver resolves predecessors against the stored execution history.
type Resolver struct {
	executions persistence.ExecutionRepository
}

// NewResolver creates a resolver backed by the given repository.
func NewResolver(executions persistence.ExecutionRepository) *Resolver {
	return &Resolver{executions: executions}
}

// ResolvePredecessor finds the most recent finished, non-invalidated run of
// an allowed predecessor type for the dataset. When enforcedType is
// non-empty the search is restricted to that type, which must itself be an
// allowed predecessor of pluginType. Plugin types without predecessors
// resolve to nil.
func (r *Resolver) ResolvePredecessor(ctx context.Context, datasetID string, pluginType models.PluginType, enforcedType models.PluginType) (*models.RevisionInformation, error) {
	allowed := AllowedPredecessors(pluginType)
	if len(allowed) == 0 {
		return nil, nil
	}

	if enforcedType != "" {
		if !containsType(allowed, enforcedType) {
			return nil, fmt.Errorf("%w: %s cannot follow %s", ErrPluginExecutionNotAllowed, pluginType, enforcedType)
		}

		allowed = []models.PluginType{enforcedType}
	}

	revisions, err := r.executions.FinishedPluginRevisions(ctx, datasetID, allowed)
	if err != nil {
		return nil, fmt.Errorf("failed to look up predecessor for %s: %w", pluginType, err)
	}

	if len(revisions) == 0 {
		return nil, fmt.Errorf("%w: dataset %s has no finished %v", ErrPluginExecutionNotAllowed, datasetID, allowed)
	}

	// Repository ordering puts the most recently finished run first.
	latest := revisions[0]

	return &latest, nil
}

func containsType(types []models.PluginType, wanted models.PluginType) bool {
	for _, t := range types {
		if t == wanted {
			return true
		}
	}

	return false
}
