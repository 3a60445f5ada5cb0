package driver

import (
	"strconv"
	"time"

	"github.com/mnemion/mnemion/pkg/dps"
	"github.com/mnemion/mnemion/pkg/models"
)

var topologies = map[models.PluginType]string{
	models.PluginTypeOaipmhHarvest:      "oai_harvest",
	models.PluginTypeValidationExternal: "validation",
	models.PluginTypeTransformation:     "xslt_transform",
	models.PluginTypeValidationInternal: "validation",
	models.PluginTypeNormalization:      "normalization",
	models.PluginTypeEnrichment:         "enrichment",
	models.PluginTypeMediaProcess:       "media_process",
	models.PluginTypePreviewIndex:       "indexer",
	models.PluginTypePublishIndex:       "indexer",
	models.PluginTypeLinkChecking:       "link_checker",
}

// TopologyName returns the processing service topology that runs tasks of
// the given plugin type.
func TopologyName(pluginType models.PluginType) string {
	return topologies[pluginType]
}

// composeTask builds the task submission for a plugin. The parameter set
// depends on the plugin type; the input revision points at the predecessor
// output and the output revision is named after the plugin itself.
func composeTask(execution *models.WorkflowExecution, plugin *models.PluginInstance, providerID string) *dps.Task {
	task := &dps.Task{
		DatasetID:  execution.DatasetID,
		Parameters: map[string]string{},
		OutputRevision: &dps.Revision{
			ProviderID:   providerID,
			RevisionName: string(plugin.PluginType),
			Timestamp:    revisionTimestamp(execution.CreatedDate),
		},
	}

	if previous := plugin.PreviousRevisionInformation; previous != nil {
		input := &dps.Revision{
			ProviderID:   providerID,
			RevisionName: string(previous.PluginType),
		}
		if previous.FinishedDate != nil {
			input.Timestamp = revisionTimestamp(*previous.FinishedDate)
		}

		task.InputRevision = input
	} else if predecessor := precedingFinishedPlugin(execution, plugin); predecessor != nil {
		// Plugins past the head consume their predecessor's output. All
		// plugins of one execution share the creation-date revision
		// timestamp, so the predecessor's output revision is addressable
		// without a stored finished date.
		task.InputRevision = &dps.Revision{
			ProviderID:   providerID,
			RevisionName: string(predecessor.PluginType),
			Timestamp:    revisionTimestamp(execution.CreatedDate),
		}
	}

	metadata := plugin.PluginMetadata

	switch plugin.PluginType {
	case models.PluginTypeOaipmhHarvest:
		task.Parameters["HARVEST_URL"] = metadata.HarvestURL
		task.Parameters["METADATA_FORMAT"] = metadata.MetadataFormat

		if metadata.SetSpec != "" {
			task.Parameters["SET_SPEC"] = metadata.SetSpec
		}
	case models.PluginTypeValidationExternal, models.PluginTypeValidationInternal:
		task.Parameters["SCHEMAS_ZIP_URL"] = metadata.SchemasZipURL
		task.Parameters["SCHEMA_ROOT_PATH"] = metadata.SchemaRootPath
		task.Parameters["SCHEMATRON_ROOT_PATH"] = metadata.SchematronRootPath
		task.Parameters["VALIDATION_MODE"] = validationMode(plugin.PluginType)
	case models.PluginTypeTransformation:
		task.Parameters["XSLT_ID"] = metadata.XsltID
		task.Parameters["DATASET_NAME"] = metadata.DatasetName
	case models.PluginTypePreviewIndex, models.PluginTypePublishIndex:
		task.Parameters["TARGET_DATABASE"] = indexingTarget(plugin.PluginType)
		task.Parameters["USE_ALT_INDEXING_ENV"] = strconv.FormatBool(metadata.UseAlternativeIndexingEnvironment)
	case models.PluginTypeLinkChecking:
		task.Parameters["SAMPLE_SIZE"] = strconv.Itoa(metadata.SampleSize)
	case models.PluginTypeNormalization, models.PluginTypeEnrichment, models.PluginTypeMediaProcess:
		// record-level transforms take no extra parameters
	}

	return task
}

// precedingFinishedPlugin returns the nearest plugin before the given one
// that already finished, or nil when the plugin heads the execution.
func precedingFinishedPlugin(execution *models.WorkflowExecution, plugin *models.PluginInstance) *models.PluginInstance {
	index := execution.PluginIndex(plugin)

	for i := index - 1; i >= 0; i-- {
		if execution.Plugins[i].PluginStatus == models.PluginStatusFinished {
			return execution.Plugins[i]
		}
	}

	return nil
}

func validationMode(pluginType models.PluginType) string {
	if pluginType == models.PluginTypeValidationExternal {
		return "EXTERNAL"
	}

	return "INTERNAL"
}

func indexingTarget(pluginType models.PluginType) string {
	if pluginType == models.PluginTypePreviewIndex {
		return "PREVIEW"
	}

	return "PUBLISH"
}

func revisionTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
