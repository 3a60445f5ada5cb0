package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemion/mnemion/pkg/models"
)

func TestTopologyName(t *testing.T) {
	assert.Equal(t, "oai_harvest", TopologyName(models.PluginTypeOaipmhHarvest))
	assert.Equal(t, "validation", TopologyName(models.PluginTypeValidationExternal))
	assert.Equal(t, "validation", TopologyName(models.PluginTypeValidationInternal))
	assert.Equal(t, "indexer", TopologyName(models.PluginTypePreviewIndex))
	assert.Equal(t, "indexer", TopologyName(models.PluginTypePublishIndex))
	assert.Equal(t, "link_checker", TopologyName(models.PluginTypeLinkChecking))
}

func TestComposeTask(t *testing.T) {
	tests := []struct {
		name           string
		plugin         *models.PluginInstance
		expectedParams map[string]string
	}{
		{
			name: "harvest",
			plugin: &models.PluginInstance{
				PluginType: models.PluginTypeOaipmhHarvest,
				PluginMetadata: models.PluginMetadata{
					PluginType:     models.PluginTypeOaipmhHarvest,
					HarvestURL:     "https://provider.example.org/oai",
					MetadataFormat: "edm",
					SetSpec:        "paintings",
				},
			},
			expectedParams: map[string]string{
				"HARVEST_URL":     "https://provider.example.org/oai",
				"METADATA_FORMAT": "edm",
				"SET_SPEC":        "paintings",
			},
		},
		{
			name: "external validation",
			plugin: &models.PluginInstance{
				PluginType: models.PluginTypeValidationExternal,
				PluginMetadata: models.PluginMetadata{
					PluginType:         models.PluginTypeValidationExternal,
					SchemasZipURL:      "https://schemas.example.org/edm.zip",
					SchemaRootPath:     "EDM.xsd",
					SchematronRootPath: "schematron/schematron.xsl",
				},
			},
			expectedParams: map[string]string{
				"SCHEMAS_ZIP_URL":      "https://schemas.example.org/edm.zip",
				"SCHEMA_ROOT_PATH":     "EDM.xsd",
				"SCHEMATRON_ROOT_PATH": "schematron/schematron.xsl",
				"VALIDATION_MODE":      "EXTERNAL",
			},
		},
		{
			name: "internal validation",
			plugin: &models.PluginInstance{
				PluginType: models.PluginTypeValidationInternal,
				PluginMetadata: models.PluginMetadata{
					PluginType:         models.PluginTypeValidationInternal,
					SchemasZipURL:      "https://schemas.example.org/edm.zip",
					SchemaRootPath:     "EDM.xsd",
					SchematronRootPath: "schematron/schematron.xsl",
				},
			},
			expectedParams: map[string]string{
				"SCHEMAS_ZIP_URL":      "https://schemas.example.org/edm.zip",
				"SCHEMA_ROOT_PATH":     "EDM.xsd",
				"SCHEMATRON_ROOT_PATH": "schematron/schematron.xsl",
				"VALIDATION_MODE":      "INTERNAL",
			},
		},
		{
			name: "transformation",
			plugin: &models.PluginInstance{
				PluginType: models.PluginTypeTransformation,
				PluginMetadata: models.PluginMetadata{
					PluginType:  models.PluginTypeTransformation,
					XsltID:      "xslt-7",
					DatasetName: "dataset-1_Paintings",
				},
			},
			expectedParams: map[string]string{
				"XSLT_ID":      "xslt-7",
				"DATASET_NAME": "dataset-1_Paintings",
			},
		},
		{
			name: "preview indexing",
			plugin: &models.PluginInstance{
				PluginType: models.PluginTypePreviewIndex,
				PluginMetadata: models.PluginMetadata{
					PluginType:                        models.PluginTypePreviewIndex,
					UseAlternativeIndexingEnvironment: true,
				},
			},
			expectedParams: map[string]string{
				"TARGET_DATABASE":      "PREVIEW",
				"USE_ALT_INDEXING_ENV": "true",
			},
		},
		{
			name: "publish indexing",
			plugin: &models.PluginInstance{
				PluginType: models.PluginTypePublishIndex,
				PluginMetadata: models.PluginMetadata{
					PluginType: models.PluginTypePublishIndex,
				},
			},
			expectedParams: map[string]string{
				"TARGET_DATABASE":      "PUBLISH",
				"USE_ALT_INDEXING_ENV": "false",
			},
		},
		{
			name: "link checking",
			plugin: &models.PluginInstance{
				PluginType: models.PluginTypeLinkChecking,
				PluginMetadata: models.PluginMetadata{
					PluginType: models.PluginTypeLinkChecking,
					SampleSize: 1000,
				},
			},
			expectedParams: map[string]string{
				"SAMPLE_SIZE": "1000",
			},
		},
		{
			name: "media processing takes no parameters",
			plugin: &models.PluginInstance{
				PluginType:     models.PluginTypeMediaProcess,
				PluginMetadata: models.PluginMetadata{PluginType: models.PluginTypeMediaProcess},
			},
			expectedParams: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			execution := models.NewWorkflowExecution("dataset-1", []*models.PluginInstance{tt.plugin}, 0)

			task := composeTask(execution, tt.plugin, "provider-1")

			assert.Equal(t, "dataset-1", task.DatasetID)
			assert.Equal(t, tt.expectedParams, task.Parameters)
			require.NotNil(t, task.OutputRevision)
			assert.Equal(t, "provider-1", task.OutputRevision.ProviderID)
			assert.Equal(t, string(tt.plugin.PluginType), task.OutputRevision.RevisionName)
			assert.NotEmpty(t, task.OutputRevision.Timestamp)
		})
	}
}

func TestComposeTask_InputRevision(t *testing.T) {
	finished := mustParseTime(t, "2026-03-02T10:00:00Z")

	plugin := &models.PluginInstance{
		PluginType:     models.PluginTypeValidationExternal,
		PluginMetadata: models.PluginMetadata{PluginType: models.PluginTypeValidationExternal},
		PreviousRevisionInformation: &models.RevisionInformation{
			WorkflowExecutionID: "exec-1",
			PluginType:          models.PluginTypeOaipmhHarvest,
			FinishedDate:        &finished,
		},
	}

	execution := models.NewWorkflowExecution("dataset-1", []*models.PluginInstance{plugin}, 0)

	task := composeTask(execution, plugin, "provider-1")

	require.NotNil(t, task.InputRevision)
	assert.Equal(t, "provider-1", task.InputRevision.ProviderID)
	assert.Equal(t, "OAIPMH_HARVEST", task.InputRevision.RevisionName)
	assert.Equal(t, "2026-03-02T10:00:00Z", task.InputRevision.Timestamp)
}

func TestComposeTask_InputRevisionFromPrecedingPlugin(t *testing.T) {
	finished := mustParseTime(t, "2026-03-02T10:05:00Z")

	harvest := &models.PluginInstance{
		PluginType:     models.PluginTypeOaipmhHarvest,
		PluginStatus:   models.PluginStatusFinished,
		PluginMetadata: models.PluginMetadata{PluginType: models.PluginTypeOaipmhHarvest},
		FinishedDate:   &finished,
	}
	validation := &models.PluginInstance{
		PluginType:     models.PluginTypeValidationExternal,
		PluginStatus:   models.PluginStatusInqueue,
		PluginMetadata: models.PluginMetadata{PluginType: models.PluginTypeValidationExternal},
	}

	execution := models.NewWorkflowExecution("dataset-1",
		[]*models.PluginInstance{harvest, validation}, 0)

	task := composeTask(execution, validation, "provider-1")

	require.NotNil(t, task.InputRevision)
	assert.Equal(t, "provider-1", task.InputRevision.ProviderID)
	assert.Equal(t, "OAIPMH_HARVEST", task.InputRevision.RevisionName)
	assert.Equal(t, revisionTimestamp(execution.CreatedDate), task.InputRevision.Timestamp)

	// The head plugin without chained input still gets none.
	headTask := composeTask(execution, harvest, "provider-1")
	assert.Nil(t, headTask.InputRevision)
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)

	return parsed
}
