package factory

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mnemion/mnemion/pkg/chain"
	"github.com/mnemion/mnemion/pkg/mocks"
	"github.com/mnemion/mnemion/pkg/models"
)

var testValidation = models.ValidationProperties{
	SchemasZipURL:      "https://schemas.example.org/edm.zip",
	SchemaRootPath:     "EDM.xsd",
	SchematronRootPath: "schematron/schematron.xsl",
}

func newTestFactory(t *testing.T, xslts *mocks.MockXsltRepository, executions *mocks.MockExecutionRepository, config Config) *Factory {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	f, err := NewFactory(xslts, chain.NewResolver(executions), config, logger)
	require.NoError(t, err)

	return f
}

func TestNewFactory_InvalidValidationProperties(t *testing.T) {
	tests := []struct {
		name       string
		validation models.ValidationProperties
	}{
		{
			name: "missing schemas url",
			validation: models.ValidationProperties{
				SchemaRootPath:     "EDM.xsd",
				SchematronRootPath: "schematron/schematron.xsl",
			},
		},
		{
			name: "schemas url is not a url",
			validation: models.ValidationProperties{
				SchemasZipURL:      "not-a-url",
				SchemaRootPath:     "EDM.xsd",
				SchematronRootPath: "schematron/schematron.xsl",
			},
		},
		{
			name: "missing schema root path",
			validation: models.ValidationProperties{
				SchemasZipURL:      "https://schemas.example.org/edm.zip",
				SchematronRootPath: "schematron/schematron.xsl",
			},
		},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(new(mocks.MockXsltRepository), chain.NewResolver(new(mocks.MockExecutionRepository)),
				Config{Validation: tt.validation}, logger)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid validation properties")
		})
	}
}

func TestCreateExecution_NoEnabledPlugins(t *testing.T) {
	f := newTestFactory(t, new(mocks.MockXsltRepository), new(mocks.MockExecutionRepository), Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypeOaipmhHarvest, Enabled: false},
		},
	}

	_, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no enabled plugins")
}

func TestCreateExecution_HarvestOnly(t *testing.T) {
	f := newTestFactory(t, new(mocks.MockXsltRepository), new(mocks.MockExecutionRepository), Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{
				PluginType: models.PluginTypeOaipmhHarvest,
				Enabled:    true,
				HarvestURL: "https://provider.example.org/oai",
			},
		},
	}

	execution, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 5)
	require.NoError(t, err)

	assert.NotEmpty(t, execution.ID)
	assert.Equal(t, "dataset-1", execution.DatasetID)
	assert.Equal(t, 5, execution.WorkflowPriority)
	assert.Equal(t, models.WorkflowStatusInqueue, execution.WorkflowStatus)
	require.Len(t, execution.Plugins, 1)
	assert.Equal(t, models.PluginStatusInqueue, execution.Plugins[0].PluginStatus)
	assert.Nil(t, execution.Plugins[0].PreviousRevisionInformation)
}

func TestCreateExecution_SkipsDisabledPlugins(t *testing.T) {
	executions := new(mocks.MockExecutionRepository)
	executions.On("FinishedPluginRevisions", mock.Anything, "dataset-1",
		[]models.PluginType{models.PluginTypeOaipmhHarvest}).
		Return([]models.RevisionInformation{
			{WorkflowExecutionID: "exec-1", PluginIndex: 0, PluginType: models.PluginTypeOaipmhHarvest},
		}, nil)

	f := newTestFactory(t, new(mocks.MockXsltRepository), executions, Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypeOaipmhHarvest, Enabled: false},
			{PluginType: models.PluginTypeValidationExternal, Enabled: true},
		},
	}

	execution, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 0)
	require.NoError(t, err)
	require.Len(t, execution.Plugins, 1)
	assert.Equal(t, models.PluginTypeValidationExternal, execution.Plugins[0].PluginType)

	// The first enabled plugin consumes the dataset's latest harvest output.
	require.NotNil(t, execution.Plugins[0].PreviousRevisionInformation)
	assert.Equal(t, "exec-1", execution.Plugins[0].PreviousRevisionInformation.WorkflowExecutionID)
}

func TestCreateExecution_ValidationGetsSchemaConfig(t *testing.T) {
	executions := new(mocks.MockExecutionRepository)
	executions.On("FinishedPluginRevisions", mock.Anything, "dataset-1", mock.Anything).
		Return([]models.RevisionInformation{
			{WorkflowExecutionID: "exec-1", PluginType: models.PluginTypeOaipmhHarvest},
		}, nil)

	f := newTestFactory(t, new(mocks.MockXsltRepository), executions, Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypeValidationExternal, Enabled: true},
		},
	}

	execution, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 0)
	require.NoError(t, err)

	metadata := execution.Plugins[0].PluginMetadata
	assert.Equal(t, testValidation.SchemasZipURL, metadata.SchemasZipURL)
	assert.Equal(t, testValidation.SchemaRootPath, metadata.SchemaRootPath)
	assert.Equal(t, testValidation.SchematronRootPath, metadata.SchematronRootPath)
}

func TestCreateExecution_TransformationUsesDefaultXslt(t *testing.T) {
	executions := new(mocks.MockExecutionRepository)
	executions.On("FinishedPluginRevisions", mock.Anything, "dataset-1", mock.Anything).
		Return([]models.RevisionInformation{
			{WorkflowExecutionID: "exec-1", PluginType: models.PluginTypeValidationExternal},
		}, nil)

	xslts := new(mocks.MockXsltRepository)
	xslts.On("LatestDefault", mock.Anything).Return(&models.DatasetXslt{ID: "xslt-default-7"}, nil)

	f := newTestFactory(t, xslts, executions, Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypeTransformation, Enabled: true},
		},
	}

	execution, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 0)
	require.NoError(t, err)

	metadata := execution.Plugins[0].PluginMetadata
	assert.Equal(t, "xslt-default-7", metadata.XsltID)
	assert.Equal(t, "dataset-1_Paintings", metadata.DatasetName)
}

func TestCreateExecution_TransformationUsesCustomXslt(t *testing.T) {
	executions := new(mocks.MockExecutionRepository)
	executions.On("FinishedPluginRevisions", mock.Anything, "dataset-1", mock.Anything).
		Return([]models.RevisionInformation{
			{WorkflowExecutionID: "exec-1", PluginType: models.PluginTypeValidationExternal},
		}, nil)

	xslts := new(mocks.MockXsltRepository)

	f := newTestFactory(t, xslts, executions, Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypeTransformation, Enabled: true, CustomXslt: true},
		},
	}

	dataset := &models.Dataset{ID: "dataset-1", Name: "Paintings", XsltID: "xslt-custom-3"}

	execution, err := f.CreateExecution(context.Background(), workflow, dataset, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "xslt-custom-3", execution.Plugins[0].PluginMetadata.XsltID)

	xslts.AssertNotCalled(t, "LatestDefault", mock.Anything)
}

func TestCreateExecution_CustomXsltMissingOnDataset(t *testing.T) {
	f := newTestFactory(t, new(mocks.MockXsltRepository), new(mocks.MockExecutionRepository), Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypeTransformation, Enabled: true, CustomXslt: true},
		},
	}

	_, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no custom stylesheet")
}

func TestCreateExecution_IndexingEnvironment(t *testing.T) {
	executions := new(mocks.MockExecutionRepository)
	executions.On("FinishedPluginRevisions", mock.Anything, "dataset-1", mock.Anything).
		Return([]models.RevisionInformation{
			{WorkflowExecutionID: "exec-1", PluginType: models.PluginTypeMediaProcess},
		}, nil)

	f := newTestFactory(t, new(mocks.MockXsltRepository), executions, Config{
		Validation:                        testValidation,
		UseAlternativeIndexingEnvironment: true,
	})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypePreviewIndex, Enabled: true},
		},
	}

	execution, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 0)
	require.NoError(t, err)
	assert.True(t, execution.Plugins[0].PluginMetadata.UseAlternativeIndexingEnvironment)
}

func TestCreateExecution_LinkCheckingSampleSize(t *testing.T) {
	tests := []struct {
		name       string
		configured int
		template   int
		expected   int
	}{
		{name: "default sample size", configured: 0, template: 0, expected: 1000},
		{name: "configured sample size", configured: 250, template: 0, expected: 250},
		{name: "template overrides config", configured: 250, template: 40, expected: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executions := new(mocks.MockExecutionRepository)
			executions.On("FinishedPluginRevisions", mock.Anything, "dataset-1", mock.Anything).
				Return([]models.RevisionInformation{
					{WorkflowExecutionID: "exec-1", PluginType: models.PluginTypePublishIndex},
				}, nil)

			f := newTestFactory(t, new(mocks.MockXsltRepository), executions, Config{
				Validation:             testValidation,
				LinkCheckingSampleSize: tt.configured,
			})

			workflow := &models.Workflow{
				ID:        "workflow-1",
				DatasetID: "dataset-1",
				Plugins: []models.PluginMetadata{
					{PluginType: models.PluginTypeLinkChecking, Enabled: true, SampleSize: tt.template},
				},
			}

			execution, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"}, "", 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, execution.Plugins[0].PluginMetadata.SampleSize)
		})
	}
}

func TestCreateExecution_EnforcedPredecessor(t *testing.T) {
	executions := new(mocks.MockExecutionRepository)
	executions.On("FinishedPluginRevisions", mock.Anything, "dataset-1",
		[]models.PluginType{models.PluginTypePublishIndex}).
		Return([]models.RevisionInformation{
			{WorkflowExecutionID: "exec-4", PluginType: models.PluginTypePublishIndex},
		}, nil)

	f := newTestFactory(t, new(mocks.MockXsltRepository), executions, Config{Validation: testValidation})

	workflow := &models.Workflow{
		ID:        "workflow-1",
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{PluginType: models.PluginTypeLinkChecking, Enabled: true},
		},
	}

	execution, err := f.CreateExecution(context.Background(), workflow, &models.Dataset{ID: "dataset-1", Name: "Paintings"},
		models.PluginTypePublishIndex, 0)
	require.NoError(t, err)
	require.NotNil(t, execution.Plugins[0].PreviousRevisionInformation)
	assert.Equal(t, "exec-4", execution.Plugins[0].PreviousRevisionInformation.WorkflowExecutionID)
}
