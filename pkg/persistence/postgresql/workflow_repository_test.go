package postgresql_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

func createTestWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:        uuid.New().String(),
		DatasetID: "dataset-1",
		Plugins: []models.PluginMetadata{
			{
				PluginType: models.PluginTypeOaipmhHarvest,
				Enabled:    true,
				HarvestURL: "https://provider.example.org/oai",
			},
			{
				PluginType: models.PluginTypeValidationExternal,
				Enabled:    true,
			},
		},
	}
}

func TestWorkflowRepository_SaveAndGetByID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := createTestWorkflow()

	err := p.Workflows().Save(ctx, workflow)
	require.NoError(t, err)
	assert.False(t, workflow.CreatedAt.IsZero())
	assert.False(t, workflow.UpdatedAt.IsZero())

	found, err := p.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.ID, found.ID)
	assert.Equal(t, "dataset-1", found.DatasetID)
	require.Len(t, found.Plugins, 2)
	assert.Equal(t, models.PluginTypeOaipmhHarvest, found.Plugins[0].PluginType)
	assert.Equal(t, "https://provider.example.org/oai", found.Plugins[0].HarvestURL)
	assert.Equal(t, models.PluginTypeValidationExternal, found.Plugins[1].PluginType)
}

func TestWorkflowRepository_SaveUpserts(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := createTestWorkflow()
	require.NoError(t, p.Workflows().Save(ctx, workflow))

	workflow.Plugins = workflow.Plugins[:1]
	workflow.Plugins[0].Enabled = false
	require.NoError(t, p.Workflows().Save(ctx, workflow))

	found, err := p.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, found.Plugins, 1)
	assert.False(t, found.Plugins[0].Enabled)
}

func TestWorkflowRepository_GetByID_NotFound(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, err := p.Workflows().GetByID(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}
