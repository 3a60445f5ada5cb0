package calendar

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mnemion/mnemion/pkg/chain"
	"github.com/mnemion/mnemion/pkg/factory"
	"github.com/mnemion/mnemion/pkg/mocks"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/orchestration"
)

func newTestProducer(t *testing.T, store *mocks.MockPersistence) *Producer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	executionFactory, err := factory.NewFactory(store.XsltRepo, chain.NewResolver(store.ExecutionRepo), factory.Config{
		Validation: models.ValidationProperties{
			SchemasZipURL:      "https://schemas.example.org/edm.zip",
			SchemaRootPath:     "EDM.xsd",
			SchematronRootPath: "schematron/schematron.xsl",
		},
	}, logger)
	require.NoError(t, err)

	service := orchestration.NewService(store, executionFactory, nil, logger)

	return NewProducer(store.ScheduleRepo, service, time.Minute, logger)
}

func dueSchedule(t *testing.T) *models.ScheduledWorkflow {
	t.Helper()

	schedule, err := models.NewScheduledWorkflow("schedule-1", "dataset-1", "workflow-1", "0 3 * * *")
	require.NoError(t, err)

	schedule.NextDueAt = time.Now().UTC().Add(-time.Minute)

	return schedule
}

func stubEnqueueables(store *mocks.MockPersistence) {
	store.DatasetRepo.On("GetByID", mock.Anything, "dataset-1").
		Return(&models.Dataset{ID: "dataset-1", Name: "Paintings"}, nil)
	store.WorkflowRepo.On("GetByID", mock.Anything, "workflow-1").
		Return(&models.Workflow{
			ID:        "workflow-1",
			DatasetID: "dataset-1",
			Plugins: []models.PluginMetadata{
				{
					PluginType: models.PluginTypeOaipmhHarvest,
					Enabled:    true,
					HarvestURL: "https://provider.example.org/oai",
				},
			},
		}, nil)
}

func TestTick_FiresDueSchedule(t *testing.T) {
	schedule := dueSchedule(t)
	previousDue := schedule.NextDueAt

	store := mocks.NewMockPersistence()
	stubEnqueueables(store)
	store.ScheduleRepo.On("Due", mock.Anything, mock.Anything).
		Return([]*models.ScheduledWorkflow{schedule}, nil)
	store.ScheduleRepo.On("Save", mock.Anything, schedule).Return(nil)

	var enqueued *models.WorkflowExecution

	store.ExecutionRepo.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			enqueued = args.Get(1).(*models.WorkflowExecution)
		}).Return(nil)

	p := newTestProducer(t, store)

	p.Tick(context.Background())

	require.NotNil(t, enqueued)
	assert.Equal(t, "dataset-1", enqueued.DatasetID)
	assert.Equal(t, scheduledPriority, enqueued.WorkflowPriority)

	// The pointer moved and the next due time was recomputed and saved.
	assert.True(t, schedule.NextDueAt.After(previousDue))
	store.ScheduleRepo.AssertCalled(t, "Save", mock.Anything, schedule)
}

func TestTick_EnqueueFailureKeepsDueTime(t *testing.T) {
	schedule := dueSchedule(t)
	previousDue := schedule.NextDueAt

	store := mocks.NewMockPersistence()
	store.ScheduleRepo.On("Due", mock.Anything, mock.Anything).
		Return([]*models.ScheduledWorkflow{schedule}, nil)
	store.DatasetRepo.On("GetByID", mock.Anything, "dataset-1").
		Return(nil, errors.New("connection refused"))

	p := newTestProducer(t, store)

	p.Tick(context.Background())

	// The rule keeps its due time and fires again on the next pass.
	assert.Equal(t, previousDue, schedule.NextDueAt)
	store.ScheduleRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTick_NoDueSchedules(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.ScheduleRepo.On("Due", mock.Anything, mock.Anything).
		Return([]*models.ScheduledWorkflow{}, nil)

	p := newTestProducer(t, store)

	p.Tick(context.Background())

	store.ExecutionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
