// Package mocks provides hand-written testify mocks shared by the unit
// tests.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// MockPersistence bundles the repository mocks behind the Persistence
// interface.
type MockPersistence struct {
	ExecutionRepo *MockExecutionRepository
	WorkflowRepo  *MockWorkflowRepository
	DatasetRepo   *MockDatasetRepository
	XsltRepo      *MockXsltRepository
	ScheduleRepo  *MockScheduleRepository

	HealthCheckErr error
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		ExecutionRepo: new(MockExecutionRepository),
		WorkflowRepo:  new(MockWorkflowRepository),
		DatasetRepo:   new(MockDatasetRepository),
		XsltRepo:      new(MockXsltRepository),
		ScheduleRepo:  new(MockScheduleRepository),
	}
}

func (m *MockPersistence) Executions() persistence.ExecutionRepository { return m.ExecutionRepo }

func (m *MockPersistence) Workflows() persistence.WorkflowRepository { return m.WorkflowRepo }

func (m *MockPersistence) Datasets() persistence.DatasetRepository { return m.DatasetRepo }

func (m *MockPersistence) Xslts() persistence.XsltRepository { return m.XsltRepo }

func (m *MockPersistence) Schedules() persistence.ScheduleRepository { return m.ScheduleRepo }

func (m *MockPersistence) HealthCheck(context.Context) error { return m.HealthCheckErr }

func (m *MockPersistence) Close(context.Context) error { return nil }

// MockExecutionRepository is a mock implementation of the
// persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) UpdateMonitorInfo(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) UpdatePlugins(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) TryClaim(ctx context.Context, id, workerID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, id, workerID, ttl)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionRepository) ReleaseClaim(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockExecutionRepository) IsCancelling(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionRepository) SetCancelling(ctx context.Context, id, cancelledBy string) error {
	args := m.Called(ctx, id, cancelledBy)

	return args.Error(0)
}

func (m *MockExecutionRepository) ListQueued(ctx context.Context, limit int, cursor string) ([]*models.WorkflowExecution, string, error) {
	args := m.Called(ctx, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.String(1), args.Error(2)
}

func (m *MockExecutionRepository) CountRunningForDataset(ctx context.Context, datasetID string) (int, error) {
	args := m.Called(ctx, datasetID)

	return args.Int(0), args.Error(1)
}

func (m *MockExecutionRepository) FindStaleClaims(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockExecutionRepository) FindRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockExecutionRepository) FinishedPluginRevisions(ctx context.Context, datasetID string, types []models.PluginType) ([]models.RevisionInformation, error) {
	args := m.Called(ctx, datasetID, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.RevisionInformation), args.Error(1)
}

// MockWorkflowRepository is a mock implementation of the
// persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

// MockDatasetRepository is a mock implementation of the
// persistence.DatasetRepository interface.
type MockDatasetRepository struct {
	mock.Mock
}

func (m *MockDatasetRepository) GetByID(ctx context.Context, id string) (*models.Dataset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Dataset), args.Error(1)
}

func (m *MockDatasetRepository) Save(ctx context.Context, dataset *models.Dataset) error {
	args := m.Called(ctx, dataset)

	return args.Error(0)
}

// MockXsltRepository is a mock implementation of the
// persistence.XsltRepository interface.
type MockXsltRepository struct {
	mock.Mock
}

func (m *MockXsltRepository) GetByID(ctx context.Context, id string) (*models.DatasetXslt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.DatasetXslt), args.Error(1)
}

func (m *MockXsltRepository) LatestDefault(ctx context.Context) (*models.DatasetXslt, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.DatasetXslt), args.Error(1)
}

func (m *MockXsltRepository) Save(ctx context.Context, xslt *models.DatasetXslt) error {
	args := m.Called(ctx, xslt)

	return args.Error(0)
}

// MockScheduleRepository is a mock implementation of the
// persistence.ScheduleRepository interface.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduledWorkflow, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ScheduledWorkflow), args.Error(1)
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.ScheduledWorkflow) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}
