package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mnemion/mnemion/pkg/dps"
	"github.com/mnemion/mnemion/pkg/driver"
	"github.com/mnemion/mnemion/pkg/models"
)

// MockDpsClient is a mock implementation of the dps.Client interface.
type MockDpsClient struct {
	mock.Mock
}

func (m *MockDpsClient) SubmitTask(ctx context.Context, topology string, task *dps.Task) (string, error) {
	args := m.Called(ctx, topology, task)

	return args.String(0), args.Error(1)
}

func (m *MockDpsClient) TaskProgress(ctx context.Context, topology, externalTaskID string) (*dps.TaskProgress, error) {
	args := m.Called(ctx, topology, externalTaskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*dps.TaskProgress), args.Error(1)
}

func (m *MockDpsClient) KillTask(ctx context.Context, topology, externalTaskID, reason string) error {
	args := m.Called(ctx, topology, externalTaskID, reason)

	return args.Error(0)
}

// MockPluginDriver is a mock implementation of the executor.PluginDriver
// interface.
type MockPluginDriver struct {
	mock.Mock
}

func (m *MockPluginDriver) Execute(ctx context.Context, execution *models.WorkflowExecution, plugin *models.PluginInstance) error {
	args := m.Called(ctx, execution, plugin)

	return args.Error(0)
}

func (m *MockPluginDriver) Monitor(ctx context.Context, plugin *models.PluginInstance) (*driver.MonitorResult, error) {
	args := m.Called(ctx, plugin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*driver.MonitorResult), args.Error(1)
}

func (m *MockPluginDriver) Cancel(ctx context.Context, plugin *models.PluginInstance, reason string) error {
	args := m.Called(ctx, plugin, reason)

	return args.Error(0)
}

// MockClaimer is a mock implementation of the executor.Claimer interface.
type MockClaimer struct {
	mock.Mock
}

func (m *MockClaimer) ClaimExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}
