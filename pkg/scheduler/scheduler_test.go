package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mnemion/mnemion/pkg/eventbus"
	"github.com/mnemion/mnemion/pkg/events"
	"github.com/mnemion/mnemion/pkg/mocks"
	"github.com/mnemion/mnemion/pkg/models"
)

// stubRunner records dispatched execution ids. When gate is non-nil every
// run blocks on it, keeping the worker slot and dataset occupied.
type stubRunner struct {
	mu      sync.Mutex
	runs    []string
	started *sync.WaitGroup
	gate    chan struct{}
}

func (r *stubRunner) Run(_ context.Context, executionID string) error {
	r.mu.Lock()
	r.runs = append(r.runs, executionID)
	r.mu.Unlock()

	if r.started != nil {
		r.started.Done()
	}

	if r.gate != nil {
		<-r.gate
	}

	return nil
}

func (r *stubRunner) Runs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.runs...)
}

func newTestScheduler(repo *mocks.MockExecutionRepository, runner Runner, maxConcurrent int) *Scheduler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewScheduler(repo, runner, nil, Config{MaxConcurrent: maxConcurrent, Tick: time.Minute}, logger)
}

func queuedExecution(id, datasetID string) *models.WorkflowExecution {
	return &models.WorkflowExecution{
		ID:             id,
		DatasetID:      datasetID,
		WorkflowStatus: models.WorkflowStatusInqueue,
	}
}

func TestDispatch_RunsQueuedExecutionsInOrder(t *testing.T) {
	repo := new(mocks.MockExecutionRepository)
	repo.On("ListQueued", mock.Anything, queuePageSize, "").Return([]*models.WorkflowExecution{
		queuedExecution("exec-1", "dataset-1"),
		queuedExecution("exec-2", "dataset-2"),
	}, "", nil)
	repo.On("CountRunningForDataset", mock.Anything, "dataset-1").Return(0, nil)
	repo.On("CountRunningForDataset", mock.Anything, "dataset-2").Return(0, nil)

	var started sync.WaitGroup

	started.Add(2)

	runner := &stubRunner{started: &started}
	s := newTestScheduler(repo, runner, 4)

	s.Dispatch(context.Background())
	started.Wait()

	assert.ElementsMatch(t, []string{"exec-1", "exec-2"}, runner.Runs())
}

func TestDispatch_OneRunningPerDataset(t *testing.T) {
	repo := new(mocks.MockExecutionRepository)
	repo.On("ListQueued", mock.Anything, queuePageSize, "").Return([]*models.WorkflowExecution{
		queuedExecution("exec-1", "dataset-1"),
		queuedExecution("exec-2", "dataset-1"),
	}, "", nil)
	repo.On("CountRunningForDataset", mock.Anything, "dataset-1").Return(0, nil)

	var started sync.WaitGroup

	started.Add(1)

	gate := make(chan struct{})
	runner := &stubRunner{started: &started, gate: gate}
	s := newTestScheduler(repo, runner, 4)

	s.Dispatch(context.Background())
	started.Wait()

	// Only the head of the queue runs; its sibling waits for a later pass.
	assert.Equal(t, []string{"exec-1"}, runner.Runs())
	repo.AssertNumberOfCalls(t, "CountRunningForDataset", 1)

	close(gate)
}

func TestDispatch_StopsWhenPoolIsFull(t *testing.T) {
	repo := new(mocks.MockExecutionRepository)
	repo.On("ListQueued", mock.Anything, queuePageSize, "").Return([]*models.WorkflowExecution{
		queuedExecution("exec-1", "dataset-1"),
		queuedExecution("exec-2", "dataset-2"),
	}, "", nil)
	repo.On("CountRunningForDataset", mock.Anything, "dataset-1").Return(0, nil)

	var started sync.WaitGroup

	started.Add(1)

	gate := make(chan struct{})
	runner := &stubRunner{started: &started, gate: gate}
	s := newTestScheduler(repo, runner, 1)

	s.Dispatch(context.Background())
	started.Wait()

	assert.Equal(t, []string{"exec-1"}, runner.Runs())
	repo.AssertNotCalled(t, "CountRunningForDataset", mock.Anything, "dataset-2")

	close(gate)
}

func TestDispatch_GlobalDatasetViewBlocksAdmission(t *testing.T) {
	repo := new(mocks.MockExecutionRepository)
	repo.On("ListQueued", mock.Anything, queuePageSize, "").Return([]*models.WorkflowExecution{
		queuedExecution("exec-1", "dataset-1"),
	}, "", nil)

	// Another orchestrator instance already runs an execution for the
	// dataset; the first pass must refuse, the second may admit.
	repo.On("CountRunningForDataset", mock.Anything, "dataset-1").Return(1, nil).Once()
	repo.On("CountRunningForDataset", mock.Anything, "dataset-1").Return(0, nil).Once()

	var started sync.WaitGroup

	runner := &stubRunner{started: &started}
	s := newTestScheduler(repo, runner, 4)

	s.Dispatch(context.Background())
	assert.Empty(t, runner.Runs())

	started.Add(1)
	s.Dispatch(context.Background())
	started.Wait()

	assert.Equal(t, []string{"exec-1"}, runner.Runs())
}

func TestDispatch_FollowsCursorPagination(t *testing.T) {
	repo := new(mocks.MockExecutionRepository)
	repo.On("ListQueued", mock.Anything, queuePageSize, "").Return([]*models.WorkflowExecution{
		queuedExecution("exec-1", "dataset-1"),
	}, "cursor-1", nil)
	repo.On("ListQueued", mock.Anything, queuePageSize, "cursor-1").Return([]*models.WorkflowExecution{
		queuedExecution("exec-2", "dataset-2"),
	}, "", nil)
	repo.On("CountRunningForDataset", mock.Anything, mock.Anything).Return(0, nil)

	var started sync.WaitGroup

	started.Add(2)

	runner := &stubRunner{started: &started}
	s := newTestScheduler(repo, runner, 4)

	s.Dispatch(context.Background())
	started.Wait()

	assert.ElementsMatch(t, []string{"exec-1", "exec-2"}, runner.Runs())
	repo.AssertNumberOfCalls(t, "ListQueued", 2)
}

func TestNotify_Coalesces(t *testing.T) {
	s := newTestScheduler(new(mocks.MockExecutionRepository), &stubRunner{}, 1)

	// Repeated notifications must never block the caller.
	s.Notify()
	s.Notify()
	s.Notify()
}

func TestStart_DispatchesOnEnqueueNotification(t *testing.T) {
	listed := make(chan struct{}, 1)

	repo := new(mocks.MockExecutionRepository)
	repo.On("ListQueued", mock.Anything, queuePageSize, "").
		Return([]*models.WorkflowExecution{}, "", nil).
		Run(func(mock.Arguments) {
			select {
			case listed <- struct{}{}:
			default:
			}
		})

	handlers := make(chan eventbus.EventHandler, 1)

	bus := new(mocks.MockEventBus)
	bus.On("Handle", events.ExecutionRequestedEvent, mock.Anything).
		Run(func(args mock.Arguments) {
			handlers <- args.Get(1).(eventbus.EventHandler)
		}).Return(nil)
	bus.On("Subscribe", mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewScheduler(repo, &stubRunner{}, bus, Config{MaxConcurrent: 1, Tick: time.Hour}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		err := s.Start(ctx)
		assert.NoError(t, err)
	}()

	var handler eventbus.EventHandler

	select {
	case handler = <-handlers:
	case <-time.After(time.Second):
		t.Fatal("scheduler never registered the enqueue handler")
	}

	err := handler(ctx, events.ExecutionRequested{})
	require.NoError(t, err)

	select {
	case <-listed:
	case <-time.After(time.Second):
		t.Fatal("notification did not trigger a dispatch pass")
	}

	cancel()
	<-done
}
