// Package scheduler dispatches queued executions to a bounded worker pool,
// in priority order and under per-dataset and global admission control.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mnemion/mnemion/pkg/eventbus"
	"github.com/mnemion/mnemion/pkg/events"
	"github.com/mnemion/mnemion/pkg/persistence"
)

const queuePageSize = 50

// Runner executes one claimed execution to a terminal state.
type Runner interface {
	Run(ctx context.Context, executionID string) error
}

// Config carries the scheduler knobs.
type Config struct {
	// MaxConcurrent bounds the worker pool of this process.
	MaxConcurrent int

	// Tick is the period of the dispatch pass; enqueue notifications
	// trigger an extra pass in between.
	Tick time.Duration
}

// Scheduler admits work by three rules: a free worker slot, no other
// execution of the same dataset running, and queue order by
// (priority, createdDate).
type Scheduler struct {
	executions persistence.ExecutionRepository
	runner     Runner
	bus        eventbus.EventBus
	config     Config
	logger     *slog.Logger

	slots  *semaphore.Weighted
	notify chan struct{}

	mu               sync.Mutex
	inFlight         map[string]struct{}
	datasetsInFlight map[string]struct{}
}

func NewScheduler(executions persistence.ExecutionRepository, runner Runner, bus eventbus.EventBus, config Config, logger *slog.Logger) *Scheduler {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	return &Scheduler{
		executions:       executions,
		runner:           runner,
		bus:              bus,
		config:           config,
		logger:           logger.With("module", "execution_scheduler"),
		slots:            semaphore.NewWeighted(int64(config.MaxConcurrent)),
		notify:           make(chan struct{}, 1),
		inFlight:         make(map[string]struct{}),
		datasetsInFlight: make(map[string]struct{}),
	}
}

// Start subscribes to enqueue notifications and runs dispatch passes until
// the context is cancelled. It blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.bus != nil {
		err := s.bus.Handle(events.ExecutionRequestedEvent, func(_ context.Context, _ any) error {
			s.Notify()

			return nil
		})
		if err != nil {
			return err
		}

		err = s.bus.Subscribe(ctx)
		if err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Scheduler started",
		"max_concurrent", s.config.MaxConcurrent, "tick", s.config.Tick)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopped")

			return nil
		case <-ticker.C:
		case <-s.notify:
		}

		s.Dispatch(ctx)
	}
}

// Notify requests an extra dispatch pass without waiting for the tick.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Dispatch walks the queue in order and hands every admissible execution to
// a free worker. It returns once the queue is exhausted or no slot is free.
func (s *Scheduler) Dispatch(ctx context.Context) {
	cursor := ""

	for {
		page, next, err := s.executions.ListQueued(ctx, queuePageSize, cursor)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to list queued executions", "error", err)

			return
		}

		for _, candidate := range page {
			if !s.slots.TryAcquire(1) {
				return
			}

			admitted, admitErr := s.admit(ctx, candidate.ID, candidate.DatasetID)
			if admitErr != nil {
				s.logger.ErrorContext(ctx, "Admission check failed",
					"execution_id", candidate.ID, "error", admitErr)
			}

			if !admitted {
				s.slots.Release(1)

				continue
			}

			s.startWorker(ctx, candidate.ID, candidate.DatasetID)
		}

		if next == "" {
			return
		}

		cursor = next
	}
}

// admit enforces one-running-per-dataset, both against this process's
// in-flight set and the repository's global view.
func (s *Scheduler) admit(ctx context.Context, executionID, datasetID string) (bool, error) {
	s.mu.Lock()

	_, executionBusy := s.inFlight[executionID]
	_, datasetBusy := s.datasetsInFlight[datasetID]

	if executionBusy || datasetBusy {
		s.mu.Unlock()

		return false, nil
	}

	s.inFlight[executionID] = struct{}{}
	s.datasetsInFlight[datasetID] = struct{}{}
	s.mu.Unlock()

	running, err := s.executions.CountRunningForDataset(ctx, datasetID)
	if err != nil || running > 0 {
		s.release(executionID, datasetID)

		return false, err
	}

	return true, nil
}

func (s *Scheduler) startWorker(ctx context.Context, executionID, datasetID string) {
	s.logger.InfoContext(ctx, "Dispatching execution",
		"execution_id", executionID, "dataset_id", datasetID)

	go func() {
		defer s.slots.Release(1)
		defer s.release(executionID, datasetID)

		err := s.runner.Run(ctx, executionID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Execution run failed",
				"execution_id", executionID, "error", err)
		}
	}()
}

func (s *Scheduler) release(executionID, datasetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, executionID)
	delete(s.datasetsInFlight, datasetID)
}
