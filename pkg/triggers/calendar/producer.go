// Package calendar turns stored calendar rules into enqueue requests. Each
// due rule produces one execution and advances its pointer date.
package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/mnemion/mnemion/pkg/orchestration"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// scheduledPriority puts calendar-produced executions behind user-requested
// ones of the default priority.
const scheduledPriority = 10

type Producer struct {
	schedules persistence.ScheduleRepository
	service   *orchestration.Service
	tick      time.Duration
	logger    *slog.Logger
}

func NewProducer(schedules persistence.ScheduleRepository, service *orchestration.Service, tick time.Duration, logger *slog.Logger) *Producer {
	return &Producer{
		schedules: schedules,
		service:   service,
		tick:      tick,
		logger:    logger.With("module", "calendar_producer"),
	}
}

// Start runs the periodic pass until the context is cancelled. It blocks.
func (p *Producer) Start(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "Calendar producer started", "tick", p.tick)

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Calendar producer stopped")

			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick fires every due rule once. A rule whose enqueue fails keeps its due
// time and is retried on the next pass; the pointer only advances after a
// successful enqueue.
func (p *Producer) Tick(ctx context.Context) {
	now := time.Now().UTC()

	due, err := p.schedules.Due(ctx, now)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list due schedules", "error", err)

		return
	}

	for _, schedule := range due {
		execution, err := p.service.AddExecution(ctx, schedule.DatasetID, schedule.WorkflowID, "", scheduledPriority)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to enqueue scheduled execution",
				"schedule_id", schedule.ID,
				"dataset_id", schedule.DatasetID,
				"error", err)

			continue
		}

		err = schedule.Advance(now)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to advance schedule",
				"schedule_id", schedule.ID, "error", err)

			continue
		}

		err = p.schedules.Save(ctx, schedule)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to save advanced schedule",
				"schedule_id", schedule.ID, "error", err)

			continue
		}

		p.logger.InfoContext(ctx, "Scheduled execution enqueued",
			"schedule_id", schedule.ID,
			"execution_id", execution.ID,
			"next_due_at", schedule.NextDueAt)
	}
}
