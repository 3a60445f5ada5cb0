package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemion/mnemion/pkg/models"
)

// ScheduleRepository handles calendar rule database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

// Due returns active schedules whose next due time has passed.
func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduledWorkflow, error) {
	query := `
		SELECT id, dataset_id, workflow_id, cron_expression, pointer_date,
			next_due_at, active, created_at, updated_at
		FROM scheduled_workflows
		WHERE active AND next_due_at <= $1
		ORDER BY next_due_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() {
		closeErr := rows.Close()
		if closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var schedules []*models.ScheduledWorkflow

	for rows.Next() {
		var schedule models.ScheduledWorkflow

		err = rows.Scan(
			&schedule.ID,
			&schedule.DatasetID,
			&schedule.WorkflowID,
			&schedule.CronExpression,
			&schedule.PointerDate,
			&schedule.NextDueAt,
			&schedule.Active,
			&schedule.CreatedAt,
			&schedule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, &schedule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}

	return schedules, nil
}

// Save upserts a schedule.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.ScheduledWorkflow) error {
	query := `
		INSERT INTO scheduled_workflows (id, dataset_id, workflow_id, cron_expression,
			pointer_date, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			dataset_id = EXCLUDED.dataset_id,
			workflow_id = EXCLUDED.workflow_id,
			cron_expression = EXCLUDED.cron_expression,
			pointer_date = EXCLUDED.pointer_date,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.DatasetID,
		schedule.WorkflowID,
		schedule.CronExpression,
		schedule.PointerDate,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}

	return nil
}
