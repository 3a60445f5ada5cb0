package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// ScheduledWorkflow is a calendar rule produced by the scheduling subsystem:
// when due, the trigger producer turns it into an enqueue request for the
// dataset's workflow. PointerDate records the moment the rule last fired
// and advances after each successful trigger.
type ScheduledWorkflow struct {
	ID             string    `json:"id"              validate:"required"`
	DatasetID      string    `json:"datasetId"       validate:"required"`
	WorkflowID     string    `json:"workflowId"      validate:"required"`
	CronExpression string    `json:"cronExpression"  validate:"required"`
	PointerDate    time.Time `json:"pointerDate"`
	NextDueAt      time.Time `json:"nextDueAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Active         bool      `json:"active"`
}

// NewScheduledWorkflow creates a schedule with the first due time computed
// from the cron expression.
func NewScheduledWorkflow(id, datasetID, workflowID, cronExpression string) (*ScheduledWorkflow, error) {
	now := time.Now().UTC()
	schedule := &ScheduledWorkflow{
		ID:             id,
		DatasetID:      datasetID,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		PointerDate:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	err := schedule.advanceNextDueAt(now)
	if err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance moves the pointer date to the moment the schedule fired and
// computes the next due time.
func (s *ScheduledWorkflow) Advance(firedAt time.Time) error {
	s.PointerDate = firedAt

	return s.advanceNextDueAt(firedAt)
}

func (s *ScheduledWorkflow) advanceNextDueAt(reference time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *ScheduledWorkflow) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate checks the schedule fields including the cron expression.
func (s *ScheduledWorkflow) Validate() error {
	if s.ID == "" || s.DatasetID == "" || s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(s.CronExpression)

	return err
}
