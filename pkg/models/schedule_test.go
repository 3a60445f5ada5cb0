package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduledWorkflow(t *testing.T) {
	schedule, err := NewScheduledWorkflow("schedule-1", "dataset-1", "workflow-1", "0 3 * * *")
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.False(t, schedule.PointerDate.IsZero())
	assert.True(t, schedule.NextDueAt.After(time.Now().Add(-time.Minute)))
}

func TestNewScheduledWorkflow_InvalidCron(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{name: "gibberish", expression: "not a cron"},
		{name: "too few fields", expression: "0 3 *"},
		{name: "out of range", expression: "99 3 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduledWorkflow("schedule-1", "dataset-1", "workflow-1", tt.expression)
			require.Error(t, err)
		})
	}
}

func TestScheduledWorkflowAdvance(t *testing.T) {
	schedule, err := NewScheduledWorkflow("schedule-1", "dataset-1", "workflow-1", "0 3 * * *")
	require.NoError(t, err)

	firedAt := time.Date(2026, 4, 10, 3, 0, 0, 0, time.UTC)

	err = schedule.Advance(firedAt)
	require.NoError(t, err)

	assert.Equal(t, firedAt, schedule.PointerDate)
	assert.Equal(t, time.Date(2026, 4, 11, 3, 0, 0, 0, time.UTC), schedule.NextDueAt)
}

func TestScheduledWorkflowIsDue(t *testing.T) {
	now := time.Date(2026, 4, 10, 3, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		nextDueAt time.Time
		active    bool
		expected  bool
	}{
		{name: "due now", nextDueAt: now, active: true, expected: true},
		{name: "past due", nextDueAt: now.Add(-time.Hour), active: true, expected: true},
		{name: "not yet due", nextDueAt: now.Add(time.Hour), active: true, expected: false},
		{name: "inactive schedule never fires", nextDueAt: now.Add(-time.Hour), active: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := &ScheduledWorkflow{NextDueAt: tt.nextDueAt, Active: tt.active}
			assert.Equal(t, tt.expected, schedule.IsDue(now))
		})
	}
}

func TestScheduledWorkflowValidate(t *testing.T) {
	tests := []struct {
		name        string
		schedule    ScheduledWorkflow
		expectError bool
	}{
		{
			name: "valid",
			schedule: ScheduledWorkflow{
				ID: "schedule-1", DatasetID: "dataset-1", WorkflowID: "workflow-1",
				CronExpression: "*/15 * * * *",
			},
		},
		{
			name: "missing dataset",
			schedule: ScheduledWorkflow{
				ID: "schedule-1", WorkflowID: "workflow-1", CronExpression: "0 3 * * *",
			},
			expectError: true,
		},
		{
			name: "bad expression",
			schedule: ScheduledWorkflow{
				ID: "schedule-1", DatasetID: "dataset-1", WorkflowID: "workflow-1",
				CronExpression: "every day at dawn",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
