package queue

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	listener, err := NewListener(nil, Config{Queue: "mnemion.requests"}, logger)
	require.NoError(t, err)

	return listener
}

func TestNewListener_RequiresQueueName(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	_, err := NewListener(nil, Config{}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue name is required")
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		expected    *Request
		expectError bool
	}{
		{
			name:    "valid enqueue",
			message: `{"action":"enqueue","datasetId":"dataset-1","workflowId":"workflow-1","priority":3}`,
			expected: &Request{
				Action:     ActionEnqueue,
				DatasetID:  "dataset-1",
				WorkflowID: "workflow-1",
				Priority:   3,
			},
		},
		{
			name:    "enqueue with enforced predecessor",
			message: `{"action":"enqueue","datasetId":"dataset-1","workflowId":"workflow-1","enforcedPredecessorType":"PUBLISH_INDEX"}`,
			expected: &Request{
				Action:                  ActionEnqueue,
				DatasetID:               "dataset-1",
				WorkflowID:              "workflow-1",
				EnforcedPredecessorType: "PUBLISH_INDEX",
			},
		},
		{
			name:    "valid cancel",
			message: `{"action":"cancel","executionId":"exec-1","cancelledBy":"pipeline-bot"}`,
			expected: &Request{
				Action:      ActionCancel,
				ExecutionID: "exec-1",
				CancelledBy: "pipeline-bot",
			},
		},
		{
			name:        "not json",
			message:     `push the big red button`,
			expectError: true,
		},
		{
			name:        "unknown action",
			message:     `{"action":"pause","executionId":"exec-1"}`,
			expectError: true,
		},
		{
			name:        "missing action",
			message:     `{"datasetId":"dataset-1","workflowId":"workflow-1"}`,
			expectError: true,
		},
		{
			name:        "enqueue without workflow",
			message:     `{"action":"enqueue","datasetId":"dataset-1"}`,
			expectError: true,
		},
		{
			name:        "cancel without canceller identity",
			message:     `{"action":"cancel","executionId":"exec-1"}`,
			expectError: true,
		},
		{
			name:        "priority must be an integer",
			message:     `{"action":"enqueue","datasetId":"dataset-1","workflowId":"workflow-1","priority":"high"}`,
			expectError: true,
		},
	}

	listener := newTestListener(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request, err := listener.parseRequest(tt.message)
			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, request)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, request)
		})
	}
}
