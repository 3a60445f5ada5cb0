package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// WorkflowRepository handles workflow template database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow template repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetByID returns a workflow template by its identifier.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT id, dataset_id, plugins, created_at, updated_at FROM workflows WHERE id = $1`

	var (
		workflow    models.Workflow
		pluginsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&workflow.ID,
		&workflow.DatasetID,
		&pluginsJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to query workflow %s: %w", id, err)
	}

	err = json.Unmarshal(pluginsJSON, &workflow.Plugins)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow plugins: %w", err)
	}

	return &workflow, nil
}

// Save upserts a workflow template.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	pluginsJSON, err := json.Marshal(workflow.Plugins)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow plugins: %w", err)
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}

	workflow.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO workflows (id, dataset_id, plugins, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			dataset_id = EXCLUDED.dataset_id,
			plugins = EXCLUDED.plugins,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.DatasetID, pluginsJSON, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}
