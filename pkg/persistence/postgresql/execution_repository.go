package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

const executionColumns = `id, dataset_id, priority, status, plugins, created_date,
	started_date, updated_date, finished_date, cancelling, cancelled_by, worker_id, claim_expiry`

// ExecutionRepository handles workflow execution database operations.
type ExecutionRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	claimTTL time.Duration
}

// NewExecutionRepository creates a new execution repository. claimTTL is
// applied whenever a guarded write renews the worker's lease.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger, claimTTL time.Duration) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger, claimTTL: claimTTL}
}

// Create inserts a new execution.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	pluginsJSON, err := json.Marshal(execution.Plugins)
	if err != nil {
		return fmt.Errorf("failed to marshal plugins: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.DatasetID,
		execution.WorkflowPriority,
		execution.WorkflowStatus,
		pluginsJSON,
		execution.CreatedDate,
		execution.StartedDate,
		execution.UpdatedDate,
		execution.FinishedDate,
		execution.Cancelling,
		nullString(execution.CancelledBy),
		nullString(execution.WorkerID),
		execution.ClaimExpiry,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// GetByID returns an execution by its identifier.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// Update replaces the whole execution record. When the in-memory record
// names a claiming worker the write is guarded on that worker still holding
// the claim, and the claim expiry is renewed as a side effect (heartbeat).
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	pluginsJSON, err := json.Marshal(execution.Plugins)
	if err != nil {
		return fmt.Errorf("failed to marshal plugins: %w", err)
	}

	query := `
		UPDATE workflow_executions SET
			dataset_id = $2,
			priority = $3,
			status = $4,
			plugins = $5,
			started_date = $6,
			updated_date = $7,
			finished_date = $8,
			cancelling = $9,
			cancelled_by = $10,
			claim_expiry = CASE WHEN $11 <> '' THEN NOW() + ($12 * INTERVAL '1 second') ELSE claim_expiry END
		WHERE id = $1 AND ($11 = '' OR worker_id = $11)
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.DatasetID,
		execution.WorkflowPriority,
		execution.WorkflowStatus,
		pluginsJSON,
		execution.StartedDate,
		execution.UpdatedDate,
		execution.FinishedDate,
		execution.Cancelling,
		nullString(execution.CancelledBy),
		execution.WorkerID,
		r.claimTTL.Seconds(),
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	return r.checkGuardedWrite(ctx, "Update", execution, result)
}

// UpdateMonitorInfo writes plugin progress and timestamps only. This is the
// per-poll cheap path and doubles as the claim heartbeat.
func (r *ExecutionRepository) UpdateMonitorInfo(ctx context.Context, execution *models.WorkflowExecution) error {
	pluginsJSON, err := json.Marshal(execution.Plugins)
	if err != nil {
		return fmt.Errorf("failed to marshal plugins: %w", err)
	}

	query := `
		UPDATE workflow_executions SET
			status = $2,
			plugins = $3,
			started_date = $4,
			updated_date = $5,
			claim_expiry = CASE WHEN $6 <> '' THEN NOW() + ($7 * INTERVAL '1 second') ELSE claim_expiry END
		WHERE id = $1 AND ($6 = '' OR worker_id = $6)
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowStatus,
		pluginsJSON,
		execution.StartedDate,
		execution.UpdatedDate,
		execution.WorkerID,
		r.claimTTL.Seconds(),
	)
	if err != nil {
		return persistence.NewExecutionError("UpdateMonitorInfo", execution.ID, err)
	}

	return r.checkGuardedWrite(ctx, "UpdateMonitorInfo", execution, result)
}

// UpdatePlugins replaces the plugin list only.
func (r *ExecutionRepository) UpdatePlugins(ctx context.Context, execution *models.WorkflowExecution) error {
	pluginsJSON, err := json.Marshal(execution.Plugins)
	if err != nil {
		return fmt.Errorf("failed to marshal plugins: %w", err)
	}

	query := `
		UPDATE workflow_executions SET plugins = $2
		WHERE id = $1 AND ($3 = '' OR worker_id = $3)
	`

	result, err := r.db.ExecContext(ctx, query, execution.ID, pluginsJSON, execution.WorkerID)
	if err != nil {
		return persistence.NewExecutionError("UpdatePlugins", execution.ID, err)
	}

	return r.checkGuardedWrite(ctx, "UpdatePlugins", execution, result)
}

// TryClaim atomically takes or renews the claim. The compare-and-set
// succeeds when the claim is unset, expired, or already held by the caller.
func (r *ExecutionRepository) TryClaim(ctx context.Context, id, workerID string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE workflow_executions SET
			worker_id = $2,
			claim_expiry = NOW() + ($3 * INTERVAL '1 second')
		WHERE id = $1
			AND status IN ('INQUEUE', 'RUNNING')
			AND (claim_expiry IS NULL OR claim_expiry < NOW() OR worker_id = $2)
	`

	result, err := r.db.ExecContext(ctx, query, id, workerID, ttl.Seconds())
	if err != nil {
		return false, persistence.NewExecutionError("TryClaim", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("TryClaim", id, err)
	}

	return affected == 1, nil
}

// ReleaseClaim reverts a stale RUNNING execution to INQUEUE with no claim
// holder. Plugin states are kept; the resumed worker continues from the
// first non-terminal plugin.
func (r *ExecutionRepository) ReleaseClaim(ctx context.Context, id string) error {
	query := `
		UPDATE workflow_executions SET
			status = 'INQUEUE',
			worker_id = NULL,
			claim_expiry = NULL
		WHERE id = $1 AND status = 'RUNNING'
	`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewExecutionError("ReleaseClaim", id, err)
	}

	return nil
}

// IsCancelling reports whether cancellation has been requested.
func (r *ExecutionRepository) IsCancelling(ctx context.Context, id string) (bool, error) {
	var cancelling bool

	err := r.db.QueryRowContext(ctx, "SELECT cancelling FROM workflow_executions WHERE id = $1", id).Scan(&cancelling)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, persistence.NewExecutionError("IsCancelling", id, persistence.ErrExecutionNotFound)
		}

		return false, persistence.NewExecutionError("IsCancelling", id, err)
	}

	return cancelling, nil
}

// SetCancelling flags a non-terminal execution for cooperative cancellation.
func (r *ExecutionRepository) SetCancelling(ctx context.Context, id, cancelledBy string) error {
	query := `
		UPDATE workflow_executions SET cancelling = TRUE, cancelled_by = $2
		WHERE id = $1 AND status IN ('INQUEUE', 'RUNNING')
	`

	result, err := r.db.ExecContext(ctx, query, id, cancelledBy)
	if err != nil {
		return persistence.NewExecutionError("SetCancelling", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("SetCancelling", id, err)
	}

	if affected == 0 {
		exists, existsErr := r.exists(ctx, id)
		if existsErr != nil {
			return persistence.NewExecutionError("SetCancelling", id, existsErr)
		}

		if !exists {
			return persistence.NewExecutionError("SetCancelling", id, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("SetCancelling", id, persistence.ErrExecutionTerminal)
	}

	return nil
}

// ListQueued returns a page of INQUEUE executions in (priority, createdDate)
// order. The returned cursor is the id of the last execution of the page.
func (r *ExecutionRepository) ListQueued(ctx context.Context, limit int, cursor string) ([]*models.WorkflowExecution, string, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE status = 'INQUEUE'
			AND ($2 = '' OR (priority, created_date, id) > (
				SELECT priority, created_date, id FROM workflow_executions WHERE id = $2
			))
		ORDER BY priority ASC, created_date ASC, id ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit, cursor)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query queued executions: %w", err)
	}

	defer func() {
		closeErr := rows.Close()
		if closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.WorkflowExecution

	for rows.Next() {
		execution, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, "", fmt.Errorf("failed to scan queued execution: %w", scanErr)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, "", fmt.Errorf("failed to iterate queued executions: %w", err)
	}

	nextCursor := ""
	if len(executions) == limit && limit > 0 {
		nextCursor = executions[len(executions)-1].ID
	}

	return executions, nextCursor, nil
}

// CountRunningForDataset counts RUNNING executions of one dataset.
func (r *ExecutionRepository) CountRunningForDataset(ctx context.Context, datasetID string) (int, error) {
	var count int

	query := `SELECT COUNT(*) FROM workflow_executions WHERE dataset_id = $1 AND status = 'RUNNING'`

	err := r.db.QueryRowContext(ctx, query, datasetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running executions for dataset %s: %w", datasetID, err)
	}

	return count, nil
}

// FindStaleClaims returns RUNNING executions whose claim expired before now.
func (r *ExecutionRepository) FindStaleClaims(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT id FROM workflow_executions
		WHERE status = 'RUNNING' AND claim_expiry IS NOT NULL AND claim_expiry < $1
	`

	return r.queryIDs(ctx, query, now)
}

// FindRunningStartedBefore returns RUNNING executions older than the cutoff.
func (r *ExecutionRepository) FindRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM workflow_executions
		WHERE status = 'RUNNING' AND cancelling = FALSE
			AND started_date IS NOT NULL AND started_date < $1
	`

	return r.queryIDs(ctx, query, cutoff)
}

// FinishedPluginRevisions lists finished, non-invalidated plugins of the
// given types for a dataset, newest finished date first, ties broken by
// execution start time.
func (r *ExecutionRepository) FinishedPluginRevisions(ctx context.Context, datasetID string, types []models.PluginType) ([]models.RevisionInformation, error) {
	typeNames := make([]string, len(types))
	for i, pluginType := range types {
		typeNames[i] = string(pluginType)
	}

	query := `
		SELECT e.id,
			p.ordinality - 1,
			p.elem->>'pluginType',
			p.elem->>'finishedDate'
		FROM workflow_executions e,
			jsonb_array_elements(e.plugins) WITH ORDINALITY p(elem, ordinality)
		WHERE e.dataset_id = $1
			AND p.elem->>'pluginStatus' = 'FINISHED'
			AND p.elem->>'pluginType' = ANY($2)
			AND COALESCE((p.elem->>'invalidated')::boolean, FALSE) = FALSE
		ORDER BY (p.elem->>'finishedDate')::timestamptz DESC, e.started_date DESC
	`

	rows, err := r.db.QueryContext(ctx, query, datasetID, pq.Array(typeNames))
	if err != nil {
		return nil, fmt.Errorf("failed to query finished plugin revisions: %w", err)
	}

	defer func() {
		closeErr := rows.Close()
		if closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var revisions []models.RevisionInformation

	for rows.Next() {
		var (
			revision     models.RevisionInformation
			pluginType   string
			finishedDate sql.NullString
		)

		err = rows.Scan(&revision.WorkflowExecutionID, &revision.PluginIndex, &pluginType, &finishedDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin revision: %w", err)
		}

		revision.PluginType = models.PluginType(pluginType)

		if finishedDate.Valid {
			parsed, parseErr := time.Parse(time.RFC3339Nano, finishedDate.String)
			if parseErr == nil {
				revision.FinishedDate = &parsed
			}
		}

		revisions = append(revisions, revision)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate plugin revisions: %w", err)
	}

	return revisions, nil
}

func (r *ExecutionRepository) checkGuardedWrite(ctx context.Context, op string, execution *models.WorkflowExecution, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	if affected == 1 {
		return nil
	}

	exists, err := r.exists(ctx, execution.ID)
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	if !exists {
		return persistence.NewExecutionError(op, execution.ID, persistence.ErrExecutionNotFound)
	}

	return persistence.NewExecutionError(op, execution.ID, persistence.ErrClaimLost)
}

func (r *ExecutionRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM workflow_executions WHERE id = $1)", id).Scan(&exists)

	return exists, err
}

func (r *ExecutionRepository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution ids: %w", err)
	}

	defer func() {
		closeErr := rows.Close()
		if closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var ids []string

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate execution ids: %w", err)
	}

	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		pluginsJSON []byte
		cancelledBy sql.NullString
		workerID    sql.NullString
	)

	err := row.Scan(
		&execution.ID,
		&execution.DatasetID,
		&execution.WorkflowPriority,
		&execution.WorkflowStatus,
		&pluginsJSON,
		&execution.CreatedDate,
		&execution.StartedDate,
		&execution.UpdatedDate,
		&execution.FinishedDate,
		&execution.Cancelling,
		&cancelledBy,
		&workerID,
		&execution.ClaimExpiry,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(pluginsJSON, &execution.Plugins)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal plugins: %w", err)
	}

	execution.CancelledBy = cancelledBy.String
	execution.WorkerID = workerID.String

	return &execution, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
