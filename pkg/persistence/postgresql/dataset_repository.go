package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// DatasetRepository handles dataset database operations.
type DatasetRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDatasetRepository creates a new dataset repository.
func NewDatasetRepository(db *sql.DB, logger *slog.Logger) *DatasetRepository {
	return &DatasetRepository{db: db, logger: logger}
}

// GetByID returns a dataset by its identifier.
func (r *DatasetRepository) GetByID(ctx context.Context, id string) (*models.Dataset, error) {
	query := `SELECT id, name, xslt_id, created_at, updated_at FROM datasets WHERE id = $1`

	var (
		dataset models.Dataset
		xsltID  sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&dataset.ID, &dataset.Name, &xsltID, &dataset.CreatedAt, &dataset.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDatasetNotFound
		}

		return nil, fmt.Errorf("failed to query dataset %s: %w", id, err)
	}

	dataset.XsltID = xsltID.String

	return &dataset, nil
}

// Save upserts a dataset.
func (r *DatasetRepository) Save(ctx context.Context, dataset *models.Dataset) error {
	if dataset.CreatedAt.IsZero() {
		dataset.CreatedAt = time.Now().UTC()
	}

	dataset.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO datasets (id, name, xslt_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			xslt_id = EXCLUDED.xslt_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		dataset.ID, dataset.Name, nullString(dataset.XsltID), dataset.CreatedAt, dataset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", dataset.ID, err)
	}

	return nil
}

// XsltRepository handles stylesheet database operations.
type XsltRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewXsltRepository creates a new stylesheet repository.
func NewXsltRepository(db *sql.DB, logger *slog.Logger) *XsltRepository {
	return &XsltRepository{db: db, logger: logger}
}

// GetByID returns a stylesheet by its identifier.
func (r *XsltRepository) GetByID(ctx context.Context, id string) (*models.DatasetXslt, error) {
	query := `SELECT id, dataset_id, xslt, created_at FROM dataset_xslts WHERE id = $1`

	return r.scanXslt(r.db.QueryRowContext(ctx, query, id))
}

// LatestDefault returns the most recent shared default stylesheet.
func (r *XsltRepository) LatestDefault(ctx context.Context) (*models.DatasetXslt, error) {
	query := `
		SELECT id, dataset_id, xslt, created_at FROM dataset_xslts
		WHERE dataset_id IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.scanXslt(r.db.QueryRowContext(ctx, query))
}

// Save inserts a stylesheet.
func (r *XsltRepository) Save(ctx context.Context, xslt *models.DatasetXslt) error {
	if xslt.CreatedAt.IsZero() {
		xslt.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO dataset_xslts (id, dataset_id, xslt, created_at) VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query,
		xslt.ID, nullString(xslt.DatasetID), xslt.Xslt, xslt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save xslt %s: %w", xslt.ID, err)
	}

	return nil
}

func (r *XsltRepository) scanXslt(row rowScanner) (*models.DatasetXslt, error) {
	var (
		xslt      models.DatasetXslt
		datasetID sql.NullString
	)

	err := row.Scan(&xslt.ID, &datasetID, &xslt.Xslt, &xslt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrXsltNotFound
		}

		return nil, fmt.Errorf("failed to scan xslt: %w", err)
	}

	xslt.DatasetID = datasetID.String

	return &xslt, nil
}
