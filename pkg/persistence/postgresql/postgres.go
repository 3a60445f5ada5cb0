// Package postgresql provides the PostgreSQL persistence implementation
// for the orchestration engine.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/mnemion/mnemion/pkg/persistence"
	"github.com/mnemion/mnemion/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	executionRepo *ExecutionRepository
	workflowRepo  *WorkflowRepository
	datasetRepo   *DatasetRepository
	xsltRepo      *XsltRepository
	scheduleRepo  *ScheduleRepository
}

// NewPersistence connects to PostgreSQL and runs pending migrations. The
// claim TTL is needed by the execution repository because full updates
// double as claim heartbeats.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, claimTTL time.Duration) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		executionRepo: NewExecutionRepository(database, logger, claimTTL),
		workflowRepo:  NewWorkflowRepository(database, logger),
		datasetRepo:   NewDatasetRepository(database, logger),
		xsltRepo:      NewXsltRepository(database, logger),
		scheduleRepo:  NewScheduleRepository(database, logger),
	}, nil
}

// Executions returns the workflow execution repository.
func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

// Workflows returns the workflow template repository.
func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

// Datasets returns the dataset repository.
func (p *Persistence) Datasets() persistence.DatasetRepository {
	return p.datasetRepo
}

// Xslts returns the stylesheet repository.
func (p *Persistence) Xslts() persistence.XsltRepository {
	return p.xsltRepo
}

// Schedules returns the calendar rule repository.
func (p *Persistence) Schedules() persistence.ScheduleRepository {
	return p.scheduleRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
