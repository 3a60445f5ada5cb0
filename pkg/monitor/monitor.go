// Package monitor owns the claim protocol and the periodic safety net:
// stale-claim reclamation and wall-clock cap enforcement.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

// Config carries the monitor timing knobs.
type Config struct {
	// Tick is the period of the reclamation / cap-enforcement pass.
	Tick time.Duration

	// ClaimTTL is the lease duration handed out on a successful claim.
	ClaimTTL time.Duration

	// WallClockCap is the maximum execution duration before the monitor
	// requests system cancellation. Zero disables the cap.
	WallClockCap time.Duration
}

// Monitor runs on every orchestrator instance; instances coordinate purely
// through the repository's claim primitive.
type Monitor struct {
	executions persistence.ExecutionRepository
	workerID   string
	config     Config
	logger     *slog.Logger
}

func NewMonitor(executions persistence.ExecutionRepository, workerID string, config Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		executions: executions,
		workerID:   workerID,
		config:     config,
		logger:     logger.With("module", "execution_monitor", "worker_id", workerID),
	}
}

// ClaimExecution attempts to take the claim for this worker. It returns the
// freshly read execution on success and nil when another worker holds it or
// the execution no longer exists.
func (m *Monitor) ClaimExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	claimed, err := m.executions.TryClaim(ctx, id, m.workerID, m.config.ClaimTTL)
	if err != nil {
		return nil, err
	}

	if !claimed {
		return nil, nil
	}

	execution, err := m.executions.GetByID(ctx, id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return execution, nil
}

// Start runs the periodic pass until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.config.Tick)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "Execution monitor started",
		"tick", m.config.Tick,
		"claim_ttl", m.config.ClaimTTL,
		"wall_clock_cap", m.config.WallClockCap,
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "Execution monitor stopped")

			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one reclamation and cap-enforcement pass.
func (m *Monitor) Tick(ctx context.Context) {
	m.reclaimStale(ctx)
	m.enforceWallClockCap(ctx)
}

// reclaimStale reverts RUNNING executions with expired claims to a
// claimable state. They are not failed: the processing service is the
// authoritative record of task progress and a recovered worker can resume.
func (m *Monitor) reclaimStale(ctx context.Context) {
	ids, err := m.executions.FindStaleClaims(ctx, time.Now().UTC())
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to list stale claims", "error", err)

		return
	}

	for _, id := range ids {
		err = m.executions.ReleaseClaim(ctx, id)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to release stale claim",
				"execution_id", id, "error", err)

			continue
		}

		m.logger.InfoContext(ctx, "Released stale claim", "execution_id", id)
	}
}

// enforceWallClockCap flags over-budget executions for cooperative
// cancellation under the system canceller identity.
func (m *Monitor) enforceWallClockCap(ctx context.Context) {
	if m.config.WallClockCap <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-m.config.WallClockCap)

	ids, err := m.executions.FindRunningStartedBefore(ctx, cutoff)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to list over-budget executions", "error", err)

		return
	}

	for _, id := range ids {
		err = m.executions.SetCancelling(ctx, id, models.CancelledBySystemMinuteCapExpire)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to flag over-budget execution",
				"execution_id", id, "error", err)

			continue
		}

		m.logger.WarnContext(ctx, "Execution exceeded wall-clock cap, cancellation requested",
			"execution_id", id)
	}
}
