// Package config gathers the engine's tuning knobs in one validated struct.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Engine carries every timing and concurrency knob of the orchestrator.
// Values arrive from CLI flags / environment variables; Validate must pass
// before the engine starts.
type Engine struct {
	// MaxConcurrentExecutions bounds the per-process worker pool.
	MaxConcurrentExecutions int `validate:"gte=1"`

	// PollIntervalSeconds is the period between task progress polls.
	PollIntervalSeconds int `validate:"gte=1"`

	// MonitorRetryBudget is the number of consecutive transient monitor
	// failures tolerated before a plugin fails.
	MonitorRetryBudget int `validate:"gte=1"`

	// PeriodOfNoProcessedRecordsChangeInMinutes fails a plugin whose
	// processed-record count has not moved for this long.
	PeriodOfNoProcessedRecordsChangeInMinutes int `validate:"gte=1"`

	// ExecutionWallClockCapMinutes cancels executions running longer than
	// this. Zero disables the cap.
	ExecutionWallClockCapMinutes int `validate:"gte=0"`

	// ClaimTTLSeconds is the claim lease duration.
	ClaimTTLSeconds int `validate:"gte=1"`

	// SchedulerTickSeconds is the scheduler and monitor period.
	SchedulerTickSeconds int `validate:"gte=1"`
}

// Defaults returns the engine configuration used when no flags are given.
func Defaults() Engine {
	return Engine{
		MaxConcurrentExecutions:                   8,
		PollIntervalSeconds:                       30,
		MonitorRetryBudget:                        3,
		PeriodOfNoProcessedRecordsChangeInMinutes: 30,
		ExecutionWallClockCapMinutes:              2880,
		ClaimTTLSeconds:                           120,
		SchedulerTickSeconds:                      60,
	}
}

func (e Engine) Validate() error {
	err := validator.New().Struct(e)
	if err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}

	if e.ClaimTTLSeconds <= e.SchedulerTickSeconds {
		return fmt.Errorf("claim TTL (%ds) must exceed the scheduler tick (%ds)",
			e.ClaimTTLSeconds, e.SchedulerTickSeconds)
	}

	// The claim heartbeat rides on the monitor-info write of every poll, so
	// a poll period at or above the lease would let claims lapse mid-run.
	if e.PollIntervalSeconds >= e.ClaimTTLSeconds {
		return fmt.Errorf("poll interval (%ds) must stay below the claim TTL (%ds)",
			e.PollIntervalSeconds, e.ClaimTTLSeconds)
	}

	return nil
}

func (e Engine) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

func (e Engine) StallTimeout() time.Duration {
	return time.Duration(e.PeriodOfNoProcessedRecordsChangeInMinutes) * time.Minute
}

func (e Engine) WallClockCap() time.Duration {
	return time.Duration(e.ExecutionWallClockCapMinutes) * time.Minute
}

func (e Engine) ClaimTTL() time.Duration {
	return time.Duration(e.ClaimTTLSeconds) * time.Second
}

func (e Engine) SchedulerTick() time.Duration {
	return time.Duration(e.SchedulerTickSeconds) * time.Second
}
