package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/mnemion/mnemion/pkg/config"
	"github.com/mnemion/mnemion/pkg/log"
)

const defaultPort = 9091

func main() {
	defaults := config.Defaults()

	cmd := &cli.Command{
		Name:                  "mnemion-orchestrator",
		Usage:                 "Run the workflow orchestration engine: scheduler, workers, monitor and operations API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Value:    "kafka",
				Required: false,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "dps-url",
				Usage:    "Base URL of the distributed processing service",
				Required: true,
				Sources:  cli.EnvVars("DPS_URL"),
			},
			&cli.StringFlag{
				Name:    "provider-id",
				Usage:   "Provider identity stamped on record revisions",
				Value:   "mnemion",
				Sources: cli.EnvVars("PROVIDER_ID"),
			},
			&cli.StringFlag{
				Name:     "schemas-zip-url",
				Usage:    "URL of the validation schemas archive",
				Required: true,
				Sources:  cli.EnvVars("SCHEMAS_ZIP_URL"),
			},
			&cli.StringFlag{
				Name:    "schema-root-path",
				Usage:   "Schema root path inside the schemas archive",
				Value:   "EDM.xsd",
				Sources: cli.EnvVars("SCHEMA_ROOT_PATH"),
			},
			&cli.StringFlag{
				Name:    "schematron-root-path",
				Usage:   "Schematron root path inside the schemas archive",
				Value:   "schematron/schematron.xsl",
				Sources: cli.EnvVars("SCHEMATRON_ROOT_PATH"),
			},
			&cli.BoolFlag{
				Name:    "alternative-indexing",
				Usage:   "Route indexing plugins to the alternative environment",
				Sources: cli.EnvVars("USE_ALTERNATIVE_INDEXING_ENVIRONMENT"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the operations API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-executions",
				Usage:   "Worker pool size",
				Value:   defaults.MaxConcurrentExecutions,
				Sources: cli.EnvVars("MAX_CONCURRENT_EXECUTIONS"),
			},
			&cli.IntFlag{
				Name:    "poll-interval-seconds",
				Usage:   "Period between task progress polls",
				Value:   defaults.PollIntervalSeconds,
				Sources: cli.EnvVars("POLL_INTERVAL_SECONDS"),
			},
			&cli.IntFlag{
				Name:    "monitor-retry-budget",
				Usage:   "Consecutive transient monitor failures tolerated",
				Value:   defaults.MonitorRetryBudget,
				Sources: cli.EnvVars("MONITOR_RETRY_BUDGET"),
			},
			&cli.IntFlag{
				Name:    "stall-minutes",
				Usage:   "Minutes without record progress before a plugin fails",
				Value:   defaults.PeriodOfNoProcessedRecordsChangeInMinutes,
				Sources: cli.EnvVars("PERIOD_OF_NO_PROCESSED_RECORDS_CHANGE_IN_MINUTES"),
			},
			&cli.IntFlag{
				Name:    "wall-clock-cap-minutes",
				Usage:   "Maximum execution duration before system cancellation (0 disables)",
				Value:   defaults.ExecutionWallClockCapMinutes,
				Sources: cli.EnvVars("EXECUTION_WALL_CLOCK_CAP_MINUTES"),
			},
			&cli.IntFlag{
				Name:    "claim-ttl-seconds",
				Usage:   "Claim lease duration",
				Value:   defaults.ClaimTTLSeconds,
				Sources: cli.EnvVars("CLAIM_TTL_SECONDS"),
			},
			&cli.IntFlag{
				Name:    "scheduler-tick-seconds",
				Usage:   "Scheduler and monitor period",
				Value:   defaults.SchedulerTickSeconds,
				Sources: cli.EnvVars("SCHEDULER_TICK_SECONDS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("mnemion-orchestrator").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Mnemion orchestrator")

			return runOrchestrator(ctx, logger, workerID, command)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
