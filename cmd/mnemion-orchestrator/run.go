package main

import (
	"context"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/mnemion/mnemion/pkg/chain"
	"github.com/mnemion/mnemion/pkg/cmd"
	"github.com/mnemion/mnemion/pkg/config"
	"github.com/mnemion/mnemion/pkg/dps"
	"github.com/mnemion/mnemion/pkg/driver"
	"github.com/mnemion/mnemion/pkg/executor"
	"github.com/mnemion/mnemion/pkg/factory"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/monitor"
	"github.com/mnemion/mnemion/pkg/orchestration"
	"github.com/mnemion/mnemion/pkg/otelhelper"
	"github.com/mnemion/mnemion/pkg/scheduler"
	"github.com/mnemion/mnemion/pkg/web"
)

func engineConfig(command *cli.Command) config.Engine {
	return config.Engine{
		MaxConcurrentExecutions:                   command.Int("max-concurrent-executions"),
		PollIntervalSeconds:                       command.Int("poll-interval-seconds"),
		MonitorRetryBudget:                        command.Int("monitor-retry-budget"),
		PeriodOfNoProcessedRecordsChangeInMinutes: command.Int("stall-minutes"),
		ExecutionWallClockCapMinutes:              command.Int("wall-clock-cap-minutes"),
		ClaimTTLSeconds:                           command.Int("claim-ttl-seconds"),
		SchedulerTickSeconds:                      command.Int("scheduler-tick-seconds"),
	}
}

func runOrchestrator(ctx context.Context, logger *slog.Logger, workerID string, command *cli.Command) error {
	engine := engineConfig(command)

	err := engine.Validate()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"), engine.ClaimTTL())

	defer func() {
		closeErr := store.Close(ctx)
		if closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", closeErr)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

	defer func() {
		closeErr := eventBus.Close()
		if closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", closeErr)
		}
	}()

	tracer, err := otelhelper.NewTracer(ctx, "mnemion-orchestrator")
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)
	}

	dpsClient := dps.NewRESTClient(command.String("dps-url"), logger)

	pluginDriver := driver.NewDriver(
		dpsClient,
		store.Executions(),
		command.String("provider-id"),
		engine.MonitorRetryBudget,
		logger,
	)

	resolver := chain.NewResolver(store.Executions())

	executionFactory, err := factory.NewFactory(store.Xslts(), resolver, factory.Config{
		Validation: models.ValidationProperties{
			SchemasZipURL:      command.String("schemas-zip-url"),
			SchemaRootPath:     command.String("schema-root-path"),
			SchematronRootPath: command.String("schematron-root-path"),
		},
		UseAlternativeIndexingEnvironment: command.Bool("alternative-indexing"),
	}, logger)
	if err != nil {
		return err
	}

	executionMonitor := monitor.NewMonitor(store.Executions(), workerID, monitor.Config{
		Tick:         engine.SchedulerTick(),
		ClaimTTL:     engine.ClaimTTL(),
		WallClockCap: engine.WallClockCap(),
	}, logger)

	workflowExecutor := executor.NewExecutor(
		store.Executions(),
		pluginDriver,
		executionMonitor,
		eventBus,
		workerID,
		executor.Config{
			PollInterval: engine.PollInterval(),
			StallTimeout: engine.StallTimeout(),
		},
		logger,
		tracer,
	)

	dispatchScheduler := scheduler.NewScheduler(
		store.Executions(),
		workflowExecutor,
		eventBus,
		scheduler.Config{
			MaxConcurrent: engine.MaxConcurrentExecutions,
			Tick:          engine.SchedulerTick(),
		},
		logger,
	)

	service := orchestration.NewService(store, executionFactory, eventBus, logger)

	go executionMonitor.Start(ctx)

	go func() {
		schedErr := dispatchScheduler.Start(ctx)
		if schedErr != nil {
			logger.ErrorContext(ctx, "Scheduler stopped with error", "error", schedErr)
		}
	}()

	app := web.NewApp(service, store)

	go func() {
		<-ctx.Done()

		shutdownErr := app.Shutdown()
		if shutdownErr != nil {
			logger.ErrorContext(ctx, "Failed to shut down API", "error", shutdownErr)
		}
	}()

	logger.InfoContext(ctx, "Starting operations API", "port", command.Int("port"))

	return app.Listen(":" + strconv.Itoa(command.Int("port")))
}
