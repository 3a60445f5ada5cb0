package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/mnemion/mnemion/pkg/chain"
	"github.com/mnemion/mnemion/pkg/cmd"
	"github.com/mnemion/mnemion/pkg/factory"
	"github.com/mnemion/mnemion/pkg/log"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/orchestration"
	"github.com/mnemion/mnemion/pkg/queue"
	"github.com/mnemion/mnemion/pkg/triggers/calendar"
)

const defaultClaimTTLSeconds = 120

func main() {
	cmdRoot := &cli.Command{
		Name:                  "mnemion-trigger",
		Usage:                 "Run the trigger producers: request queue listener and calendar scheduler",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address of the request queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Value:   "",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				Value:   0,
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "request-queue",
				Usage:   "Redis list holding orchestration requests",
				Value:   "mnemion.requests",
				Sources: cli.EnvVars("REQUEST_QUEUE"),
			},
			&cli.IntFlag{
				Name:    "calendar-tick-seconds",
				Usage:   "Period of the calendar rule scan",
				Value:   60,
				Sources: cli.EnvVars("CALENDAR_TICK_SECONDS"),
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := cmdRoot.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("mnemion-trigger")
	logger.InfoContext(ctx, "Initializing Mnemion trigger producers")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"), defaultClaimTTLSeconds*time.Second)

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

	service := orchestration.NewService(store, executionFactory, eventBus, logger)

	listener, err := queue.NewListener(service, queue.Config{
		Addr:     command.String("redis-addr"),
		Password: command.String("redis-password"),
		DB:       command.Int("redis-db"),
		Queue:    command.String("request-queue"),
	}, logger)
	if err != nil {
		return err
	}

	err = listener.Start(ctx)
	if err != nil {
		return err
	}

	defer func() {
		stopErr := listener.Stop(context.WithoutCancel(ctx))
		if stopErr != nil {
			logger.ErrorContext(ctx, "Failed to stop queue listener", "error", stopErr)
		}
	}()

	producer := calendar.NewProducer(store.Schedules(), service,
		time.Duration(command.Int("calendar-tick-seconds"))*time.Second, logger)

	producer.Start(ctx)

	return nil
}
