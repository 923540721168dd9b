package main

import (
	"context"
	"os"
	"time"

	"github.com/dukex/sniper/pkg/cmd"
	"github.com/dukex/sniper/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "sniper-worker",
		Usage:                 "Execute submitted analysis tasks",
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
				Name:    "database-url",
				Usage:   "Persistence target: redis:// URL or a directory for file storage",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (memory, kafka)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "connector",
				Usage:   "Platform connector provider (static)",
				Value:   "static",
				Sources: cli.EnvVars("CONNECTOR"),
			},
			&cli.StringSliceFlag{
				Name:    "monitor-url",
				Usage:   "Note URL to watch for changes (repeatable)",
				Sources: cli.EnvVars("MONITOR_URLS"),
			},
			&cli.DurationFlag{
				Name:    "monitor-interval",
				Usage:   "Interval between monitor checks",
				Value:   time.Minute,
				Sources: cli.EnvVars("MONITOR_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger := log.WithModule("sniper-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Sniper Worker")

			connector := cmd.NewConnector(command.String("connector"), logger)
			registry := cmd.NewRegistry(logger, connector)

			persistence := cmd.NewPersistence(logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "sniper-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			worker := NewWorker(
				workerID,
				persistence,
				registry,
				eventBus,
				connector,
				logger,
				WorkerOptions{
					Tracing:         command.Bool("tracing"),
					MonitorURLs:     command.StringSlice("monitor-url"),
					MonitorInterval: command.Duration("monitor-interval"),
				},
			)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Worker stopped", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
