package main

import (
	"context"
	"os"

	"github.com/dukex/sniper/pkg/cmd"
	"github.com/dukex/sniper/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "sniper-api",
		Usage:                 "Submit and inspect analysis tasks",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence target: redis:// URL or a directory for file storage",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "connector",
				Usage:   "Platform connector provider (static)",
				Value:   "static",
				Sources: cli.EnvVars("CONNECTOR"),
			},
			&cli.BoolFlag{
				Name:    "standalone",
				Usage:   "Run an embedded worker so tasks execute in-process (for the memory event bus)",
				Sources: cli.EnvVars("STANDALONE"),
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

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Sniper API")

			connector := cmd.NewConnector(command.String("connector"), logger)
			registry := cmd.NewRegistry(logger, connector)

			persistence := cmd.NewPersistence(logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "sniper-api", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, registry, eventBus, command.Bool("standalone"))

			if err := api.Start(ctx, command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
