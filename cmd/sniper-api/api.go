// Package main provides the Sniper API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/sniper/pkg/eventbus"
	"github.com/dukex/sniper/pkg/events"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/persistence"
	"github.com/dukex/sniper/pkg/registry"
	"github.com/dukex/sniper/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
	standalone  bool
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	standalone bool,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		standalone:  standalone,
	}
}

func (a *API) App() (*fiber.App, *executor.Service) {
	repo := a.persistence.TaskRepository()
	exec := executor.NewExecutor(repo, a.registry, a.eventBus, "api-embedded", a.logger)
	taskService := executor.NewService(repo, a.registry, a.eventBus, exec, a.logger)

	handlers := web.NewAPIHandlers(taskService, repo, a.registry, a.eventBus, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Sniper API")
	})

	tasks := app.Group("/tasks")
	tasks.Post("/", handlers.SubmitTask)
	tasks.Get("/", handlers.GetTasks)
	tasks.Get("/:id", handlers.GetTask)
	tasks.Get("/:id/status", handlers.GetTaskStatus)
	tasks.Get("/:id/logs", handlers.GetTaskLogs)
	tasks.Get("/:id/diagnosis", handlers.GetTaskDiagnosis)
	tasks.Get("/:id/events", handlers.StreamTaskEvents)
	tasks.Post("/:id/cancel", handlers.CancelTask)
	tasks.Post("/:id/retry", handlers.RetryTask)
	tasks.Post("/:id/resume", handlers.ResumeTask)

	app.Get("/agents", handlers.GetAgents)
	app.Get("/time-savings", handlers.GetTimeSavings)
	app.Get("/health", handlers.HealthCheck)

	return app, taskService
}

func (a *API) Start(ctx context.Context, port int) error {
	app, taskService := a.App()

	if a.standalone {
		if err := a.startEmbeddedWorker(ctx, taskService); err != nil {
			return err
		}
	}

	return app.Listen(":" + strconv.Itoa(port))
}

// startEmbeddedWorker consumes submissions on the API's own bus so a
// single-process deployment executes tasks without a separate worker binary.
func (a *API) startEmbeddedWorker(ctx context.Context, taskService *executor.Service) error {
	a.logger.Info("Starting embedded worker")

	a.eventBus.Handle(events.TaskSubmittedEvent, func(ctx context.Context, event any) error {
		submitted, ok := event.(*events.TaskSubmitted)
		if !ok {
			a.logger.Error("Invalid event type for task submission")

			return nil
		}

		return taskService.Execute(ctx, submitted.TaskID)
	})

	return a.eventBus.Subscribe(ctx, events.SubmissionTopic)
}
