package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/eventbus"
	"github.com/dukex/sniper/pkg/events"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/monitor"
	"github.com/dukex/sniper/pkg/otelhelper"
	"github.com/dukex/sniper/pkg/persistence"
	"github.com/dukex/sniper/pkg/registry"
)

// WorkerOptions carries the optional concerns of a worker process.
type WorkerOptions struct {
	Tracing         bool
	MonitorURLs     []string
	MonitorInterval time.Duration
}

// Worker consumes task submissions from the event bus and executes them on
// the local pipeline registry. It optionally runs the URL change monitor in
// the same process.
type Worker struct {
	id          string
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	connector   connector.Connector
	logger      *slog.Logger
	opts        WorkerOptions

	taskService *executor.Service
}

func NewWorker(
	id string,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	conn connector.Connector,
	logger *slog.Logger,
	opts WorkerOptions,
) *Worker {
	return &Worker{
		id:          id,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		connector:   conn,
		logger:      logger,
		opts:        opts,
	}
}

// Start subscribes to the submission topic and blocks until a termination
// signal or ctx cancellation.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	repo := w.persistence.TaskRepository()
	exec := executor.NewExecutor(repo, w.registry, w.eventBus, w.id, w.logger)

	if w.opts.Tracing {
		tracer, err := otelhelper.NewTracer(ctx, "sniper-worker")
		if err != nil {
			return err
		}

		exec = exec.WithTracer(tracer)
	}

	w.taskService = executor.NewService(repo, w.registry, w.eventBus, exec, w.logger)

	w.eventBus.Handle(events.TaskSubmittedEvent, w.handleTaskSubmitted)

	if err := w.eventBus.Subscribe(ctx, events.SubmissionTopic); err != nil {
		return err
	}

	if len(w.opts.MonitorURLs) > 0 {
		urlMonitor := monitor.NewMonitor(w.connector, w.eventBus, w.opts.MonitorURLs, w.opts.MonitorInterval, w.logger)

		go func() {
			if err := urlMonitor.Start(ctx); err != nil {
				w.logger.Error("URL monitor stopped", "error", err)
			}
		}()
	}

	w.logger.Info("Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.Info("Shutting down worker")
	case <-ctx.Done():
	}

	return nil
}

func (w *Worker) handleTaskSubmitted(ctx context.Context, event any) error {
	submitted, ok := event.(*events.TaskSubmitted)
	if !ok {
		w.logger.Error("Invalid event type for task submission")

		return nil
	}

	w.logger.Info("Processing submitted task",
		"task_id", submitted.TaskID,
		"task_type", submitted.TaskType,
		"event_id", submitted.ID,
	)

	if err := w.taskService.Execute(ctx, submitted.TaskID); err != nil {
		w.logger.Error("Task execution failed", "task_id", submitted.TaskID, "error", err)

		return err
	}

	return nil
}
