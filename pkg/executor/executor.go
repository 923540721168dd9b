package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sniper/pkg/eventbus"
	"github.com/dukex/sniper/pkg/events"
	"github.com/dukex/sniper/pkg/models"
	"github.com/dukex/sniper/pkg/otelhelper"
	"github.com/dukex/sniper/pkg/persistence"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// resumeFromKey in task metadata holds the 1-based pipeline position the
// task starts from. Records without it run the full pipeline.
const resumeFromKey = "resume_from"

// Executor drives one task from pending to a terminal state, running its
// pipeline strictly sequentially. Each step boundary merges the output into
// shared context, appends the log entry, recomputes progress and saves: the
// save is the sole durability checkpoint, and step n+1 never starts before
// step n's entry is durable.
type Executor struct {
	repo     persistence.TaskRepository
	registry *registry.Registry
	eventBus eventbus.EventBus
	workerID string
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewExecutor(
	repo persistence.TaskRepository,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	workerID string,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		repo:     repo,
		registry: reg,
		eventBus: eventBus,
		workerID: workerID,
		logger:   logger.With("module", "executor", "worker_id", workerID),
	}
}

// WithTracer enables per-task and per-step spans.
func (e *Executor) WithTracer(tracer trace.Tracer) *Executor {
	e.tracer = tracer

	return e
}

// Execute runs the task's pipeline to a terminal state. Step failures are
// converted into a failed task record and do not surface as errors; only
// engine-level defects (unknown task, unregistered type, persistence
// failure) are returned to the caller.
func (e *Executor) Execute(ctx context.Context, taskID string, cancelled func() bool) error {
	logger := e.logger.With("task_id", taskID)

	task, err := e.repo.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	if task.IsTerminal() {
		// Cancelled before the worker picked it up.
		logger.Info("Task already terminal, nothing to execute", "status", task.Status)

		return nil
	}

	pipeline, err := e.registry.Get(task.TaskType)
	if err != nil {
		return fmt.Errorf("failed to resolve pipeline for task %s: %w", taskID, err)
	}

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "task.execute",
			attribute.String(otelhelper.TaskIDKey, task.ID),
			attribute.String(otelhelper.TaskTypeKey, task.TaskType),
		)
		defer span.End()
	}

	if err := e.run(ctx, task, pipeline, cancelled, logger); err != nil {
		if errors.Is(err, ErrTaskFinalized) {
			// Another process finalized the record, typically a cancel from
			// the API. The stored terminal state stands.
			logger.Info("Task finalized elsewhere, halting", "error", err)

			return nil
		}

		return err
	}

	return nil
}

func (e *Executor) run(
	ctx context.Context,
	task *models.Task,
	pipeline registry.Pipeline,
	cancelled func() bool,
	logger *slog.Logger,
) error {
	start := resumeStart(task, pipeline)
	steps := pipeline.Steps[start:]
	total := len(steps)

	if err := task.Start(); err != nil {
		return err
	}

	if err := e.checkpoint(ctx, task); err != nil {
		return err
	}

	logger.Info("Task started", "task_type", task.TaskType, "total_steps", total, "first_step", start+1)
	e.publish(ctx, task.ID, &events.TaskStarted{
		BaseEvent:  e.baseEvent(events.TaskStartedEvent, task.ID),
		TaskType:   task.TaskType,
		TotalSteps: total,
	})

	store := NewContextStore(task)

	for i, unit := range steps {
		if cancelled != nil && cancelled() {
			return e.finishCancelled(ctx, task, logger)
		}

		// seq numbers the entry within this record's log; position is the
		// slot in the declared pipeline. They differ for resumed tasks.
		seq := i + 1
		position := start + i + 1

		done, err := e.runStep(ctx, task, store, unit, seq, position, total, logger)
		if err != nil {
			return err
		}

		if !done {
			// Step failed; the record is already terminal and saved.
			return nil
		}
	}

	return e.finishCompleted(ctx, task, logger)
}

// runStep executes one unit and checkpoints the result. It returns false
// when the step failed and the task was finalized.
func (e *Executor) runStep(
	ctx context.Context,
	task *models.Task,
	store *ContextStore,
	unit protocol.StepUnit,
	seq, position, total int,
	logger *slog.Logger,
) (bool, error) {
	stepLogger := logger.With("step", seq, "step_name", unit.Name())

	stepCtx := ctx

	if e.tracer != nil {
		var span trace.Span

		stepCtx, span = otelhelper.StartSpan(ctx, e.tracer, "task.step",
			attribute.String(otelhelper.StepNameKey, unit.Name()),
			attribute.Int(otelhelper.StepPositionKey, position),
		)
		defer span.End()
	}

	startedAt := time.Now().UTC()

	input, err := store.Subset(unit.Requires())
	if err != nil {
		stepLogger.Error("Step input assembly failed", "error", err)

		return false, e.finishFailed(ctx, task, models.StepLogEntry{
			Step:      seq,
			Name:      unit.Name(),
			Status:    models.StepStatusFailed,
			Error:     err.Error(),
			StartedAt: startedAt,
		}, logger)
	}

	stepLogger.Info("Executing step")

	output, err := invoke(stepCtx, unit, protocol.StepInput{
		TaskID:  task.ID,
		Config:  task.Config,
		Context: input,
		Logger:  stepLogger,
	})
	if err != nil {
		stepLogger.Error("Step failed", "error", err)

		return false, e.finishFailed(ctx, task, models.StepLogEntry{
			Step:      seq,
			Name:      unit.Name(),
			Input:     input,
			Status:    models.StepStatusFailed,
			Error:     err.Error(),
			StartedAt: startedAt,
		}, logger)
	}

	if err := store.Write(StepKey(position, unit.Name()), output); err != nil {
		return false, err
	}

	// A step may promote an explicit final result for the record.
	if final, ok := output["final_result"]; ok {
		if err := store.Write("final_result", final); err != nil {
			return false, err
		}
	}

	entry := models.StepLogEntry{
		Step:       seq,
		Name:       unit.Name(),
		Input:      input,
		Output:     output,
		Status:     models.StepStatusCompleted,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	task.AppendLog(entry)
	task.SetProgress(seq * 100 / total)

	if err := e.checkpoint(ctx, task); err != nil {
		return false, err
	}

	stepLogger.Info("Step completed", "progress", task.Progress)

	e.publish(ctx, task.ID, &events.TaskStep{
		BaseEvent: e.baseEvent(events.TaskStepEvent, task.ID),
		Entry:     entry,
	})
	e.publish(ctx, task.ID, &events.TaskProgress{
		BaseEvent: e.baseEvent(events.TaskProgressEvent, task.ID),
		Progress:  task.Progress,
		Completed: seq,
		Total:     total,
		StepName:  unit.Name(),
	})

	return true, nil
}

// invoke calls a step unit, converting a panic into a step failure so a
// broken unit never takes the worker down.
func invoke(ctx context.Context, unit protocol.StepUnit, in protocol.StepInput) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()

	return unit.Run(ctx, in)
}

func (e *Executor) finishCompleted(ctx context.Context, task *models.Task, logger *slog.Logger) error {
	result := assembleResult(task)

	if err := task.Complete(result); err != nil {
		return err
	}

	if err := e.checkpoint(ctx, task); err != nil {
		return err
	}

	var duration time.Duration
	if task.StartedAt != nil && task.CompletedAt != nil {
		duration = task.CompletedAt.Sub(*task.StartedAt)
	}

	logger.Info("Task completed", "duration", duration, "steps", len(task.Logs))
	e.publish(ctx, task.ID, &events.TaskCompleted{
		BaseEvent: e.baseEvent(events.TaskCompletedEvent, task.ID),
		Result:    task.Result,
		Duration:  duration,
	})

	return nil
}

func (e *Executor) finishFailed(ctx context.Context, task *models.Task, entry models.StepLogEntry, logger *slog.Logger) error {
	entry.FinishedAt = time.Now().UTC()
	task.AppendLog(entry)

	if err := task.Fail(entry.Step, entry.Error); err != nil {
		return err
	}

	if err := e.checkpoint(ctx, task); err != nil {
		return err
	}

	logger.Warn("Task failed", "failed_step", entry.Step, "error", entry.Error)
	e.publish(ctx, task.ID, &events.TaskStep{
		BaseEvent: e.baseEvent(events.TaskStepEvent, task.ID),
		Entry:     entry,
	})
	e.publish(ctx, task.ID, &events.TaskFailed{
		BaseEvent:  e.baseEvent(events.TaskFailedEvent, task.ID),
		FailedStep: entry.Step,
		Error:      entry.Error,
	})

	return nil
}

func (e *Executor) finishCancelled(ctx context.Context, task *models.Task, logger *slog.Logger) error {
	if err := task.Cancel(); err != nil {
		return err
	}

	if err := e.checkpoint(ctx, task); err != nil {
		return err
	}

	logger.Info("Task cancelled between steps", "completed_steps", task.LastCompletedStep())
	e.publish(ctx, task.ID, &events.TaskCancelled{
		BaseEvent: e.baseEvent(events.TaskCancelledEvent, task.ID),
	})

	return nil
}

// checkpoint persists the record. A record finalized by another process must
// never be overwritten, so the stored state is checked first; a terminal
// record with a different status refuses the save with ErrTaskFinalized. On
// failure the caller must stop advancing: the task stays eligible for a
// resume decision from its last durable state.
func (e *Executor) checkpoint(ctx context.Context, task *models.Task) error {
	stored, err := e.repo.GetByID(ctx, task.ID)
	if err == nil && stored.IsTerminal() && stored.Status != task.Status {
		return fmt.Errorf("%w: task %s is already %s in storage", ErrTaskFinalized, task.ID, stored.Status)
	}

	if err := e.repo.Save(ctx, task); err != nil {
		return fmt.Errorf("durability checkpoint failed for task %s: %w", task.ID, err)
	}

	return nil
}

func (e *Executor) publish(ctx context.Context, taskID string, event eventbus.Event) {
	if err := e.eventBus.Publish(ctx, events.TaskTopic(taskID), event); err != nil {
		// Live updates are best effort; the saved record is authoritative.
		e.logger.Debug("Failed to publish task event", "task_id", taskID, "event_type", event.GetType(), "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, taskID string) events.BaseEvent {
	base := events.NewBaseEvent(e.eventBus.GenerateID(), eventType, taskID)
	base.WorkerID = e.workerID

	return base
}

// assembleResult prefers an explicit final_result key; otherwise the full
// shared context becomes the result.
func assembleResult(task *models.Task) map[string]any {
	if final, ok := task.SharedContext["final_result"]; ok {
		if m, isMap := final.(map[string]any); isMap {
			return m
		}

		return map[string]any{"final_result": final}
	}

	result := make(map[string]any, len(task.SharedContext))
	for key, value := range task.SharedContext {
		result[key] = value
	}

	return result
}

// resumeStart returns the 0-based pipeline index the record starts from.
func resumeStart(task *models.Task, pipeline registry.Pipeline) int {
	raw, ok := task.Metadata[resumeFromKey]
	if !ok {
		return 0
	}

	var from int

	switch v := raw.(type) {
	case int:
		from = v
	case float64: // metadata round-tripped through JSON
		from = int(v)
	default:
		return 0
	}

	if from < 1 || from > pipeline.TotalSteps() {
		return 0
	}

	return from - 1
}
