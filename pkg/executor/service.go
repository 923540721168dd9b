package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/sniper/pkg/eventbus"
	"github.com/dukex/sniper/pkg/events"
	"github.com/dukex/sniper/pkg/models"
	"github.com/dukex/sniper/pkg/persistence"
	"github.com/dukex/sniper/pkg/registry"
	"github.com/google/uuid"
)

// Service is the submission and cancellation surface of the engine. It owns
// the explicit registry of in-flight tasks: entries are created when
// execution starts and removed when it returns, never garbage-collected
// mid-execution.
type Service struct {
	repo     persistence.TaskRepository
	registry *registry.Registry
	eventBus eventbus.EventBus
	executor *Executor
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*atomic.Bool // task id -> cancel flag
}

func NewService(
	repo persistence.TaskRepository,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	exec *Executor,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		registry: reg,
		eventBus: eventBus,
		executor: exec,
		logger:   logger.With("module", "task_service"),
		inflight: make(map[string]*atomic.Bool),
	}
}

// Submit validates the config against the pipeline's schema, creates a
// pending record carrying the caller's metadata, and announces it on the
// submission topic. It returns immediately; an executing worker picks the
// task up from the announcement.
func (s *Service) Submit(ctx context.Context, taskType, sourceID string, config, metadata map[string]any) (*models.Task, error) {
	if err := s.registry.ValidateConfig(taskType, config); err != nil {
		return nil, err
	}

	task := models.NewTask(uuid.NewString(), sourceID, taskType, config)
	for key, value := range metadata {
		task.Metadata[key] = value
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task record: %w", err)
	}

	s.logger.Info("Task submitted", "task_id", task.ID, "task_type", taskType, "source_id", sourceID)

	event := &events.TaskSubmitted{
		BaseEvent: events.NewBaseEvent(s.eventBus.GenerateID(), events.TaskSubmittedEvent, task.ID),
		TaskType:  taskType,
		SourceID:  sourceID,
		Config:    config,
	}
	if err := s.eventBus.Publish(ctx, events.SubmissionTopic, event); err != nil {
		s.logger.Error("Failed to announce submission", "task_id", task.ID, "error", err)
	}

	return task, nil
}

// Resubmit persists an already-seeded task record (a retry or resume of a
// prior record) and announces it on the submission topic.
func (s *Service) Resubmit(ctx context.Context, task *models.Task) error {
	if err := s.repo.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to create task record: %w", err)
	}

	s.logger.Info("Task resubmitted", "task_id", task.ID, "task_type", task.TaskType, "metadata", task.Metadata)

	event := &events.TaskSubmitted{
		BaseEvent: events.NewBaseEvent(s.eventBus.GenerateID(), events.TaskSubmittedEvent, task.ID),
		TaskType:  task.TaskType,
		SourceID:  task.SourceID,
		Config:    task.Config,
	}
	if err := s.eventBus.Publish(ctx, events.SubmissionTopic, event); err != nil {
		s.logger.Error("Failed to announce submission", "task_id", task.ID, "error", err)
	}

	return nil
}

// Execute runs a submitted task on the calling goroutine, tracking it in the
// in-flight registry so Cancel can reach it between steps.
func (s *Service) Execute(ctx context.Context, taskID string) error {
	flag := &atomic.Bool{}

	s.mu.Lock()
	s.inflight[taskID] = flag
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, taskID)
		s.mu.Unlock()
	}()

	return s.executor.Execute(ctx, taskID, flag.Load)
}

// Cancel requests cooperative cancellation. A task executing in this process
// gets its flag set and finishes the in-flight step first; the executor
// evaluates the flag before starting the next one. A task not held here is
// finalized directly in storage: a worker that has not picked it up yet skips
// it, and one mid-execution observes the terminal record at its next
// checkpoint and halts. Terminal tasks report ErrAlreadyTerminal.
func (s *Service) Cancel(ctx context.Context, taskID string) error {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	if task.IsTerminal() {
		return fmt.Errorf("%w: task %s is %s", ErrAlreadyTerminal, taskID, task.Status)
	}

	s.mu.Lock()
	flag, running := s.inflight[taskID]
	s.mu.Unlock()

	if running {
		flag.Store(true)
		s.logger.Info("Cancellation requested for running task", "task_id", taskID)

		return nil
	}

	// Not executing in this process: finalize the stored record. The
	// executor's checkpoint refuses to save over a terminal record, so a
	// worker elsewhere cannot resurrect the task.
	was := task.Status

	if err := task.Cancel(); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, task); err != nil {
		return fmt.Errorf("durability checkpoint failed for task %s: %w", taskID, err)
	}

	event := &events.TaskCancelled{
		BaseEvent: events.NewBaseEvent(s.eventBus.GenerateID(), events.TaskCancelledEvent, taskID),
	}
	if err := s.eventBus.Publish(ctx, events.TaskTopic(taskID), event); err != nil {
		s.logger.Debug("Failed to publish cancellation", "task_id", taskID, "error", err)
	}

	s.logger.Info("Task cancelled in storage", "task_id", taskID, "was", was)

	return nil
}

// Running reports whether the service currently executes the task.
func (s *Service) Running(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.inflight[taskID]

	return ok
}
