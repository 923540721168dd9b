// Package models defines the core domain models for asynchronous task execution.
package models

import (
	"errors"
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // Created, not yet picked up by a worker
	TaskStatusRunning   TaskStatus = "running"   // Owned by exactly one executing worker
	TaskStatusCompleted TaskStatus = "completed" // Terminal, result available
	TaskStatusFailed    TaskStatus = "failed"    // Terminal, error available
	TaskStatusCancelled TaskStatus = "cancelled" // Terminal, stopped by an explicit cancel
)

// ErrInvalidTransition is returned when a status change violates the task
// state machine. The task is left untouched.
var ErrInvalidTransition = errors.New("invalid task status transition")

// validTransitions is the full transition table of the task state machine.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusRunning, TaskStatusCancelled},
	TaskStatusRunning: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
}

// StepStatus is the terminal state of one recorded step.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepLogEntry records the input, output and outcome of a single pipeline
// step. Entries are append-only and ordered by Step with no gaps.
type StepLogEntry struct {
	Step       int            `json:"step"` // 1-based position in the pipeline
	Name       string         `json:"name"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Status     StepStatus     `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// TaskError describes why a task failed: which step broke and the step's own
// message, preserved verbatim.
type TaskError struct {
	FailedStep int    `json:"failed_step"`
	Message    string `json:"message"`
}

// Task is the durable record of one asynchronous job. It is both the control
// structure the executor sequences work with and the memory an agent reads to
// decide what to do next: every step's input and output lands in Logs, every
// derived artifact lands in SharedContext under a stable key.
//
// A task is exclusively owned by its executing worker while running and
// becomes read-only once it reaches a terminal status.
type Task struct {
	ID       string         `json:"id"`
	SourceID string         `json:"source_id" validate:"required"`
	TaskType string         `json:"task_type" validate:"required"`
	Config   map[string]any `json:"config"`

	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"` // 0-100, non-decreasing while running

	SharedContext map[string]any `json:"shared_context"`
	Logs          []StepLogEntry `json:"logs"`

	Result map[string]any `json:"result,omitempty"`
	Error  *TaskError     `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTask creates a pending task for the given type and request payload.
// Config is the original request and is never mutated afterwards, so a failed
// task can always be retried from it.
func NewTask(id, sourceID, taskType string, config map[string]any) *Task {
	if config == nil {
		config = make(map[string]any)
	}

	return &Task{
		ID:            id,
		SourceID:      sourceID,
		TaskType:      taskType,
		Config:        config,
		Status:        TaskStatusPending,
		SharedContext: make(map[string]any),
		Logs:          make([]StepLogEntry, 0),
		Metadata:      make(map[string]any),
		CreatedAt:     time.Now().UTC(),
	}
}

// IsTerminal reports whether the task reached a state that permits no further
// mutation.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted ||
		t.Status == TaskStatusFailed ||
		t.Status == TaskStatusCancelled
}

func (t *Task) canTransition(to TaskStatus) bool {
	for _, allowed := range validTransitions[t.Status] {
		if allowed == to {
			return true
		}
	}

	return false
}

func (t *Task) transition(to TaskStatus) error {
	if !t.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	t.Status = to

	return nil
}

// Start moves the task from pending to running and stamps StartedAt once.
func (t *Task) Start() error {
	if err := t.transition(TaskStatusRunning); err != nil {
		return err
	}

	now := time.Now().UTC()
	t.StartedAt = &now

	return nil
}

// Complete finalizes the task with its result. Progress is forced to 100.
func (t *Task) Complete(result map[string]any) error {
	if err := t.transition(TaskStatusCompleted); err != nil {
		return err
	}

	t.Result = result
	t.Progress = 100
	now := time.Now().UTC()
	t.CompletedAt = &now

	return nil
}

// Fail finalizes the task with a structured error. Context and logs written by
// prior steps are left intact so a later resume decision can build on them.
// Progress freezes at its last recorded value.
func (t *Task) Fail(failedStep int, message string) error {
	if err := t.transition(TaskStatusFailed); err != nil {
		return err
	}

	t.Error = &TaskError{FailedStep: failedStep, Message: message}
	now := time.Now().UTC()
	t.CompletedAt = &now

	return nil
}

// Cancel finalizes the task from pending or running.
func (t *Task) Cancel() error {
	if err := t.transition(TaskStatusCancelled); err != nil {
		return err
	}

	now := time.Now().UTC()
	t.CompletedAt = &now

	return nil
}

// SetProgress records progress, clamped to [0,100]. Progress never moves
// backwards and never changes once the task is terminal.
func (t *Task) SetProgress(progress int) {
	if t.IsTerminal() {
		return
	}

	if progress < 0 {
		progress = 0
	}

	if progress > 100 {
		progress = 100
	}

	if progress > t.Progress {
		t.Progress = progress
	}
}

// AppendLog appends one step record. Entries are never reordered or removed.
func (t *Task) AppendLog(entry StepLogEntry) {
	t.Logs = append(t.Logs, entry)
}

// LastCompletedStep returns the highest step number with a completed entry,
// or 0 when no step completed.
func (t *Task) LastCompletedStep() int {
	last := 0

	for _, entry := range t.Logs {
		if entry.Status == StepStatusCompleted && entry.Step > last {
			last = entry.Step
		}
	}

	return last
}

// ContextKeys returns the shared context keys in unspecified order.
func (t *Task) ContextKeys() []string {
	keys := make([]string, 0, len(t.SharedContext))
	for key := range t.SharedContext {
		keys = append(keys, key)
	}

	return keys
}
