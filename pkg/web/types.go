// Package web provides HTTP request and response types for the task API.
package web

import (
	"time"

	"github.com/dukex/sniper/pkg/models"
)

// SubmitTaskRequest represents the request body for submitting a new task.
type SubmitTaskRequest struct {
	SourceID string         `json:"source_id" validate:"required,min=1"`
	TaskType string         `json:"task_type" validate:"required,min=1"`
	Config   map[string]any `json:"config"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SubmitTaskResponse is returned after a task has been accepted for execution.
type SubmitTaskResponse struct {
	TaskID string            `json:"task_id"`
	Status models.TaskStatus `json:"status"`
}

// StatusResponse is the lightweight polling view of a task: presence flags
// and counters only, never the payloads themselves.
type StatusResponse struct {
	TaskID      string            `json:"task_id"`
	Status      models.TaskStatus `json:"status"`
	Progress    int               `json:"progress"`
	HasResult   bool              `json:"has_result"`
	HasError    bool              `json:"has_error"`
	LogCount    int               `json:"log_count"`
	CurrentStep string            `json:"current_step,omitempty"`
}

// LogsResponse returns log entries starting at a client-supplied offset so
// callers can tail a running task without re-reading earlier entries.
type LogsResponse struct {
	TaskID     string                `json:"task_id"`
	Offset     int                   `json:"offset"`
	NextOffset int                   `json:"next_offset"`
	Logs       []models.StepLogEntry `json:"logs"`
	Status     models.TaskStatus     `json:"status"`
}

// TimeSavingsResponse aggregates the estimated minutes saved by completed tasks.
type TimeSavingsResponse struct {
	TotalMinutes   int            `json:"total_minutes"`
	CompletedTasks int            `json:"completed_tasks"`
	ByTaskType     map[string]int `json:"by_task_type"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// TaskActionResponse is returned by retry and resume, pointing at the new record.
type TaskActionResponse struct {
	TaskID     string            `json:"task_id"`
	SourceTask string            `json:"source_task"`
	Status     models.TaskStatus `json:"status"`
}

func statusOf(task *models.Task) StatusResponse {
	resp := StatusResponse{
		TaskID:    task.ID,
		Status:    task.Status,
		Progress:  task.Progress,
		HasResult: task.Result != nil,
		HasError:  task.Error != nil,
		LogCount:  len(task.Logs),
	}

	if n := len(task.Logs); n > 0 {
		resp.CurrentStep = task.Logs[n-1].Name
	}

	return resp
}
