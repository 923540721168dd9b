package models

import "time"

// TaskSummary is the cheap listing/polling projection of a task. It carries
// presence flags instead of the opaque payloads themselves.
type TaskSummary struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	TaskType    string     `json:"task_type"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	HasResult   bool       `json:"has_result"`
	HasError    bool       `json:"has_error"`
	LogCount    int        `json:"log_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Summarize builds the polling projection for a task.
func (t *Task) Summarize() TaskSummary {
	return TaskSummary{
		ID:          t.ID,
		SourceID:    t.SourceID,
		TaskType:    t.TaskType,
		Status:      t.Status,
		Progress:    t.Progress,
		HasResult:   t.Result != nil,
		HasError:    t.Error != nil,
		LogCount:    len(t.Logs),
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}
