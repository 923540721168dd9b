// Package events defines event types and structures for task lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/sniper/pkg/models"
)

type EventType string

// SubmissionTopic carries newly submitted task ids to executing workers.
const SubmissionTopic = "sniper.submissions"

// MonitorTopic carries URL change events from monitor producers.
const MonitorTopic = "sniper.monitor"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Task lifecycle events.
	TaskSubmittedEvent EventType = "task.submitted"
	TaskStartedEvent   EventType = "task.started"
	TaskProgressEvent  EventType = "task.progress"
	TaskStepEvent      EventType = "task.step"
	TaskCompletedEvent EventType = "task.completed"
	TaskFailedEvent    EventType = "task.failed"
	TaskCancelledEvent EventType = "task.cancelled"

	// Monitor events.
	MonitorChangeEvent EventType = "monitor.change"
)

// TaskTopic returns the per-task live-update topic. Publishing is best
// effort: the task record, not the topic, is the source of truth.
func TaskTopic(taskID string) string {
	return "sniper.tasks." + taskID
}

// IsTerminal reports whether an event type closes a task's live stream.
func (t EventType) IsTerminal() bool {
	return t == TaskCompletedEvent || t == TaskFailedEvent || t == TaskCancelledEvent
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id"`
	WorkerID  string    `json:"worker_id,omitempty"`
}

type TaskSubmitted struct {
	BaseEvent

	TaskType string         `json:"task_type"`
	SourceID string         `json:"source_id"`
	Config   map[string]any `json:"config,omitempty"`
}

func (e TaskSubmitted) GetType() EventType {
	return TaskSubmittedEvent
}

type TaskStarted struct {
	BaseEvent

	TaskType   string `json:"task_type"`
	TotalSteps int    `json:"total_steps"`
}

func (e TaskStarted) GetType() EventType {
	return TaskStartedEvent
}

type TaskProgress struct {
	BaseEvent

	Progress  int    `json:"progress"`
	Completed int    `json:"completed_steps"`
	Total     int    `json:"total_steps"`
	StepName  string `json:"step_name,omitempty"`
}

func (e TaskProgress) GetType() EventType {
	return TaskProgressEvent
}

type TaskStep struct {
	BaseEvent

	Entry models.StepLogEntry `json:"entry"`
}

func (e TaskStep) GetType() EventType {
	return TaskStepEvent
}

type TaskCompleted struct {
	BaseEvent

	Result   map[string]any `json:"result,omitempty"`
	Duration time.Duration  `json:"duration"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskFailed struct {
	BaseEvent

	FailedStep int    `json:"failed_step"`
	Error      string `json:"error"`
}

func (e TaskFailed) GetType() EventType {
	return TaskFailedEvent
}

type TaskCancelled struct {
	BaseEvent
}

func (e TaskCancelled) GetType() EventType {
	return TaskCancelledEvent
}

// MonitorChange reports a detected change on a watched URL.
type MonitorChange struct {
	BaseEvent

	URL     string         `json:"url"`
	Changes map[string]any `json:"changes,omitempty"`
}

func (e MonitorChange) GetType() EventType {
	return MonitorChangeEvent
}

// NewBaseEvent stamps the shared envelope fields for a task event.
func NewBaseEvent(id string, eventType EventType, taskID string) BaseEvent {
	return BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
	}
}
