// Package diagnosis builds read-only projections of task records for
// consumers deciding the next action: retry, resume from a step, or abandon.
package diagnosis

import (
	"fmt"
	"sort"

	"github.com/dukex/sniper/pkg/models"
)

// View summarizes a task record from the perspective of a resume decision.
// SuggestedResumePoint is a hint only; the engine never resumes on its own.
type View struct {
	TaskID               string            `json:"task_id"`
	TaskType             string            `json:"task_type"`
	Status               models.TaskStatus `json:"status"`
	Error                *models.TaskError `json:"error,omitempty"`
	LastCompletedStep    int               `json:"last_completed_step"`
	AvailableContextKeys []string          `json:"available_context_keys"`
	SuggestedResumePoint int               `json:"suggested_resume_point"`
	NextStepHint         string            `json:"next_step_hint"`
}

// Diagnose projects one task record. The projection never mutates the record.
// Step numbers in the view are pipeline positions: a record that was itself
// resumed logs its steps from 1, so its entries are shifted by the position it
// started from before they enter the view.
func Diagnose(task *models.Task) View {
	keys := task.ContextKeys()
	sort.Strings(keys)

	last := resumeBase(task) + task.LastCompletedStep()

	return View{
		TaskID:               task.ID,
		TaskType:             task.TaskType,
		Status:               task.Status,
		Error:                task.Error,
		LastCompletedStep:    last,
		AvailableContextKeys: keys,
		SuggestedResumePoint: last + 1,
		NextStepHint:         hint(task),
	}
}

// resumeBase returns the number of pipeline positions preceding this record's
// own log, nonzero only for records seeded from a prior task.
func resumeBase(task *models.Task) int {
	raw, ok := task.Metadata["resume_from"]
	if !ok {
		return 0
	}

	var from int

	switch v := raw.(type) {
	case int:
		from = v
	case float64: // metadata round-tripped through JSON
		from = int(v)
	}

	if from < 1 {
		return 0
	}

	return from - 1
}

func hint(task *models.Task) string {
	switch task.Status {
	case models.TaskStatusPending:
		return "task is waiting to start"
	case models.TaskStatusRunning:
		return fmt.Sprintf("task is running at %d%%, %d steps recorded", task.Progress, len(task.Logs))
	case models.TaskStatusCompleted:
		return "task finished, result is available"
	case models.TaskStatusFailed:
		if task.Error != nil {
			return fmt.Sprintf("task failed at step %d: %s", task.Error.FailedStep, task.Error.Message)
		}

		return "task failed"
	case models.TaskStatusCancelled:
		return "task was cancelled"
	}

	return "unknown status"
}

// SeedResume constructs a new pending task that continues a prior record from
// resumePoint (1-based pipeline position). The new task inherits the prior
// config and a copy of its shared context, and records its provenance in
// metadata. This is an explicit, caller-initiated operation.
func SeedResume(prior *models.Task, newID string, resumePoint int) *models.Task {
	task := models.NewTask(newID, prior.SourceID, prior.TaskType, prior.Config)

	for key, value := range prior.SharedContext {
		task.SharedContext[key] = value
	}

	task.Metadata["resume_from"] = resumePoint
	task.Metadata["resumed_from_task"] = prior.ID

	return task
}

// SeedRetry constructs a fresh pending task re-running a prior record's
// config from the first step, without inheriting any context.
func SeedRetry(prior *models.Task, newID string) *models.Task {
	task := models.NewTask(newID, prior.SourceID, prior.TaskType, prior.Config)
	task.Metadata["retried_from_task"] = prior.ID

	return task
}
