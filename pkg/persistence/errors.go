// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskAlreadyExists indicates a task with the same identifier already exists.
	ErrTaskAlreadyExists = errors.New("task already exists")

	// ErrSaveFailed indicates the durability checkpoint could not be written.
	// The in-memory record must not be considered advanced past its last
	// successful save.
	ErrSaveFailed = errors.New("task save failed")
)

// TaskError wraps task persistence errors with operation context.
type TaskError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task persistence error with context.
func NewTaskError(op, taskID string, err error) *TaskError {
	return &TaskError{Op: op, TaskID: taskID, Err: err}
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsSaveFailed checks if an error came from a failed durability checkpoint.
func IsSaveFailed(err error) bool {
	return errors.Is(err, ErrSaveFailed)
}
