// Package executor drives task pipelines from pending to a terminal state.
package executor

import "errors"

var (
	// ErrTaskFinalized indicates a write was attempted against a task that
	// already reached a terminal state. A stray write from a step whose task
	// was cancelled never re-opens the record.
	ErrTaskFinalized = errors.New("task is finalized")

	// ErrKeyNotFound indicates a shared context key is absent.
	ErrKeyNotFound = errors.New("context key not found")

	// ErrMissingContext indicates a step's declared input key was absent at
	// assembly time. This is a pipeline wiring defect and fails the task.
	ErrMissingContext = errors.New("missing context key")

	// ErrAlreadyTerminal indicates a cancel request against a task that
	// already finished.
	ErrAlreadyTerminal = errors.New("task already in terminal state")
)
