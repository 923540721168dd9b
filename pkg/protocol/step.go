// Package protocol defines the interfaces between the execution engine and
// pluggable step units.
package protocol

import (
	"context"
	"log/slog"
)

// StepInput is everything a step unit may consume: the task's immutable
// request payload and the subset of shared context the step declared via
// Requires.
type StepInput struct {
	TaskID  string
	Config  map[string]any
	Context map[string]any
	Logger  *slog.Logger
}

// StepUnit implements one pipeline stage. Units run strictly sequentially
// within a task; the engine merges the returned output into the shared
// context under the step's key before the next unit starts. A unit that
// performs its own IO should honour ctx cancellation, but the engine never
// interrupts a unit that is already in flight.
type StepUnit interface {
	// Name labels the step in logs and context keys.
	Name() string

	// Requires lists the shared context keys this step reads. A missing key
	// fails the task: it signals a pipeline wiring defect, not a transient
	// condition.
	Requires() []string

	// Run consumes the input and produces the output to merge into shared
	// context. A returned error fails the task at this step.
	Run(ctx context.Context, in StepInput) (map[string]any, error)
}
