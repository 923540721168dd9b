// Package testutil provides builders for pipelines and step units in tests.
package testutil

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/dukex/sniper/pkg/protocol"
)

// StaticStep is a deterministic step unit returning a fixed output.
type StaticStep struct {
	StepName     string
	RequiredKeys []string
	Output       map[string]any
	OnRun        func(in protocol.StepInput) // optional spy hook
}

func (s *StaticStep) Name() string {
	return s.StepName
}

func (s *StaticStep) Requires() []string {
	return s.RequiredKeys
}

func (s *StaticStep) Run(_ context.Context, in protocol.StepInput) (map[string]any, error) {
	if s.OnRun != nil {
		s.OnRun(in)
	}

	return s.Output, nil
}

// FailingStep always fails with the given message.
type FailingStep struct {
	StepName     string
	RequiredKeys []string
	Message      string
}

func (s *FailingStep) Name() string {
	return s.StepName
}

func (s *FailingStep) Requires() []string {
	return s.RequiredKeys
}

func (s *FailingStep) Run(context.Context, protocol.StepInput) (map[string]any, error) {
	return nil, errors.New(s.Message)
}

// PanickingStep exercises the executor's panic recovery.
type PanickingStep struct {
	StepName string
}

func (s *PanickingStep) Name() string {
	return s.StepName
}

func (s *PanickingStep) Requires() []string {
	return nil
}

func (s *PanickingStep) Run(context.Context, protocol.StepInput) (map[string]any, error) {
	panic("boom")
}

// BlockingStep signals when it starts and waits for release, letting tests
// control when a step is in flight.
type BlockingStep struct {
	StepName string
	Started  chan struct{}
	Release  chan struct{}
	Output   map[string]any
}

func (s *BlockingStep) Name() string {
	return s.StepName
}

func (s *BlockingStep) Requires() []string {
	return nil
}

func (s *BlockingStep) Run(ctx context.Context, _ protocol.StepInput) (map[string]any, error) {
	if s.Started != nil {
		close(s.Started)
	}

	select {
	case <-s.Release:
		return s.Output, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewTestLogger returns a quiet slog logger for tests.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
