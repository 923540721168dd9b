// Package trend implements the step units of the trend analysis pipeline:
// keyword fission, platform search, detail fetching and analysis.
package trend

import (
	"context"
	"fmt"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/steps"
)

const maxKeywords = 3

// KeywordsStep expands the configured core keyword into search keywords
// through the planner collaborator.
type KeywordsStep struct {
	planner connector.Planner
}

func NewKeywordsStep(planner connector.Planner) *KeywordsStep {
	return &KeywordsStep{planner: planner}
}

func (s *KeywordsStep) Name() string {
	return "keywords"
}

func (s *KeywordsStep) Requires() []string {
	return nil
}

func (s *KeywordsStep) Run(ctx context.Context, in protocol.StepInput) (map[string]any, error) {
	configured, ok := in.Config["keywords"]
	if !ok {
		return nil, fmt.Errorf("config has no keywords")
	}

	cores, err := steps.StringSlice(configured)
	if err != nil {
		return nil, fmt.Errorf("invalid keywords config: %w", err)
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("keywords config is empty")
	}

	expanded, err := s.planner.GenerateKeywords(ctx, cores[0])
	if err != nil {
		return nil, fmt.Errorf("keyword fission failed: %w", err)
	}

	if len(expanded) > maxKeywords {
		expanded = expanded[:maxKeywords]
	}

	in.Logger.Info("Keyword fission finished", "core", cores[0], "keywords", expanded)

	return map[string]any{"keywords": expanded}, nil
}
