package trend

import (
	"context"
	"fmt"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/steps"
)

// AnalyzeStep hands the prepared digest to the analyst collaborator and
// promotes its output as the task's final result.
type AnalyzeStep struct {
	analyst connector.Analyst
}

func NewAnalyzeStep(analyst connector.Analyst) *AnalyzeStep {
	return &AnalyzeStep{analyst: analyst}
}

func (s *AnalyzeStep) Name() string {
	return "analyze"
}

func (s *AnalyzeStep) Requires() []string {
	return []string{executor.StepKey(3, "details")}
}

func (s *AnalyzeStep) Run(ctx context.Context, in protocol.StepInput) (map[string]any, error) {
	prior, ok := in.Context[executor.StepKey(3, "details")].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("details output has unexpected shape")
	}

	digest, ok := prior["digest"].(string)
	if !ok || digest == "" {
		return nil, fmt.Errorf("digest missing from details output")
	}

	keyword := ""
	if cores, err := steps.StringSlice(in.Config["keywords"]); err == nil && len(cores) > 0 {
		keyword = cores[0]
	}

	analysis, err := s.analyst.Analyze(ctx, keyword, digest)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	in.Logger.Info("Analysis finished", "keyword", keyword)

	return map[string]any{"final_result": analysis}, nil
}
