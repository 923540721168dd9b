package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/registry"
	"github.com/dukex/sniper/pkg/steps/creator"
	"github.com/dukex/sniper/pkg/steps/trend"
)

const trendConfigSchema = `{
	"type": "object",
	"required": ["keywords"],
	"properties": {
		"keywords": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		},
		"limit": {"type": "integer", "minimum": 1, "maximum": 50}
	}
}`

const creatorConfigSchema = `{
	"type": "object",
	"required": ["creator_ids"],
	"properties": {
		"creator_ids": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		},
		"latency": {"type": "integer", "minimum": 1, "maximum": 30}
	}
}`

// NewRegistry builds the pipeline registry with the built-in task types, all
// backed by the given platform connector.
func NewRegistry(logger *slog.Logger, conn connector.Connector) *registry.Registry {
	reg := registry.NewRegistry(logger)

	pipelines := []registry.Pipeline{
		{
			TaskType:     "trend_analysis",
			DisplayName:  "Trend Analysis",
			Description:  "Keyword fission, platform search and deep analysis of trending content",
			Platform:     "xiaohongshu",
			Tags:         []string{"Trend", "Analysis"},
			TimeSavings:  85,
			ConfigSchema: trendConfigSchema,
			Steps: []protocol.StepUnit{
				trend.NewKeywordsStep(conn),
				trend.NewSearchStep(conn),
				trend.NewDetailsStep(conn),
				trend.NewAnalyzeStep(conn),
			},
		},
		{
			TaskType:     "creator_sniper",
			DisplayName:  "Creator Monitor",
			Description:  "Monitor a creator list for freshly published content",
			Platform:     "xiaohongshu",
			Tags:         []string{"Monitor", "Creator"},
			TimeSavings:  25,
			ConfigSchema: creatorConfigSchema,
			Steps: []protocol.StepUnit{
				creator.NewHarvestStep(conn),
				creator.NewFilterRecentStep(),
			},
		},
	}

	for _, pipeline := range pipelines {
		if err := reg.Register(pipeline); err != nil {
			panic(fmt.Errorf("failed to register pipeline %s: %w", pipeline.TaskType, err))
		}
	}

	return reg
}
