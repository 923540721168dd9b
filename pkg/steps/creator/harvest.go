// Package creator implements the step units of the creator monitoring
// pipeline: harvest a creator list, then filter for recent publications.
package creator

import (
	"context"
	"fmt"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/steps"
)

// HarvestStep collects the content lists of every configured creator. A
// single unreachable creator does not fail the task; the failure is recorded
// in the step output instead.
type HarvestStep struct {
	harvester connector.Harvester
}

func NewHarvestStep(harvester connector.Harvester) *HarvestStep {
	return &HarvestStep{harvester: harvester}
}

func (s *HarvestStep) Name() string {
	return "harvest"
}

func (s *HarvestStep) Requires() []string {
	return nil
}

func (s *HarvestStep) Run(ctx context.Context, in protocol.StepInput) (map[string]any, error) {
	configured, ok := in.Config["creator_ids"]
	if !ok {
		return nil, fmt.Errorf("config has no creator_ids")
	}

	creatorIDs, err := steps.StringSlice(configured)
	if err != nil {
		return nil, fmt.Errorf("invalid creator_ids config: %w", err)
	}

	if len(creatorIDs) == 0 {
		return nil, fmt.Errorf("creator_ids config is empty")
	}

	harvests := make(map[string]any, len(creatorIDs))
	failures := make(map[string]string)

	for _, creatorID := range creatorIDs {
		notes, err := s.harvester.HarvestCreator(ctx, creatorID)
		if err != nil {
			failures[creatorID] = err.Error()
			in.Logger.Warn("Creator harvest failed", "creator_id", creatorID, "error", err)

			continue
		}

		harvests[creatorID] = notes
		in.Logger.Info("Creator harvested", "creator_id", creatorID, "notes", len(notes))
	}

	if len(harvests) == 0 {
		return nil, fmt.Errorf("all %d creators failed to harvest", len(creatorIDs))
	}

	output := map[string]any{
		"harvests":       harvests,
		"total_creators": len(creatorIDs),
	}

	if len(failures) > 0 {
		output["failures"] = failures
	}

	return output, nil
}
