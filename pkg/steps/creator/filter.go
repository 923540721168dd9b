package creator

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/steps"
)

const defaultLatencyDays = 7

// FilterRecentStep keeps the notes published inside the configured latency
// window and promotes the per-creator report as the final result.
type FilterRecentStep struct {
	now func() time.Time
}

func NewFilterRecentStep() *FilterRecentStep {
	return &FilterRecentStep{now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *FilterRecentStep) WithClock(now func() time.Time) *FilterRecentStep {
	s.now = now

	return s
}

func (s *FilterRecentStep) Name() string {
	return "filter_recent"
}

func (s *FilterRecentStep) Requires() []string {
	return []string{executor.StepKey(1, "harvest")}
}

func (s *FilterRecentStep) Run(_ context.Context, in protocol.StepInput) (map[string]any, error) {
	prior, ok := in.Context[executor.StepKey(1, "harvest")].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("harvest output has unexpected shape")
	}

	harvests, ok := prior["harvests"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("harvests missing from harvest output")
	}

	latencyDays := steps.IntOr(in.Config["latency"], defaultLatencyDays)
	cutoff := s.now().AddDate(0, 0, -latencyDays)

	results := make(map[string]any, len(harvests))
	totalRecent := 0

	for creatorID, raw := range harvests {
		notes, err := steps.Notes(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid harvest for creator %s: %w", creatorID, err)
		}

		recent := make([]connector.Note, 0)

		for _, note := range notes {
			if !note.PublishedAt.IsZero() && note.PublishedAt.After(cutoff) {
				recent = append(recent, note)
			}
		}

		totalRecent += len(recent)
		results[creatorID] = map[string]any{
			"total_notes":  len(notes),
			"recent_count": len(recent),
			"recent_notes": recent,
		}

		in.Logger.Info("Creator filtered", "creator_id", creatorID, "total", len(notes), "recent", len(recent))
	}

	return map[string]any{
		"final_result": map[string]any{
			"latency_days":       latencyDays,
			"monitored_creators": len(results),
			"recent_notes_count": totalRecent,
			"results":            results,
		},
	}, nil
}
