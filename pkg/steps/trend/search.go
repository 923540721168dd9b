package trend

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/steps"
)

const (
	defaultSearchLimit = 10
	topNotes           = 10
)

// SearchStep runs the expanded keywords against the platform, deduplicates
// hits by URL and keeps the most-liked notes.
type SearchStep struct {
	searcher connector.Searcher
}

func NewSearchStep(searcher connector.Searcher) *SearchStep {
	return &SearchStep{searcher: searcher}
}

func (s *SearchStep) Name() string {
	return "search"
}

func (s *SearchStep) Requires() []string {
	return []string{executor.StepKey(1, "keywords")}
}

func (s *SearchStep) Run(ctx context.Context, in protocol.StepInput) (map[string]any, error) {
	prior, ok := in.Context[executor.StepKey(1, "keywords")].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("keywords output has unexpected shape")
	}

	keywords, err := steps.StringSlice(prior["keywords"])
	if err != nil {
		return nil, fmt.Errorf("invalid keywords in context: %w", err)
	}

	limit := steps.IntOr(in.Config["limit"], defaultSearchLimit)

	hits, err := s.searcher.Search(ctx, keywords, limit*len(keywords))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	notes := dedupeByURL(hits)

	sort.Slice(notes, func(i, j int) bool {
		return notes[i].LikedCount > notes[j].LikedCount
	})

	if len(notes) > topNotes {
		notes = notes[:topNotes]
	}

	in.Logger.Info("Search finished", "keywords", len(keywords), "hits", len(hits), "kept", len(notes))

	return map[string]any{"notes": notes}, nil
}

func dedupeByURL(hits []connector.Note) []connector.Note {
	seen := make(map[string]bool, len(hits))
	notes := make([]connector.Note, 0, len(hits))

	for _, note := range hits {
		if note.URL == "" || seen[note.URL] {
			continue
		}

		seen[note.URL] = true
		notes = append(notes, note)
	}

	return notes
}
