package trend

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/steps"
)

const commentsPerNote = 3

// DetailsStep fetches full content for the selected notes and renders the
// digest the analysis step consumes.
type DetailsStep struct {
	fetcher connector.Fetcher
}

func NewDetailsStep(fetcher connector.Fetcher) *DetailsStep {
	return &DetailsStep{fetcher: fetcher}
}

func (s *DetailsStep) Name() string {
	return "details"
}

func (s *DetailsStep) Requires() []string {
	return []string{executor.StepKey(2, "search")}
}

func (s *DetailsStep) Run(ctx context.Context, in protocol.StepInput) (map[string]any, error) {
	prior, ok := in.Context[executor.StepKey(2, "search")].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("search output has unexpected shape")
	}

	notes, err := steps.Notes(prior["notes"])
	if err != nil {
		return nil, fmt.Errorf("invalid notes in context: %w", err)
	}

	if len(notes) == 0 {
		return nil, fmt.Errorf("no notes to fetch, search produced nothing")
	}

	urls := make([]string, 0, len(notes))
	for _, note := range notes {
		urls = append(urls, note.URL)
	}

	details, err := s.fetcher.FetchDetails(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("detail fetch failed: %w", err)
	}

	in.Logger.Info("Details fetched", "requested", len(urls), "resolved", len(details))

	return map[string]any{
		"digest":  renderDigest(notes, details),
		"fetched": len(details),
	}, nil
}

// renderDigest flattens notes and their details into the text block handed
// to the analyst.
func renderDigest(notes []connector.Note, details map[string]connector.Note) string {
	var b strings.Builder

	for i, note := range notes {
		detail, ok := details[note.URL]
		if !ok {
			detail = note
		}

		fmt.Fprintf(&b, "[note %d]\n", i+1)
		fmt.Fprintf(&b, "title: %s\n", detail.Title)
		fmt.Fprintf(&b, "url: %s\n", note.URL)
		fmt.Fprintf(&b, "engagement: likes %d | collects %d | comments %d\n",
			detail.LikedCount, detail.CollectedCount, detail.CommentCount)

		if detail.Description != "" {
			fmt.Fprintf(&b, "body:\n%s\n", detail.Description)
		}

		comments := detail.Comments
		if len(comments) > commentsPerNote {
			comments = comments[:commentsPerNote]
		}

		for _, comment := range comments {
			fmt.Fprintf(&b, "- %s\n", comment)
		}

		b.WriteString(strings.Repeat("=", 60) + "\n")
	}

	return b.String()
}
