package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Static is a deterministic in-memory connector for development and tests.
// It derives keywords by suffixing the core term, serves notes from a fixed
// corpus, and summarizes instead of calling a language model.
type Static struct {
	Notes []Note
}

// NewStatic builds a static connector over a fixed corpus.
func NewStatic(notes []Note) *Static {
	return &Static{Notes: notes}
}

func (s *Static) GenerateKeywords(_ context.Context, core string) ([]string, error) {
	if strings.TrimSpace(core) == "" {
		return nil, fmt.Errorf("core keyword is empty")
	}

	return []string{core, core + " tips", core + " guide"}, nil
}

func (s *Static) Search(_ context.Context, keywords []string, limit int) ([]Note, error) {
	matched := make([]Note, 0)

	for _, note := range s.Notes {
		for _, keyword := range keywords {
			if strings.Contains(strings.ToLower(note.Title), strings.ToLower(firstWord(keyword))) {
				matched = append(matched, note)

				break
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LikedCount > matched[j].LikedCount
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

func (s *Static) FetchDetails(_ context.Context, urls []string) (map[string]Note, error) {
	byURL := make(map[string]Note, len(s.Notes))
	for _, note := range s.Notes {
		byURL[note.URL] = note
	}

	details := make(map[string]Note, len(urls))

	for _, url := range urls {
		if note, ok := byURL[url]; ok {
			details[url] = note
		}
	}

	return details, nil
}

func (s *Static) HarvestCreator(_ context.Context, creatorID string) ([]Note, error) {
	harvest := make([]Note, 0)

	for _, note := range s.Notes {
		if note.CreatorID == creatorID {
			harvest = append(harvest, note)
		}
	}

	return harvest, nil
}

func (s *Static) Analyze(_ context.Context, keyword, digest string) (map[string]any, error) {
	return map[string]any{
		"keyword":       keyword,
		"digest_length": len(digest),
		"summary":       fmt.Sprintf("analysis of %q over %d characters of source material", keyword, len(digest)),
	}, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}

	return fields[0]
}
