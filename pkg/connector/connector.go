// Package connector defines the external collaborator interfaces step units
// depend on: platform search, detail fetching, creator harvesting and
// language-model analysis. Real platform connectors live outside the engine;
// the engine only needs these contracts.
package connector

import (
	"context"
	"time"
)

// Note is the platform-agnostic shape of one piece of content.
type Note struct {
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	CreatorID      string    `json:"creator_id,omitempty"`
	LikedCount     int       `json:"liked_count"`
	CollectedCount int       `json:"collected_count,omitempty"`
	CommentCount   int       `json:"comment_count,omitempty"`
	Comments       []string  `json:"comments,omitempty"`
	PublishedAt    time.Time `json:"published_at,omitempty"`
}

// Planner expands a core keyword into search keywords (the original uses a
// lightweight language model for this).
type Planner interface {
	GenerateKeywords(ctx context.Context, core string) ([]string, error)
}

// Searcher runs a platform search for each keyword.
type Searcher interface {
	Search(ctx context.Context, keywords []string, limit int) ([]Note, error)
}

// Fetcher loads full details for note URLs.
type Fetcher interface {
	FetchDetails(ctx context.Context, urls []string) (map[string]Note, error)
}

// Harvester lists a creator's published content.
type Harvester interface {
	HarvestCreator(ctx context.Context, creatorID string) ([]Note, error)
}

// Analyst produces the final analysis from a prepared digest.
type Analyst interface {
	Analyze(ctx context.Context, keyword, digest string) (map[string]any, error)
}

// Connector aggregates all collaborator capabilities one platform provides.
type Connector interface {
	Planner
	Searcher
	Fetcher
	Harvester
	Analyst
}
