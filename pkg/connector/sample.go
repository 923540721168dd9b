package connector

import "time"

// SampleNotes returns the built-in corpus the static connector serves when no
// live platform client is configured. Timestamps are relative to now so the
// recency filters in the creator pipeline stay meaningful.
func SampleNotes() []Note {
	now := time.Now().UTC()

	return []Note{
		{
			URL:            "https://platform.example/notes/n-1001",
			Title:          "Coffee brewing mistakes everyone makes",
			Description:    "Five common pour-over mistakes and how to fix them.",
			CreatorID:      "creator-alba",
			LikedCount:     4821,
			CollectedCount: 1203,
			CommentCount:   318,
			Comments:       []string{"saved my mornings", "the grind size tip is gold"},
			PublishedAt:    now.AddDate(0, 0, -2),
		},
		{
			URL:            "https://platform.example/notes/n-1002",
			Title:          "Coffee shop tour: hidden gems downtown",
			Description:    "Three independent roasters worth the detour.",
			CreatorID:      "creator-alba",
			LikedCount:     2904,
			CollectedCount: 655,
			CommentCount:   142,
			Comments:       []string{"going this weekend"},
			PublishedAt:    now.AddDate(0, 0, -9),
		},
		{
			URL:            "https://platform.example/notes/n-1003",
			Title:          "Minimalist desk setup under 200",
			Description:    "Budget desk makeover with links for every item.",
			CreatorID:      "creator-finch",
			LikedCount:     7310,
			CollectedCount: 2988,
			CommentCount:   540,
			Comments:       []string{"the monitor arm is a steal", "needed this", "cable tray link?"},
			PublishedAt:    now.AddDate(0, 0, -1),
		},
		{
			URL:            "https://platform.example/notes/n-1004",
			Title:          "Desk stretches for long work days",
			Description:    "Two-minute routines between meetings.",
			CreatorID:      "creator-finch",
			LikedCount:     1520,
			CollectedCount: 402,
			CommentCount:   77,
			Comments:       []string{"doing these now"},
			PublishedAt:    now.AddDate(0, 0, -20),
		},
		{
			URL:            "https://platform.example/notes/n-1005",
			Title:          "Skincare routine order explained",
			Description:    "What goes first and why it matters.",
			CreatorID:      "creator-mori",
			LikedCount:     9924,
			CollectedCount: 4100,
			CommentCount:   861,
			Comments:       []string{"finally a clear answer", "bookmarking"},
			PublishedAt:    now.AddDate(0, 0, -4),
		},
	}
}
