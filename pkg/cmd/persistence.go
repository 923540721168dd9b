// Package cmd provides shared wiring helpers for the sniper binaries.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/sniper/pkg/persistence"
	"github.com/dukex/sniper/pkg/persistence/file"
	redispersistence "github.com/dukex/sniper/pkg/persistence/redis"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: redis:// for redis, anything else is treated as a file root.
func NewPersistence(logger *slog.Logger, databaseURL string) persistence.Persistence {
	if strings.HasPrefix(databaseURL, "redis://") || strings.HasPrefix(databaseURL, "rediss://") {
		p, err := redispersistence.NewPersistence(databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create redis persistence: %w", err))
		}

		logger.Info("Using redis persistence")

		return p
	}

	logger.Info("Using file persistence", "root", databaseURL)

	return file.NewPersistence(databaseURL)
}
