// Package monitor watches a set of URLs for content changes and publishes
// change events on the task event bus. It is a restartable, non-terminating
// producer: cancellation happens through the context, never by abandoning
// an iteration mid-check.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/sniper/pkg/connector"
	"github.com/dukex/sniper/pkg/eventbus"
	"github.com/dukex/sniper/pkg/events"
	"github.com/robfig/cron/v3"
)

const defaultCheckInterval = 60 * time.Second

// Monitor periodically snapshots the watched URLs through the fetcher and
// diffs consecutive snapshots.
type Monitor struct {
	fetcher  connector.Fetcher
	eventBus eventbus.EventBus
	urls     []string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	snapshots map[string]connector.Note
}

func NewMonitor(
	fetcher connector.Fetcher,
	eventBus eventbus.EventBus,
	urls []string,
	interval time.Duration,
	logger *slog.Logger,
) *Monitor {
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	return &Monitor{
		fetcher:   fetcher,
		eventBus:  eventBus,
		urls:      urls,
		interval:  interval,
		logger:    logger.With("module", "monitor"),
		snapshots: make(map[string]connector.Note),
	}
}

// Start schedules periodic checks and blocks until ctx is cancelled. The
// first check runs immediately so subscribers get a baseline without waiting
// a full interval.
func (m *Monitor) Start(ctx context.Context) error {
	if len(m.urls) == 0 {
		return fmt.Errorf("no urls to monitor")
	}

	if err := m.Check(ctx); err != nil {
		m.logger.Warn("Initial check failed", "error", err)
	}

	scheduler := cron.New()

	_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", m.interval), func() {
		if err := m.Check(ctx); err != nil {
			m.logger.Warn("Check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule monitor: %w", err)
	}

	scheduler.Start()
	m.logger.Info("Monitor started", "urls", len(m.urls), "interval", m.interval)

	<-ctx.Done()
	<-scheduler.Stop().Done()

	m.logger.Info("Monitor stopped")

	return nil
}

// Check performs one snapshot-and-diff pass over the watched URLs.
func (m *Monitor) Check(ctx context.Context) error {
	current, err := m.fetcher.FetchDetails(ctx, m.urls)
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, url := range m.urls {
		note, ok := current[url]
		if !ok {
			continue
		}

		previous, seen := m.snapshots[url]
		m.snapshots[url] = note

		if !seen {
			continue
		}

		changes := diff(previous, note)
		if len(changes) == 0 {
			continue
		}

		event := &events.MonitorChange{
			BaseEvent: events.NewBaseEvent(m.eventBus.GenerateID(), events.MonitorChangeEvent, ""),
			URL:       url,
			Changes:   changes,
		}

		if err := m.eventBus.Publish(ctx, events.MonitorTopic, event); err != nil {
			m.logger.Debug("Failed to publish change event", "url", url, "error", err)
		}

		m.logger.Info("Change detected", "url", url, "fields", len(changes))
	}

	return nil
}

func diff(old, current connector.Note) map[string]any {
	changes := make(map[string]any)

	if old.Title != current.Title {
		changes["title"] = map[string]any{"old": old.Title, "new": current.Title}
	}

	if old.Description != current.Description {
		changes["description"] = map[string]any{"old": old.Description, "new": current.Description}
	}

	if old.LikedCount != current.LikedCount {
		changes["liked_count"] = map[string]any{"old": old.LikedCount, "new": current.LikedCount}
	}

	if old.CommentCount != current.CommentCount {
		changes["comment_count"] = map[string]any{"old": old.CommentCount, "new": current.CommentCount}
	}

	return changes
}
