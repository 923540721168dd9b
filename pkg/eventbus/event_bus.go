// Package eventbus provides event-driven communication infrastructure for task execution.
package eventbus

import (
	"context"

	"github.com/dukex/sniper/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventHandler func(ctx context.Context, event any) error

// EventBus fans task events out to live subscribers and carries submissions
// to workers. Publishing is best effort: with no subscriber registered the
// event is dropped, the task record remains the durable source of truth.
type EventBus interface {
	// Publish sends one event on a topic without blocking on slow consumers.
	Publish(ctx context.Context, topic string, event Event) error

	// SubscribeTask streams one task's live updates in publish order. The
	// channel closes after a terminal event or when ctx is cancelled; a
	// subscriber that connects late recovers full state from the repository.
	SubscribeTask(ctx context.Context, taskID string) (<-chan Event, error)

	// Handle registers a handler for one event type on topics consumed via
	// Subscribe.
	Handle(eventType events.EventType, handler EventHandler)

	// Subscribe consumes a topic in the background, dispatching decoded
	// events to registered handlers.
	Subscribe(ctx context.Context, topic string) error

	Close() error
	GenerateID() string
}
