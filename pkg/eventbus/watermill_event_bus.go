package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/sniper/pkg/events"
)

// taskStreamBuffer bounds the per-subscriber channel so a stalled consumer
// never blocks the publishing worker.
const taskStreamBuffer = 64

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, topic)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topic, msg)
}

func (eb *WatermillEventBus) SubscribeTask(ctx context.Context, taskID string) (<-chan Event, error) {
	messages, err := eb.subscriber.Subscribe(ctx, events.TaskTopic(taskID))
	if err != nil {
		return nil, err
	}

	out := make(chan Event, taskStreamBuffer)

	go func() {
		defer close(out)

		for msg := range messages {
			event, err := decodeEvent(msg)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}

			if event.GetType().IsTerminal() {
				return
			}
		}
	}()

	return out, nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, topic string) error {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			event, err := decodeEvent(msg)
			if err != nil {
				msg.Nack()

				continue
			}

			eb.mu.RLock()
			handler, exists := eb.subscriptions[event.GetType()]
			eb.mu.RUnlock()

			if !exists {
				msg.Ack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func decodeEvent(msg *message.Message) (Event, error) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	var event Event

	switch eventType {
	case events.TaskSubmittedEvent:
		event = &events.TaskSubmitted{}
	case events.TaskStartedEvent:
		event = &events.TaskStarted{}
	case events.TaskProgressEvent:
		event = &events.TaskProgress{}
	case events.TaskStepEvent:
		event = &events.TaskStep{}
	case events.TaskCompletedEvent:
		event = &events.TaskCompleted{}
	case events.TaskFailedEvent:
		event = &events.TaskFailed{}
	case events.TaskCancelledEvent:
		event = &events.TaskCancelled{}
	case events.MonitorChangeEvent:
		event = &events.MonitorChange{}
	default:
		return nil, fmt.Errorf("unknown event type: %q", eventType)
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return nil, err
	}

	return event, nil
}
