package interfaces

import (
	"context"
	"errors"

	"cascade/internal/eventing"
	"cascade/internal/stream/application"
)

// ActivityConsumerName identifies the activity consumer in the processed-events store.
const ActivityConsumerName = "stream.activity"

// ActivityConsumer feeds dispatched lifecycle events into the activity history.
type ActivityConsumer struct {
	recorder *application.ActivityRecorder
}

// NewActivityConsumer constructs a consumer adapter.
func NewActivityConsumer(recorder *application.ActivityRecorder) (*ActivityConsumer, error) {
	if recorder == nil {
		return nil, errors.New("activity consumer: nil recorder")
	}
	return &ActivityConsumer{recorder: recorder}, nil
}

// Register subscribes the consumer to every lifecycle event type.
func (c *ActivityConsumer) Register(bus eventing.Bus, store eventing.ProcessedStore) {
	for _, sample := range application.EventSamples() {
		eventing.Subscribe(bus, eventing.EventType(sample), ActivityConsumerName, c.Consume, store)
	}
}

// Consume records one event. The envelope id keys the entry.
func (c *ActivityConsumer) Consume(ctx context.Context, event any) error {
	eventID := ""
	if env, ok := eventing.EnvelopeFromContext(ctx); ok {
		eventID = env.EventID
	}
	if eventID == "" {
		eventID = eventing.NewEventID()
	}
	return c.recorder.Record(ctx, eventID, event)
}
