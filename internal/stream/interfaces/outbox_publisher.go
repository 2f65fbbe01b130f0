package interfaces

import (
	"context"

	"cascade/internal/eventing"
)

// OutboxPublisher writes lifecycle events to the outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
	source    string
}

// NewOutboxPublisher constructs an outbox publisher. source tags the
// correlation id of events raised without one.
func NewOutboxPublisher(publisher *eventing.Publisher, source string) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher, source: source}
}

// Publish writes event to the outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	if eventing.CorrelationIDFromContext(ctx) == "" && p.source != "" {
		ctx = eventing.WithCorrelationID(ctx, p.source+":"+eventing.NewEventID())
	}
	return p.publisher.Publish(ctx, event)
}
