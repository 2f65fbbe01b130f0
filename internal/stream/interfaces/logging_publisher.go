package interfaces

import (
	"context"
	"errors"
	"log"

	"cascade/internal/eventing"
	"cascade/internal/stream/application"
)

// LoggingPublisher logs lifecycle events.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event.
func (p *LoggingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	if p == nil {
		return errors.New("stream publisher: nil publisher")
	}
	entry, ok := application.ActivityFromEvent(event)
	if !ok {
		p.logger.Printf("stream event: type=%s", eventing.EventType(event))
		return nil
	}
	p.logger.Printf("stream event: type=%s stream=%s actor=%s amount=%d ledger_time=%d",
		entry.Kind, entry.StreamID, entry.Actor, entry.Amount, entry.LedgerTime)
	return nil
}
