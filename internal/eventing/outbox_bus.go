package eventing

import (
	"context"
	"log"
	"time"

	"cascade/internal/observability/metrics"
)

const slowPublish = 50 * time.Millisecond

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Publisher turns domain events into outbox rows. With a dispatcher attached
// it also runs a delivery pass right after the insert, so in-process
// consumers see the event before Publish returns.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	logger   *log.Logger
}

// NewPublisher constructs a publisher. dispatch may be nil when a background
// loop drains the outbox.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{outbox: outbox, dispatch: dispatch, logger: logger}
}

// Publish stores event in the outbox. Envelope ids and correlation come
// from ctx when set. A failed delivery pass is logged, not returned; the
// row stays pending for the background dispatcher.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	start := time.Now()
	env, err := p.enqueue(ctx, event)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, elapsed)
		return err
	}
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, elapsed)
	if elapsed > slowPublish {
		p.logger.Printf("outbox publish slow: duration_ms=%d event_type=%s stream=%s", elapsed.Milliseconds(), env.EventType, env.StreamID)
	}
	if p.dispatch == nil {
		return nil
	}
	if _, err := p.dispatch.Dispatch(ctx, 0); err != nil {
		p.logger.Printf("outbox dispatch after publish of %s failed: %v", env.EventID, err)
	}
	return nil
}

func (p *Publisher) enqueue(ctx context.Context, event any) (Envelope, error) {
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return Envelope{}, err
	}
	_, err = p.outbox.Insert(ctx, env)
	return env, err
}
