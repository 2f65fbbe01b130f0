package eventing

import (
	"context"
	"log"
	"sync"
	"time"

	"cascade/internal/observability/metrics"
)

const defaultDispatchLimit = 50

// EventBus is the minimal publish interface.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Requested int
	Claimed   int
	Sent      int
	Failed    int
	DLQ       int
}

// Dispatcher moves outbox records onto the in-process bus. At most one pass
// runs per process; a pass requested while another is running returns
// without work and the records go out on the next tick. Passes from other
// processes are absorbed by the consumers' processed store.
type Dispatcher struct {
	mu       sync.Mutex
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
}

// NewDispatcher constructs a dispatcher. dlq may be nil.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore) *Dispatcher {
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq}
}

// Dispatch delivers up to limit pending records. Undecodable records and
// records whose handlers fail are marked failed and copied to the DLQ.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	if limit <= 0 {
		limit = defaultDispatchLimit
	}
	result := DispatchResult{Requested: limit}
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return result, nil
	}

	if !d.mu.TryLock() {
		return result, nil
	}
	defer d.mu.Unlock()

	start := time.Now()
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, err
	}
	result.Claimed = len(records)

	var storeErr error
	keep := func(err error) {
		if err != nil && storeErr == nil {
			storeErr = err
		}
	}
	for _, record := range records {
		cause := d.deliver(ctx, record.Envelope)
		if cause == nil {
			if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
				keep(err)
				result.Failed++
				continue
			}
			result.Sent++
			continue
		}
		result.Failed++
		keep(d.outbox.MarkFailed(ctx, record.ID))
		if d.dlq != nil && d.dlq.RecordFailure(ctx, record.Envelope, cause) == nil {
			result.DLQ++
		}
	}

	outcome := metrics.ResultSuccess
	if storeErr != nil || result.Failed > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(outcome, time.Since(start), result.Sent, result.Failed, result.DLQ)
	return result, storeErr
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) error {
	payload, err := d.registry.DecodePayload(env)
	if err != nil {
		return err
	}
	return d.bus.Publish(WithEnvelope(ctx, env), payload)
}

// Run drains the outbox every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, logger *log.Logger) {
	if d == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := d.Dispatch(ctx, 0)
			if logger == nil {
				continue
			}
			if err != nil {
				logger.Printf("outbox dispatch error: %v", err)
			} else if res.Failed > 0 {
				logger.Printf("outbox dispatch: sent=%d failed=%d dlq=%d", res.Sent, res.Failed, res.DLQ)
			}
		}
	}
}
