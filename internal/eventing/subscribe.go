package eventing

import (
	"context"
	"errors"
	"time"

	"cascade/internal/observability/metrics"
)

// ProcessedStore records which consumer has taken which event. Claim reports
// false when the pair is already taken; Release gives a claim back after the
// handler failed so a redelivery can run it again.
type ProcessedStore interface {
	Claim(ctx context.Context, eventID, consumerName string) (bool, error)
	Release(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers handler under consumerName, deduplicated through store
// when one is given.
func Subscribe(bus Bus, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store != nil {
		handler = WrapHandler(consumerName, handler, store)
	}
	bus.Subscribe(eventType, handler)
}

// WrapHandler runs handler at most once per event id for consumerName. The
// periodic dispatcher and the publish-time dispatch may hand the same outbox
// record to the bus concurrently; the claim decides which one runs.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		claimed, err := store.Claim(ctx, env.EventID, consumerName)
		if err != nil || !claimed {
			return err
		}
		if err := handler(ctx, event); err != nil {
			if releaseErr := store.Release(ctx, env.EventID, consumerName); releaseErr != nil {
				return errors.Join(err, releaseErr)
			}
			return err
		}
		if !env.OccurredAt.IsZero() {
			metrics.ObserveConsumerLag(consumerName, time.Since(env.OccurredAt))
		}
		return nil
	}
}
