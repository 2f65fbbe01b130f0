package eventing

import "context"

type (
	envelopeKey struct{}
	metaKey     struct{}
)

// WithEnvelope attaches the envelope being delivered; consumers read it back
// for the event id and occurrence time.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the envelope under delivery, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

// WithCorrelationID sets the correlation id applied to envelopes built from ctx.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	meta := MetaFromContext(ctx)
	meta.CorrelationID = correlationID
	return context.WithValue(ctx, metaKey{}, meta)
}

// WithEventID pins the event id of the next envelope built from ctx.
func WithEventID(ctx context.Context, eventID string) context.Context {
	meta := MetaFromContext(ctx)
	meta.EventID = eventID
	return context.WithValue(ctx, metaKey{}, meta)
}

// CorrelationIDFromContext returns the correlation id if set.
func CorrelationIDFromContext(ctx context.Context) string {
	return MetaFromContext(ctx).CorrelationID
}

// MetaFromContext returns the envelope overrides carried by ctx.
func MetaFromContext(ctx context.Context) Meta {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}
