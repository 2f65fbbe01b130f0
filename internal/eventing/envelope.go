package eventing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps event payload with metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	StreamID      string          `json:"stream_id"`
	Actor         string          `json:"actor"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	StreamID      string
	Actor         string
	SchemaVersion int
}

// NewEventID generates a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// BuildEnvelope wraps event for the outbox. Meta wins over the event's own
// StreamID, Actor and OccurredAt fields; the event id doubles as the
// correlation id when none is given.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, ErrNilEvent
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventing: encode %s: %w", EventType(event), err)
	}

	env := Envelope{
		EventID:       firstNonEmpty(meta.EventID, NewEventID()),
		EventType:     EventType(event),
		StreamID:      meta.StreamID,
		Actor:         meta.Actor,
		OccurredAt:    meta.OccurredAt,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}
	env.CorrelationID = firstNonEmpty(meta.CorrelationID, env.EventID)
	fillFromEvent(&env, event)
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if env.SchemaVersion == 0 {
		env.SchemaVersion = 1
	}
	return env, nil
}

// fillFromEvent copies StreamID, Actor and OccurredAt from a struct event
// into env where env has no value yet. String-kinded named types count.
func fillFromEvent(env *Envelope, event any) {
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return
	}
	if env.StreamID == "" {
		env.StreamID = stringField(value, "StreamID")
	}
	if env.Actor == "" {
		env.Actor = stringField(value, "Actor")
	}
	if env.OccurredAt.IsZero() {
		if field := value.FieldByName("OccurredAt"); field.IsValid() && field.CanInterface() {
			if at, ok := field.Interface().(time.Time); ok {
				env.OccurredAt = at
			}
		}
	}
}

func stringField(value reflect.Value, name string) string {
	field := value.FieldByName(name)
	if field.IsValid() && field.Kind() == reflect.String {
		return field.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
