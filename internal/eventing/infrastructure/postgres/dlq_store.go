package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cascade/internal/eventing"
)

// maxDLQErrorLen caps the stored failure text; handler errors can wrap whole
// webhook bodies.
const maxDLQErrorLen = 2000

// DLQStore parks envelopes the dispatcher could not deliver. One row per event
// id; repeated failures bump attempts and keep the latest error.
type DLQStore struct {
	db        *sql.DB
	upsertSQL string
}

// DLQOption configures the DLQ store.
type DLQOption func(*dlqConfig)

type dlqConfig struct {
	table string
}

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(cfg *dlqConfig) {
		if table != "" {
			cfg.table = table
		}
	}
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db *sql.DB, opts ...DLQOption) *DLQStore {
	cfg := dlqConfig{table: "dead_letter_events"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DLQStore{
		db: db,
		upsertSQL: fmt.Sprintf(`
INSERT INTO %[1]s AS d (event_id, event_type, stream_id, actor, payload, error, first_seen_at, last_seen_at, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7, 1)
ON CONFLICT (event_id) DO UPDATE SET
	payload = EXCLUDED.payload,
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = d.attempts + 1`, cfg.table),
	}
}

// RecordFailure stores env with the delivery error.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dlq store: encode envelope %s: %w", env.EventID, err)
	}
	_, err = s.db.ExecContext(ctx, s.upsertSQL,
		env.EventID, env.EventType, env.StreamID, env.Actor, payload, failureText(cause), time.Now().UTC())
	return err
}

func failureText(cause error) string {
	if cause == nil {
		return "unknown"
	}
	msg := cause.Error()
	if len(msg) > maxDLQErrorLen {
		msg = msg[:maxDLQErrorLen]
	}
	return msg
}
