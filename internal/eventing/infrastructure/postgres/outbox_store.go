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

const defaultPendingLimit = 50

// OutboxStore persists stream envelopes until the dispatcher has delivered
// them. Rows move pending -> sent, or pending -> failed -> pending through
// RequeueFailed until attempts run out.
type OutboxStore struct {
	db  *sql.DB
	sql outboxStatements
}

type outboxStatements struct {
	insert  string
	pending string
	sent    string
	failed  string
	requeue string
}

// OutboxOption configures the outbox store.
type OutboxOption func(*outboxConfig)

type outboxConfig struct {
	table string
}

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(cfg *outboxConfig) {
		if table != "" {
			cfg.table = table
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	cfg := outboxConfig{table: "event_outbox"}
	for _, opt := range opts {
		opt(&cfg)
	}
	t := cfg.table
	return &OutboxStore{db: db, sql: outboxStatements{
		insert: fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, stream_id, payload, status, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6)
ON CONFLICT (event_id) DO NOTHING`, t),
		pending: fmt.Sprintf(`
SELECT id, payload FROM %s
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC
LIMIT $1`, t),
		sent:    fmt.Sprintf(`UPDATE %s SET status = 'sent', sent_at = $1 WHERE id = $2`, t),
		failed:  fmt.Sprintf(`UPDATE %s SET status = 'failed', attempts = attempts + 1 WHERE id = $1`, t),
		requeue: fmt.Sprintf(`UPDATE %s SET status = 'pending' WHERE status = 'failed' AND attempts < $1`, t),
	}}
}

func (s *OutboxStore) ready() error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	return nil
}

// Insert queues env. A second insert of the same event id keeps the first row.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if env.EventID == "" {
		return "", errors.New("outbox store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("outbox store: encode %s: %w", env.EventID, err)
	}
	id := eventing.NewEventID()
	if _, err := s.db.ExecContext(ctx, s.sql.insert,
		id, env.EventID, env.EventType, env.StreamID, payload, time.Now().UTC()); err != nil {
		return "", err
	}
	return id, nil
}

// ListPending returns up to limit pending records, oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	rows, err := s.db.QueryContext(ctx, s.sql.pending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]eventing.OutboxRecord, 0, limit)
	for rows.Next() {
		var (
			record  eventing.OutboxRecord
			payload []byte
		)
		if err := rows.Scan(&record.ID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &record.Envelope); err != nil {
			return nil, fmt.Errorf("outbox store: decode %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkSent closes out a delivered record.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.sql.sent, time.Now().UTC(), id)
	return err
}

// MarkFailed parks a record and counts the attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.sql.failed, id)
	return err
}

// RequeueFailed returns failed records with attempts left to pending.
func (s *OutboxStore) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.sql.requeue, maxAttempts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
