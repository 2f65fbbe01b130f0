package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
)

const defaultActivityTable = "stream_activity"

// ActivityRepository persists stream activity history.
type ActivityRepository struct {
	db    *sql.DB
	table string
}

// ActivityOption configures the repository.
type ActivityOption func(*ActivityRepository)

// WithActivityTable overrides the activity table name.
func WithActivityTable(table string) ActivityOption {
	return func(r *ActivityRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sql.DB, opts ...ActivityOption) *ActivityRepository {
	r := &ActivityRepository{db: db, table: defaultActivityTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append inserts entry, ignoring duplicates by event id.
func (r *ActivityRepository) Append(ctx context.Context, entry application.ActivityEntry) error {
	if r == nil || r.db == nil {
		return errors.New("activity repo: nil db")
	}
	if entry.EventID == "" {
		return errors.New("activity repo: event id is required")
	}
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	event_id, stream_id, kind, actor, amount, ledger_time, recorded_at
) VALUES (
	$1, $2, $3, $4, $5::numeric, $6, $7
)
ON CONFLICT (event_id)
DO NOTHING`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		entry.EventID,
		string(entry.StreamID),
		string(entry.Kind),
		string(entry.Actor),
		formatAmount(entry.Amount),
		entry.LedgerTime,
		recordedAt,
	)
	return err
}

// ListByStream returns up to limit entries, oldest first. limit <= 0 means all.
func (r *ActivityRepository) ListByStream(ctx context.Context, id stream.StreamID, limit int) ([]application.ActivityEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("activity repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT event_id, stream_id, kind, actor, amount::text, ledger_time, recorded_at
FROM %s
WHERE stream_id = $1
ORDER BY ledger_time ASC, recorded_at ASC, event_id ASC`, r.table)
	args := []any{string(id)}
	if limit > 0 {
		query += "\nLIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []application.ActivityEntry
	for rows.Next() {
		var (
			entry    application.ActivityEntry
			streamID string
			kind     string
			actor    string
			amount   string
		)
		if err := rows.Scan(&entry.EventID, &streamID, &kind, &actor, &amount, &entry.LedgerTime, &entry.RecordedAt); err != nil {
			return nil, err
		}
		value, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}
		entry.StreamID = stream.StreamID(streamID)
		entry.Kind = stream.OperationKind(kind)
		entry.Actor = stream.Authority(actor)
		entry.Amount = value
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
