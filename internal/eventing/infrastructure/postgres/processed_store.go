package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProcessedStore claims (event, consumer) pairs in the processed_events table.
// A claim is the row itself, so two dispatch passes racing on the same event
// serialize on the primary key.
type ProcessedStore struct {
	db         *sql.DB
	claimSQL   string
	releaseSQL string
}

// ProcessedOption configures the processed store.
type ProcessedOption func(*processedConfig)

type processedConfig struct {
	table string
}

// WithProcessedTable overrides table name.
func WithProcessedTable(table string) ProcessedOption {
	return func(cfg *processedConfig) {
		if table != "" {
			cfg.table = table
		}
	}
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore(db *sql.DB, opts ...ProcessedOption) *ProcessedStore {
	cfg := processedConfig{table: "processed_events"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ProcessedStore{
		db: db,
		claimSQL: fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, cfg.table),
		releaseSQL: fmt.Sprintf(`DELETE FROM %s WHERE event_id = $1 AND consumer_name = $2`, cfg.table),
	}
}

// Claim inserts the pair and reports whether this caller owns it.
func (s *ProcessedStore) Claim(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.check(eventID, consumerName); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.claimSQL, eventID, consumerName, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release drops a claim taken by a handler that failed.
func (s *ProcessedStore) Release(ctx context.Context, eventID, consumerName string) error {
	if err := s.check(eventID, consumerName); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.releaseSQL, eventID, consumerName)
	return err
}

func (s *ProcessedStore) check(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: event id and consumer required")
	}
	return nil
}
