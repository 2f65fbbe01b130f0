package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const maxUserAgentLen = 512

// Repository appends entries to the audit_logs table. Entries are never
// updated; the id is the only key.
type Repository struct {
	db        *sql.DB
	insertSQL string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*string)

// WithAuditTable overrides the audit table name.
func WithAuditTable(table string) RepositoryOption {
	return func(current *string) {
		if table != "" {
			*current = table
		}
	}
}

// NewRepository returns nil for a nil db so callers can fall back to a
// LogWriter.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	if db == nil {
		return nil
	}
	table := "audit_logs"
	for _, opt := range opts {
		opt(&table)
	}
	return &Repository{
		db: db,
		insertSQL: fmt.Sprintf(`
INSERT INTO %s (id, actor, action, resource_type, resource_id, metadata, payload_digest, ip, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, table),
	}
}

// Log writes entry after filling its id, timestamp and digest.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = normalize(entry)
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	agent := entry.UserAgent
	if len(agent) > maxUserAgentLen {
		agent = agent[:maxUserAgentLen]
	}
	_, err := r.db.ExecContext(ctx, r.insertSQL,
		entry.ID, entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID,
		metadata, entry.PayloadDigest, entry.IP, agent, entry.CreatedAt)
	return err
}
