package memory

import (
	"context"
	"sync"

	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
)

// ActivityRepository keeps activity history in memory.
type ActivityRepository struct {
	mu      sync.RWMutex
	entries map[stream.StreamID][]application.ActivityEntry
	seen    map[string]struct{}
}

// NewActivityRepository constructs an empty repository.
func NewActivityRepository() *ActivityRepository {
	return &ActivityRepository{
		entries: make(map[stream.StreamID][]application.ActivityEntry),
		seen:    make(map[string]struct{}),
	}
}

// Append stores entry unless an entry with the same event id exists.
func (r *ActivityRepository) Append(_ context.Context, entry application.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.EventID != "" {
		if _, ok := r.seen[entry.EventID]; ok {
			return nil
		}
		r.seen[entry.EventID] = struct{}{}
	}
	r.entries[entry.StreamID] = append(r.entries[entry.StreamID], entry)
	return nil
}

// ListByStream returns up to limit entries, oldest first. limit <= 0 means all.
func (r *ActivityRepository) ListByStream(_ context.Context, id stream.StreamID, limit int) ([]application.ActivityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.entries[id]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]application.ActivityEntry(nil), entries...), nil
}
