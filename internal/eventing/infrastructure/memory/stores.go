package memory

import (
	"context"
	"sync"

	"cascade/internal/eventing"
)

type outboxRow struct {
	id       string
	env      eventing.Envelope
	status   string
	attempts int
}

// OutboxStore keeps outbox records in memory, in insertion order.
type OutboxStore struct {
	mu     sync.Mutex
	rows   []*outboxRow
	events map[string]struct{}
}

// NewOutboxStore constructs an empty outbox.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{events: make(map[string]struct{})}
}

// Insert appends env unless its event id was already stored.
func (s *OutboxStore) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[env.EventID]; ok {
		return "", nil
	}
	id := eventing.NewEventID()
	s.events[env.EventID] = struct{}{}
	s.rows = append(s.rows, &outboxRow{id: id, env: env, status: "pending"})
	return id, nil
}

// ListPending returns up to limit pending records.
func (s *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []eventing.OutboxRecord
	for _, row := range s.rows {
		if limit > 0 && len(result) >= limit {
			break
		}
		if row.status == "pending" {
			result = append(result, eventing.OutboxRecord{ID: row.id, Envelope: row.env})
		}
	}
	return result, nil
}

// MarkSent marks a record as sent.
func (s *OutboxStore) MarkSent(_ context.Context, id string) error {
	s.setStatus(id, "sent", false)
	return nil
}

// MarkFailed marks a record as failed and counts the attempt.
func (s *OutboxStore) MarkFailed(_ context.Context, id string) error {
	s.setStatus(id, "failed", true)
	return nil
}

// RequeueFailed moves failed records with fewer than maxAttempts back to pending.
func (s *OutboxStore) RequeueFailed(_ context.Context, maxAttempts int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.status == "failed" && row.attempts < maxAttempts {
			row.status = "pending"
			n++
		}
	}
	return n, nil
}

// Pending returns the number of pending records.
func (s *OutboxStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.status == "pending" {
			n++
		}
	}
	return n
}

func (s *OutboxStore) setStatus(id, status string, attempt bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.id == id {
			row.status = status
			if attempt {
				row.attempts++
			}
			return
		}
	}
}

// ProcessedStore keeps consumer claims in a set keyed by consumer and event.
type ProcessedStore struct {
	mu      sync.Mutex
	claimed map[processedKey]struct{}
}

type processedKey struct {
	consumer string
	eventID  string
}

// NewProcessedStore constructs an empty store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{claimed: make(map[processedKey]struct{})}
}

// Claim takes the pair unless another delivery already holds it.
func (s *ProcessedStore) Claim(_ context.Context, eventID, consumerName string) (bool, error) {
	key := processedKey{consumer: consumerName, eventID: eventID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.claimed[key]; taken {
		return false, nil
	}
	s.claimed[key] = struct{}{}
	return true, nil
}

// Release forgets a claim.
func (s *ProcessedStore) Release(_ context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	delete(s.claimed, processedKey{consumer: consumerName, eventID: eventID})
	s.mu.Unlock()
	return nil
}

// DeadLetter is a failed delivery.
type DeadLetter struct {
	Envelope eventing.Envelope
	Error    string
	Attempts int
}

// DLQStore keeps dead letters in memory, keyed by event id.
type DLQStore struct {
	mu      sync.Mutex
	letters map[string]*DeadLetter
}

// NewDLQStore constructs an empty store.
func NewDLQStore() *DLQStore {
	return &DLQStore{letters: make(map[string]*DeadLetter)}
}

// RecordFailure inserts or updates a dead letter.
func (s *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := ""
	if err != nil {
		message = err.Error()
	}
	letter, ok := s.letters[env.EventID]
	if !ok {
		letter = &DeadLetter{}
		s.letters[env.EventID] = letter
	}
	letter.Envelope = env
	letter.Error = message
	letter.Attempts++
	return nil
}

// Len returns the number of dead letters.
func (s *DLQStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.letters)
}
