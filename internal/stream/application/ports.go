package application

import (
	"context"

	stream "cascade/internal/stream/domain"
)

// Tx is one atomic step against the ledger runtime. Nothing written through a
// Tx is visible until the surrounding Atomically call returns nil.
type Tx interface {
	// Now is the time oracle for the step, in ledger seconds.
	Now() int64
	// Load returns the record and its stored bytes. A missing record returns
	// stream.ErrStreamNotFound.
	Load(ctx context.Context, id stream.StreamID) (*stream.Stream, []byte, error)
	// Insert stores a new record and fails with stream.ErrStreamExists on a taken id.
	Insert(ctx context.Context, next *stream.Stream) error
	// CompareAndSwap replaces the record only if its stored bytes still equal
	// expected, and fails with stream.ErrConcurrentUpdate otherwise.
	CompareAndSwap(ctx context.Context, expected []byte, next *stream.Stream) error
	// Transfer moves funds and fails with stream.ErrInsufficientFunds when the
	// source balance cannot cover the amount.
	Transfer(ctx context.Context, transfer stream.Transfer) error
}

// TxFunc is the body of an atomic step.
type TxFunc func(ctx context.Context, tx Tx) error

// Ledger is the keyed atomic storage, token transfer and time oracle the
// controller runs against.
type Ledger interface {
	Atomically(ctx context.Context, fn TxFunc) error
}

// StreamQuery is the read side of the ledger.
type StreamQuery interface {
	Now(ctx context.Context) (int64, error)
	Get(ctx context.Context, id stream.StreamID) (*stream.Stream, error)
	ListByParty(ctx context.Context, party stream.Authority) ([]*stream.Stream, error)
	ListActive(ctx context.Context) ([]*stream.Stream, error)
}

// EventPublisher emits lifecycle events after a step commits.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// ActivityRepository persists the activity history of streams.
type ActivityRepository interface {
	Append(ctx context.Context, entry ActivityEntry) error
	ListByStream(ctx context.Context, id stream.StreamID, limit int) ([]ActivityEntry, error)
}
