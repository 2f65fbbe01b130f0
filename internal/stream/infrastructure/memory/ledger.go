package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
)

// Ledger is an in-process ledger runtime. Steps are serialized and their
// writes are staged until the step returns without error.
type Ledger struct {
	mu       sync.Mutex
	records  map[stream.StreamID][]byte
	balances map[stream.Account]uint64
	clock    func() int64
}

// Option configures the ledger.
type Option func(*Ledger)

// WithClock overrides the time oracle.
func WithClock(clock func() int64) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLedger constructs an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		records:  make(map[stream.StreamID][]byte),
		balances: make(map[stream.Account]uint64),
		clock:    func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Credit adds funds to a wallet outside of any stream operation.
func (l *Ledger) Credit(owner stream.Authority, amount uint64) error {
	if !owner.Valid() {
		return stream.ErrInvalidParty
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	account := stream.WalletAccount(owner)
	next, err := stream.AddChecked(l.balances[account], amount)
	if err != nil {
		return err
	}
	l.balances[account] = next
	return nil
}

// Balance returns the committed balance of an account.
func (l *Ledger) Balance(account stream.Account) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Atomically runs fn as one step.
func (l *Ledger) Atomically(ctx context.Context, fn application.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &tx{
		ledger:   l,
		now:      l.clock(),
		records:  make(map[stream.StreamID][]byte),
		balances: make(map[stream.Account]uint64),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	for id, data := range t.records {
		l.records[id] = data
	}
	for account, balance := range t.balances {
		l.balances[account] = balance
	}
	return nil
}

// Now returns the current ledger time.
func (l *Ledger) Now(context.Context) (int64, error) {
	return l.clock(), nil
}

// Get returns a committed record.
func (l *Ledger) Get(_ context.Context, id stream.StreamID) (*stream.Stream, error) {
	l.mu.Lock()
	data, ok := l.records[id]
	l.mu.Unlock()
	if !ok {
		return nil, stream.ErrStreamNotFound
	}
	return stream.Decode(data)
}

// ListByParty returns the streams where party is employer or employee.
func (l *Ledger) ListByParty(_ context.Context, party stream.Authority) ([]*stream.Stream, error) {
	return l.list(func(s *stream.Stream) bool {
		return s.Employer == party || s.Employee == party
	})
}

// ListActive returns every active stream.
func (l *Ledger) ListActive(context.Context) ([]*stream.Stream, error) {
	return l.list(func(s *stream.Stream) bool { return s.IsActive() })
}

func (l *Ledger) list(keep func(*stream.Stream) bool) ([]*stream.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []*stream.Stream
	for _, data := range l.records {
		s, err := stream.Decode(data)
		if err != nil {
			return nil, err
		}
		if keep(s) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime != result[j].StartTime {
			return result[i].StartTime < result[j].StartTime
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

type tx struct {
	ledger   *Ledger
	now      int64
	records  map[stream.StreamID][]byte
	balances map[stream.Account]uint64
}

func (t *tx) Now() int64 { return t.now }

func (t *tx) read(id stream.StreamID) ([]byte, bool) {
	if data, ok := t.records[id]; ok {
		return data, true
	}
	data, ok := t.ledger.records[id]
	return data, ok
}

func (t *tx) balance(account stream.Account) uint64 {
	if balance, ok := t.balances[account]; ok {
		return balance
	}
	return t.ledger.balances[account]
}

func (t *tx) Load(_ context.Context, id stream.StreamID) (*stream.Stream, []byte, error) {
	data, ok := t.read(id)
	if !ok {
		return nil, nil, stream.ErrStreamNotFound
	}
	s, err := stream.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return s, append([]byte(nil), data...), nil
}

func (t *tx) Insert(_ context.Context, next *stream.Stream) error {
	if _, ok := t.read(next.ID); ok {
		return stream.ErrStreamExists
	}
	data, err := next.MarshalBinary()
	if err != nil {
		return err
	}
	t.records[next.ID] = data
	return nil
}

func (t *tx) CompareAndSwap(_ context.Context, expected []byte, next *stream.Stream) error {
	current, ok := t.read(next.ID)
	if !ok {
		return stream.ErrStreamNotFound
	}
	if !bytes.Equal(current, expected) {
		return stream.ErrConcurrentUpdate
	}
	data, err := next.MarshalBinary()
	if err != nil {
		return err
	}
	t.records[next.ID] = data
	return nil
}

func (t *tx) Transfer(_ context.Context, transfer stream.Transfer) error {
	if transfer.Amount == 0 || transfer.From == transfer.To {
		return nil
	}
	from := t.balance(transfer.From)
	if from < transfer.Amount {
		return stream.ErrInsufficientFunds
	}
	to, err := stream.AddChecked(t.balance(transfer.To), transfer.Amount)
	if err != nil {
		return err
	}
	t.balances[transfer.From] = from - transfer.Amount
	t.balances[transfer.To] = to
	return nil
}
