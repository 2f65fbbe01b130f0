package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
)

const (
	defaultStreamsTable  = "streams"
	defaultBalancesTable = "ledger_balances"

	// SQLSTATE codes that mean a concurrent writer won.
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// Ledger is the Postgres ledger runtime. Records are stored in their binary
// layout and the stored bytes double as the compare-and-swap token. Amounts are
// NUMERIC(20,0) and cross the driver as decimal strings.
type Ledger struct {
	db       *sql.DB
	streams  string
	balances string
	clock    func() int64
}

// LedgerOption configures the ledger.
type LedgerOption func(*Ledger)

// WithStreamsTable overrides the streams table name.
func WithStreamsTable(table string) LedgerOption {
	return func(l *Ledger) {
		if table != "" {
			l.streams = table
		}
	}
}

// WithBalancesTable overrides the balances table name.
func WithBalancesTable(table string) LedgerOption {
	return func(l *Ledger) {
		if table != "" {
			l.balances = table
		}
	}
}

// WithClock replaces the database time oracle.
func WithClock(clock func() int64) LedgerOption {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// NewLedger constructs the ledger.
func NewLedger(db *sql.DB, opts ...LedgerOption) *Ledger {
	l := &Ledger{db: db, streams: defaultStreamsTable, balances: defaultBalancesTable}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Atomically runs fn in one database transaction.
func (l *Ledger) Atomically(ctx context.Context, fn application.TxFunc) error {
	if l == nil || l.db == nil {
		return errors.New("stream ledger: nil db")
	}
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now, err := l.txNow(ctx, sqlTx)
	if err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	t := &tx{ledger: l, tx: sqlTx, now: now}
	if err := fn(ctx, t); err != nil {
		_ = sqlTx.Rollback()
		return mapConflict(err)
	}
	return mapConflict(sqlTx.Commit())
}

func (l *Ledger) txNow(ctx context.Context, q queryer) (int64, error) {
	if l.clock != nil {
		return l.clock(), nil
	}
	var now int64
	err := q.QueryRowContext(ctx, `SELECT EXTRACT(EPOCH FROM transaction_timestamp())::bigint`).Scan(&now)
	return now, err
}

// Now returns the ledger time outside of a step.
func (l *Ledger) Now(ctx context.Context) (int64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("stream ledger: nil db")
	}
	return l.txNow(ctx, l.db)
}

// Credit adds funds to a wallet outside of any stream operation.
func (l *Ledger) Credit(ctx context.Context, owner stream.Authority, amount uint64) error {
	if l == nil || l.db == nil {
		return errors.New("stream ledger: nil db")
	}
	if !owner.Valid() {
		return stream.ErrInvalidParty
	}
	query := fmt.Sprintf(`
INSERT INTO %s AS b (account, balance, updated_at)
VALUES ($1, $2::numeric, $3)
ON CONFLICT (account)
DO UPDATE SET balance = b.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
WHERE b.balance + EXCLUDED.balance <= 18446744073709551615`, l.balances)
	res, err := l.db.ExecContext(ctx, query, string(stream.WalletAccount(owner)), formatAmount(amount), time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stream.ErrArithmetic
	}
	return nil
}

// Balance returns the committed balance of an account.
func (l *Ledger) Balance(ctx context.Context, account stream.Account) (uint64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("stream ledger: nil db")
	}
	var raw string
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT balance::text FROM %s WHERE account = $1`, l.balances), string(account)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseAmount(raw)
}

// Get returns a committed record.
func (l *Ledger) Get(ctx context.Context, id stream.StreamID) (*stream.Stream, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("stream ledger: nil db")
	}
	var data []byte
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, l.streams), string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stream.ErrStreamNotFound
	}
	if err != nil {
		return nil, err
	}
	return stream.Decode(data)
}

// ListByParty returns the streams where party is employer or employee.
func (l *Ledger) ListByParty(ctx context.Context, party stream.Authority) ([]*stream.Stream, error) {
	return l.list(ctx, `WHERE employer = $1 OR employee = $1`, string(party))
}

// ListActive returns every active stream.
func (l *Ledger) ListActive(ctx context.Context) ([]*stream.Stream, error) {
	return l.list(ctx, `WHERE status = $1`, int(stream.StatusActive))
}

func (l *Ledger) list(ctx context.Context, where string, args ...any) ([]*stream.Stream, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("stream ledger: nil db")
	}
	query := fmt.Sprintf(`
SELECT data
FROM %s
%s
ORDER BY start_time ASC, id ASC`, l.streams, where)
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*stream.Stream
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		s, err := stream.Decode(data)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tx struct {
	ledger *Ledger
	tx     *sql.Tx
	now    int64
}

func (t *tx) Now() int64 { return t.now }

func (t *tx) Load(ctx context.Context, id stream.StreamID) (*stream.Stream, []byte, error) {
	var data []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1 FOR UPDATE`, t.ledger.streams)
	err := t.tx.QueryRowContext(ctx, query, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, stream.ErrStreamNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	s, err := stream.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return s, data, nil
}

func (t *tx) Insert(ctx context.Context, next *stream.Stream) error {
	data, err := next.MarshalBinary()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, employer, employee, status, start_time, end_time, last_activity_time, data, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (id)
DO NOTHING`, t.ledger.streams)
	res, err := t.tx.ExecContext(ctx, query,
		string(next.ID), string(next.Employer), string(next.Employee), int(next.Status),
		next.StartTime, next.EndTime, next.LastActivityTime, data, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stream.ErrStreamExists
	}
	return nil
}

func (t *tx) CompareAndSwap(ctx context.Context, expected []byte, next *stream.Stream) error {
	data, err := next.MarshalBinary()
	if err != nil {
		return err
	}
	if bytes.Equal(data, expected) {
		return nil
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, end_time = $2, last_activity_time = $3, data = $4, updated_at = $5
WHERE id = $6 AND data = $7`, t.ledger.streams)
	res, err := t.tx.ExecContext(ctx, query,
		int(next.Status), next.EndTime, next.LastActivityTime, data, time.Now().UTC(),
		string(next.ID), expected,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stream.ErrConcurrentUpdate
	}
	return nil
}

func (t *tx) Transfer(ctx context.Context, transfer stream.Transfer) error {
	if transfer.Amount == 0 || transfer.From == transfer.To {
		return nil
	}
	amount := formatAmount(transfer.Amount)
	debit := fmt.Sprintf(`
UPDATE %s
SET balance = balance - $1::numeric, updated_at = $2
WHERE account = $3 AND balance >= $1::numeric`, t.ledger.balances)
	res, err := t.tx.ExecContext(ctx, debit, amount, time.Now().UTC(), string(transfer.From))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stream.ErrInsufficientFunds
	}

	credit := fmt.Sprintf(`
INSERT INTO %s AS b (account, balance, updated_at)
VALUES ($1, $2::numeric, $3)
ON CONFLICT (account)
DO UPDATE SET balance = b.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
WHERE b.balance + EXCLUDED.balance <= 18446744073709551615`, t.ledger.balances)
	res, err = t.tx.ExecContext(ctx, credit, string(transfer.To), amount, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stream.ErrArithmetic
	}
	return nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected) {
		return stream.ErrConcurrentUpdate
	}
	return err
}

func formatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}

func parseAmount(raw string) (uint64, error) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stream ledger: bad balance %q: %w", raw, err)
	}
	return value, nil
}
