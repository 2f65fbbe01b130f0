package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
)

const (
	employer stream.Authority = "acme-payroll"
	employee stream.Authority = "alice"
)

func fixedClock(now int64) func() int64 {
	return func() int64 { return now }
}

func activeRecord(t *testing.T) (*stream.Stream, []byte) {
	t.Helper()
	s := &stream.Stream{
		ID:             stream.NewStreamID(),
		Employer:       employer,
		Employee:       employee,
		DepositedTotal: 1000,
		StartTime:      0,
		EndTime:        1000,
		Status:         stream.StatusActive,
	}
	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return s, data
}

func TestLedger_WithdrawThroughController(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	record, data := activeRecord(t)
	ledger := NewLedger(db, WithClock(fixedClock(400)))
	controller, err := application.NewController(ledger)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM streams WHERE id = $1 FOR UPDATE")).
		WithArgs(string(record.ID)).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE streams")).
		WithArgs(int(stream.StatusActive), int64(1000), int64(400), sqlmock.AnyArg(), sqlmock.AnyArg(), string(record.ID), data).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_balances")).
		WithArgs("400", sqlmock.AnyArg(), string(stream.EscrowAccount(record.ID))).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_balances")).
		WithArgs(string(stream.WalletAccount(employee)), "400", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := controller.Withdraw(context.Background(), employee, record.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Amount != 400 || result.Stream.WithdrawnTotal != 400 {
		t.Fatalf("unexpected result %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLedger_CompareAndSwapConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	record, data := activeRecord(t)
	ledger := NewLedger(db, WithClock(fixedClock(10)))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE streams")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	next := record.Clone()
	next.LastActivityTime = 10
	err = ledger.Atomically(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.CompareAndSwap(ctx, data, next)
	})
	if !errors.Is(err, stream.ErrConcurrentUpdate) {
		t.Fatalf("expected concurrent update, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLedger_InsertExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	record, _ := activeRecord(t)
	ledger := NewLedger(db, WithClock(fixedClock(0)), WithStreamsTable("payroll_streams"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payroll_streams")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = ledger.Atomically(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Insert(ctx, record)
	})
	if !errors.Is(err, stream.ErrStreamExists) {
		t.Fatalf("expected stream exists, got %v", err)
	}
}

func TestLedger_TransferInsufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(db, WithClock(fixedClock(0)))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_balances")).
		WithArgs("50", sqlmock.AnyArg(), string(stream.WalletAccount(employer))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = ledger.Atomically(context.Background(), func(ctx context.Context, tx application.Tx) error {
		if err := tx.Transfer(ctx, stream.Transfer{From: stream.WalletAccount(employer), To: stream.WalletAccount(employee), Amount: 0}); err != nil {
			return err
		}
		return tx.Transfer(ctx, stream.Transfer{From: stream.WalletAccount(employer), To: stream.WalletAccount(employee), Amount: 50})
	})
	if !errors.Is(err, stream.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLedger_SerializationFailureIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(db, WithClock(fixedClock(0)))
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	err = ledger.Atomically(context.Background(), func(context.Context, application.Tx) error { return nil })
	if !errors.Is(err, stream.ErrConcurrentUpdate) {
		t.Fatalf("expected concurrent update, got %v", err)
	}
}

func TestLedger_NowFromDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXTRACT(EPOCH FROM transaction_timestamp())::bigint")).
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(int64(1_700_000_000)))
	now, err := NewLedger(db).Now(context.Background())
	if err != nil {
		t.Fatalf("now: %v", err)
	}
	if now != 1_700_000_000 {
		t.Fatalf("unexpected now %d", now)
	}
}

func TestLedger_CreditAndBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_balances")).
		WithArgs(string(stream.WalletAccount(employer)), "18446744073709551615", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := ledger.Credit(context.Background(), employer, ^uint64(0)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_balances")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := ledger.Credit(context.Background(), employer, 1); !errors.Is(err, stream.ErrArithmetic) {
		t.Fatalf("expected overflow, got %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance::text FROM ledger_balances")).
		WithArgs(string(stream.WalletAccount(employer))).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("18446744073709551615"))
	balance, err := ledger.Balance(context.Background(), stream.WalletAccount(employer))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != ^uint64(0) {
		t.Fatalf("unexpected balance %d", balance)
	}

	if err := ledger.Credit(context.Background(), "", 1); !errors.Is(err, stream.ErrInvalidParty) {
		t.Fatalf("expected invalid party, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLedger_ListActiveDecodesRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	record, data := activeRecord(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data\nFROM streams\nWHERE status = $1")).
		WithArgs(int(stream.StatusActive)).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))
	streams, err := NewLedger(db).ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(streams) != 1 || streams[0].ID != record.ID {
		t.Fatalf("unexpected streams %+v", streams)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM streams WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	if _, err := NewLedger(db).Get(context.Background(), record.ID); !errors.Is(err, stream.ErrStreamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActivityRepository_AppendAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewActivityRepository(db)
	entry := application.ActivityEntry{
		EventID:    "evt-1",
		StreamID:   "s-1",
		Kind:       stream.OpWithdraw,
		Actor:      employee,
		Amount:     400,
		LedgerTime: 400,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stream_activity")).
		WithArgs("evt-1", "s-1", "withdraw", "alice", "400", int64(400), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(context.Background(), application.ActivityEntry{}); err == nil {
		t.Fatalf("expected missing event id error")
	}

	recorded := time.Unix(400, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM stream_activity")).
		WithArgs("s-1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "stream_id", "kind", "actor", "amount", "ledger_time", "recorded_at"}).
			AddRow("evt-1", "s-1", "withdraw", "alice", "400", int64(400), recorded))
	entries, err := repo.ListByStream(context.Background(), "s-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 400 || entries[0].Kind != stream.OpWithdraw {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
