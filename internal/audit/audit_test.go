package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRepository_LogFillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	meta := json.RawMessage(`{"amount":400}`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), "alice", "stream.withdraw", "stream", "s-1",
			[]byte(meta), DigestJSON(meta), "10.0.0.1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository(db)
	err = repo.Log(context.Background(), Entry{
		Actor:        "alice",
		Action:       "stream.withdraw",
		ResourceType: "stream",
		ResourceID:   "s-1",
		Metadata:     meta,
		IP:           "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	if NewRepository(nil) != nil {
		t.Fatalf("expected nil repository for nil db")
	}
}

func TestRepository_LogWithoutMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stream_audit")).
		WithArgs("audit-fixed", "bob", "stream.close", "stream", "s-2", nil, "", "", strings.Repeat("a", 512), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewRepository(db, WithAuditTable("stream_audit")).Log(context.Background(), Entry{
		ID:           "audit-fixed",
		Actor:        "bob",
		Action:       "stream.close",
		ResourceType: "stream",
		ResourceID:   "s-2",
		UserAgent:    strings.Repeat("a", 600),
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLogWriter(log.New(&buf, "", 0))
	if err := w.Log(context.Background(), Entry{Actor: "acme-payroll", Action: "stream.create", ResourceType: "stream", ResourceID: "s-1"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(buf.String(), "action=stream.create") || !strings.Contains(buf.String(), "id=audit-") {
		t.Fatalf("unexpected line %q", buf.String())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("unexpected remote ip %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Fatalf("unexpected real ip %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Fatalf("unexpected forwarded ip %q", got)
	}
	req.Header.Set("X-Forwarded-For", "unknown, 203.0.113.9")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected garbage hop to be skipped, got %q", got)
	}
}

func TestDigestJSON(t *testing.T) {
	if DigestJSON(nil) != "" {
		t.Fatalf("expected empty digest")
	}
	if len(DigestJSON([]byte("{}"))) != 64 {
		t.Fatalf("expected sha256 hex digest")
	}
}
