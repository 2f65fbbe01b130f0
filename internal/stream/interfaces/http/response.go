package http

import (
	"encoding/json"
	"net/http"
	"time"

	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
)

type streamResponse struct {
	ID               string `json:"id"`
	Employer         string `json:"employer"`
	Employee         string `json:"employee"`
	Status           string `json:"status"`
	DepositedTotal   uint64 `json:"deposited_total"`
	WithdrawnTotal   uint64 `json:"withdrawn_total"`
	StartTime        int64  `json:"start_time"`
	EndTime          int64  `json:"end_time"`
	CliffTime        *int64 `json:"cliff_time,omitempty"`
	LastActivityTime int64  `json:"last_activity_time"`
	Vested           uint64 `json:"vested"`
	Withdrawable     uint64 `json:"withdrawable"`
	Escrow           uint64 `json:"escrow"`
	InactiveFor      int64  `json:"inactive_for"`
	LedgerTime       int64  `json:"ledger_time"`
}

func newStreamResponse(view application.StreamView) streamResponse {
	s := view.Stream
	return streamResponse{
		ID:               s.ID.String(),
		Employer:         string(s.Employer),
		Employee:         string(s.Employee),
		Status:           s.Status.String(),
		DepositedTotal:   s.DepositedTotal,
		WithdrawnTotal:   s.WithdrawnTotal,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		CliffTime:        s.CliffTime,
		LastActivityTime: s.LastActivityTime,
		Vested:           view.Vested,
		Withdrawable:     view.Withdrawable,
		Escrow:           view.Escrow,
		InactiveFor:      view.InactiveFor,
		LedgerTime:       view.Now,
	}
}

type operationResponse struct {
	Operation  string          `json:"operation"`
	Amount     uint64          `json:"amount"`
	Changed    bool            `json:"changed"`
	LedgerTime int64           `json:"ledger_time"`
	Stream     *streamResponse `json:"stream,omitempty"`
}

type activityResponse struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	Actor      string    `json:"actor"`
	Amount     uint64    `json:"amount"`
	LedgerTime int64     `json:"ledger_time"`
	RecordedAt time.Time `json:"recorded_at"`
}

func newActivityResponse(entry application.ActivityEntry) activityResponse {
	return activityResponse{
		EventID:    entry.EventID,
		Kind:       string(entry.Kind),
		Actor:      string(entry.Actor),
		Amount:     entry.Amount,
		LedgerTime: entry.LedgerTime,
		RecordedAt: entry.RecordedAt,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind stream.Kind) int {
	switch kind {
	case stream.KindValidation, stream.KindArithmetic:
		return http.StatusBadRequest
	case stream.KindAuthorization:
		return http.StatusForbidden
	case stream.KindNotFound:
		return http.StatusNotFound
	case stream.KindState, stream.KindInactivityNotMet:
		return http.StatusConflict
	case stream.KindInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := stream.KindOf(err)
	code := stream.CodeOf(err)
	if kind == "" {
		kind = stream.KindInternal
		code = "Internal"
	}
	writeJSONError(w, statusFor(kind), code, string(kind))
}

func writeJSONError(w http.ResponseWriter, status int, code, kind string) {
	writeJSON(w, status, errorResponse{Error: code, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
