package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cascade/internal/audit"
	"cascade/internal/auth"
	"cascade/internal/observability/metrics"
	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
	streaminterfaces "cascade/internal/stream/interfaces"
)

const (
	basePath        = "/api/v1/streams"
	maxBodyBytes    = 1 << 16
	maxActivityRows = 1000
)

// Handler serves the stream HTTP endpoints.
type Handler struct {
	controller  *application.Controller
	query       *application.QueryService
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(controller *application.Controller, query *application.QueryService, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if controller == nil {
		return nil, errors.New("stream handler: nil controller")
	}
	if query == nil {
		return nil, errors.New("stream handler: nil query service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{controller: controller, query: query, auditLogger: auditLogger, logger: logger}, nil
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(basePath, h)
	mux.Handle(basePath+"/", h)
}

// ServeHTTP routes /api/v1/streams and /api/v1/streams/{id}[/{action}].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	signer := stream.Authority(auth.SubjectFromContext(r.Context()))
	if signer == "" {
		writeJSONError(w, http.StatusUnauthorized, "Unauthenticated", "AuthorizationError")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, basePath), "/")
	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r, signer)
		case http.MethodGet:
			h.handleList(w, r, signer)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(rest, "/")
	if len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	id, err := stream.ParseStreamID(parts[0])
	if err != nil {
		writeError(w, err)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch r.Method {
	case http.MethodGet:
		h.handleRead(w, r, signer, id, action)
	case http.MethodPost:
		h.handleOperation(w, r, signer, id, action)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createRequest struct {
	ID        string `json:"id,omitempty"`
	Employee  string `json:"employee"`
	Amount    uint64 `json:"amount"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	CliffTime *int64 `json:"cliff_time,omitempty"`
}

type topUpRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, signer stream.Authority) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "InvalidJSON", string(stream.KindValidation))
		return
	}
	op := stream.CreateStream{
		Employee:  stream.Authority(req.Employee),
		Amount:    req.Amount,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CliffTime: req.CliffTime,
	}
	if req.ID != "" {
		id, err := stream.ParseStreamID(req.ID)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "InvalidStreamID", string(stream.KindValidation))
			return
		}
		op.ID = id
	}
	result, err := h.controller.CreateStream(r.Context(), signer, op)
	h.respondResult(w, r, signer, result, err, http.StatusCreated)
}

func (h *Handler) handleOperation(w http.ResponseWriter, r *http.Request, signer stream.Authority, id stream.StreamID, action string) {
	var (
		result application.Result
		err    error
	)
	ctx := r.Context()
	switch action {
	case "top-up":
		var req topUpRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "InvalidJSON", string(stream.KindValidation))
			return
		}
		result, err = h.controller.TopUpStream(ctx, signer, id, req.Amount)
	case "withdraw":
		result, err = h.controller.Withdraw(ctx, signer, id)
	case "close":
		result, err = h.controller.CloseStream(ctx, signer, id)
	case "emergency-withdraw":
		result, err = h.controller.EmergencyWithdraw(ctx, signer, id)
	case "refresh-activity":
		result, err = h.controller.RefreshActivity(ctx, signer, id)
	default:
		http.NotFound(w, r)
		return
	}
	h.respondResult(w, r, signer, result, err, http.StatusOK)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, signer stream.Authority) {
	party := stream.Authority(r.URL.Query().Get("party"))
	if party == "" {
		party = signer
	}
	if party != signer {
		writeError(w, stream.ErrUnauthorized)
		return
	}
	views, err := h.query.ListByParty(r.Context(), party)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]streamResponse, 0, len(views))
	for _, view := range views {
		resp = append(resp, newStreamResponse(view))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request, signer stream.Authority, id stream.StreamID, action string) {
	ctx := r.Context()
	switch action {
	case "":
		view, err := h.query.Get(ctx, signer, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newStreamResponse(view))
	case "activity":
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "InvalidLimit", string(stream.KindValidation))
			return
		}
		entries, err := h.query.Activity(ctx, signer, id, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		resp := make([]activityResponse, 0, len(entries))
		for _, entry := range entries {
			resp = append(resp, newActivityResponse(entry))
		}
		writeJSON(w, http.StatusOK, resp)
	case "statement.pdf":
		h.handleStatement(w, r, signer, id, "pdf")
	case "statement.xlsx":
		h.handleStatement(w, r, signer, id, "xlsx")
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request, signer stream.Authority, id stream.StreamID, format string) {
	start := time.Now()
	ctx := r.Context()
	view, err := h.query.Get(ctx, signer, id)
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		writeError(w, err)
		return
	}
	entries, err := h.query.Activity(ctx, signer, id, 0)
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		writeError(w, err)
		return
	}
	stmt := streaminterfaces.Statement{View: view, Activity: entries, ExportedAt: time.Now().UTC()}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = streaminterfaces.BuildStatementPDF(stmt)
		contentType = "application/pdf"
	default:
		data, err = streaminterfaces.BuildStatementXLSX(stmt)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		h.logger.Printf("stream statement export failed: stream=%s format=%s err=%v", id, format, err)
		writeError(w, err)
		return
	}
	metrics.ObserveStatementExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"stream-"+id.String()+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)

	h.logAudit(r, signer, "stream.export_"+format, id, nil)
}

func (h *Handler) respondResult(w http.ResponseWriter, r *http.Request, signer stream.Authority, result application.Result, err error, status int) {
	if err != nil {
		writeError(w, err)
		return
	}
	resp := operationResponse{
		Operation:  string(result.Operation),
		Amount:     result.Amount,
		Changed:    result.Changed,
		LedgerTime: result.Now,
	}
	if result.Stream != nil {
		view, viewErr := application.NewStreamView(result.Stream, result.Now)
		if viewErr == nil {
			sr := newStreamResponse(view)
			resp.Stream = &sr
		}
	}
	writeJSON(w, status, resp)

	if result.Changed && result.Stream != nil {
		h.logAudit(r, signer, "stream."+string(result.Operation), result.Stream.ID, map[string]any{
			"amount":      result.Amount,
			"ledger_time": result.Now,
		})
	}
}

func (h *Handler) logAudit(r *http.Request, signer stream.Authority, action string, id stream.StreamID, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	var raw json.RawMessage
	if meta != nil {
		raw, _ = json.Marshal(meta)
	}
	if err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        string(signer),
		Action:       action,
		ResourceType: "stream",
		ResourceID:   id.String(),
		Metadata:     raw,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}); err != nil {
		h.logger.Printf("stream audit failed: action=%s stream=%s err=%v", action, id, err)
	}
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, target)
}

func parseLimit(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 || limit > maxActivityRows {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}
