package server

import (
	"NativeSwap/internal/ingestion"
	"NativeSwap/internal/projection"
	"NativeSwap/internal/query"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"golang.org/x/time/rate"
)

const maxTxBody = 64 << 10

var (
	errNotConfigured = errors.New("not configured")
	errRateLimited   = errors.New("submission rate exceeded")
)

type route struct {
	method  string
	pattern string
	name    string
	handle  func(r *http.Request, params map[string]string) (int, any, error)
}

// NewGatewayMux registers the JSON API on a gateway mux.
func NewGatewayMux(deps *ServerDeps) (*runtime.ServeMux, error) {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if deps.SubmitPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(deps.SubmitPerMinute/60), max(deps.SubmitBurst, 1))
	}
	h := &handlers{deps: deps, submitLimit: limiter}
	routes := []route{
		{http.MethodGet, "/v1/pools/{token}", "pool", h.pool},
		{http.MethodGet, "/v1/pools/{token}/quote", "quote", h.quote},
		{http.MethodGet, "/v1/pools/{token}/quotes", "quote_history", h.quoteHistory},
		{http.MethodGet, "/v1/pools/{token}/providers/{owner}", "provider", h.provider},
		{http.MethodGet, "/v1/pools/{token}/reservations/{owner}", "reservation", h.reservation},
		{http.MethodGet, "/v1/accounts/{entity}/journal", "journal", h.journal},
		{http.MethodPost, "/v1/admin/tx/{op}", "submit", h.submit},
		{http.MethodPost, "/v1/admin/checkpoint", "checkpoint", h.checkpoint},
		{http.MethodPost, "/v1/admin/projections/rebuild", "rebuild", h.rebuild},
		{http.MethodGet, "/v1/admin/event-log", "event_log", h.eventLog},
		{http.MethodGet, "/v1/admin/integrity", "integrity", h.integrity},
	}

	mux := runtime.NewServeMux()
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, h.instrument(rt)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

type handlers struct {
	deps        *ServerDeps
	submitLimit *rate.Limiter
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *handlers) instrument(rt route) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		code, body, err := rt.handle(r, params)
		if err != nil {
			code = statusOf(err)
			body = errorBody{Error: err.Error()}
		}

		if m := h.deps.Metrics; m != nil {
			m.QueryRequests.WithLabelValues(rt.name).Inc()
			m.QueryDuration.WithLabelValues(rt.name).Observe(time.Since(start).Seconds())
			if err != nil {
				m.QueryErrors.WithLabelValues(rt.name, strconv.Itoa(code)).Inc()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case query.IsNotFound(err):
		return http.StatusNotFound
	case query.IsInvalid(err):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrUnavailable), errors.Is(err, errNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", query.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func uintParam(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalid("%s must be an unsigned integer", name)
	}
	return v, nil
}

// --- Pool queries ---

func (h *handlers) pool(r *http.Request, p map[string]string) (int, any, error) {
	block, err := uintParam(r, "block", 0)
	if err != nil {
		return 0, nil, err
	}
	resp, err := h.deps.QueryService.GetPool(r.Context(), p["token"], block)
	return http.StatusOK, resp, err
}

func (h *handlers) quote(r *http.Request, p map[string]string) (int, any, error) {
	sats, err := uintParam(r, "satoshis", 0)
	if err != nil {
		return 0, nil, err
	}
	resp, err := h.deps.QueryService.GetQuote(r.Context(), p["token"], sats)
	return http.StatusOK, resp, err
}

func (h *handlers) quoteHistory(r *http.Request, p map[string]string) (int, any, error) {
	limit, err := uintParam(r, "limit", 100)
	if err != nil {
		return 0, nil, err
	}
	resp, err := h.deps.QueryService.GetQuoteHistory(r.Context(), p["token"], int(min(limit, 1000)))
	return http.StatusOK, resp, err
}

func (h *handlers) provider(r *http.Request, p map[string]string) (int, any, error) {
	resp, err := h.deps.QueryService.GetProvider(r.Context(), p["token"], p["owner"])
	return http.StatusOK, resp, err
}

func (h *handlers) reservation(r *http.Request, p map[string]string) (int, any, error) {
	resp, err := h.deps.QueryService.GetReservation(r.Context(), p["token"], p["owner"])
	return http.StatusOK, resp, err
}

func (h *handlers) journal(r *http.Request, p map[string]string) (int, any, error) {
	limit, err := uintParam(r, "limit", 100)
	if err != nil {
		return 0, nil, err
	}
	before, err := uintParam(r, "before", 0)
	if err != nil {
		return 0, nil, err
	}
	var after *int64
	if before > 0 {
		seq := int64(before)
		after = &seq
	}
	resp, err := h.deps.QueryService.GetJournalHistory(r.Context(), p["entity"], int(min(limit, 1000)), after)
	return http.StatusOK, resp, err
}

// --- Admin ---

type submitResponse struct {
	TxID     string `json:"tx_id"`
	Accepted bool   `json:"accepted"`
}

func (h *handlers) submit(r *http.Request, p map[string]string) (int, any, error) {
	if h.deps.IngestService == nil {
		return 0, nil, fmt.Errorf("ingest service %w", errNotConfigured)
	}
	if !h.submitLimit.Allow() {
		return 0, nil, errRateLimited
	}
	op, err := ingestion.OpFromName(p["op"])
	if err != nil {
		return 0, nil, invalid("%v", err)
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxTxBody+1))
	if err != nil {
		return 0, nil, invalid("read body: %v", err)
	}
	if len(payload) > maxTxBody {
		return 0, nil, invalid("body exceeds %d bytes", maxTxBody)
	}
	id, err := h.deps.IngestService.Submit(r.Context(), op, payload)
	if err != nil {
		if r.Context().Err() != nil {
			return 0, nil, err
		}
		return 0, nil, invalid("%v", err)
	}
	return http.StatusAccepted, submitResponse{TxID: id.String(), Accepted: true}, nil
}

type checkpointResponse struct {
	Sequence  int64     `json:"sequence"`
	StateHash string    `json:"state_hash"`
	LastBlock uint64    `json:"last_block"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handlers) checkpoint(r *http.Request, _ map[string]string) (int, any, error) {
	if h.deps.Checkpoint == nil {
		return 0, nil, fmt.Errorf("checkpointing %w", errNotConfigured)
	}
	cp, err := h.deps.Checkpoint(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, checkpointResponse{
		Sequence:  cp.Sequence,
		StateHash: fmt.Sprintf("%x", cp.StateHash),
		LastBlock: cp.LastBlock,
		CreatedAt: cp.CreatedAt,
	}, nil
}

func (h *handlers) rebuild(r *http.Request, _ map[string]string) (int, any, error) {
	if h.deps.DB == nil {
		return 0, nil, query.ErrUnavailable
	}
	if err := projection.Rebuild(r.Context(), h.deps.DB); err != nil {
		return 0, nil, fmt.Errorf("rebuild failed: %w", err)
	}
	return http.StatusOK, map[string]bool{"rebuilt": true}, nil
}

type eventLogResponse struct {
	LastSequence  int64  `json:"last_sequence"`
	LastBlock     uint64 `json:"last_block"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *handlers) eventLog(r *http.Request, _ map[string]string) (int, any, error) {
	if h.deps.CheckpointMgr == nil {
		return 0, nil, query.ErrUnavailable
	}
	seq, err := h.deps.CheckpointMgr.GetLatestSequence(r.Context())
	if err != nil {
		return 0, nil, fmt.Errorf("get latest sequence: %w", err)
	}
	return http.StatusOK, eventLogResponse{
		LastSequence:  seq,
		LastBlock:     h.deps.QueryService.LastBlock(),
		UptimeSeconds: int64(time.Since(h.deps.StartTime).Seconds()),
	}, nil
}

func (h *handlers) integrity(r *http.Request, _ map[string]string) (int, any, error) {
	report, err := h.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		return 0, nil, err
	}
	code := http.StatusOK
	if !report.IsHealthy {
		code = http.StatusConflict
	}
	return code, report, nil
}
