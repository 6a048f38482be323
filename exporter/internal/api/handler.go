package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/storepulse/storepulse/exporter/internal/config"
	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
	"github.com/storepulse/storepulse/exporter/internal/registry"
	"github.com/storepulse/storepulse/exporter/internal/status"
	"github.com/storepulse/storepulse/exporter/internal/tlscheck"
)

// Renderer produces the exposition text served on /metrics.
type Renderer interface {
	Render() ([]byte, error)
}

// Collector is the orchestrator surface used by the handlers.
type Collector interface {
	State() orchestrator.State
	Stores() []config.Store
	RunCycle(ctx context.Context) orchestrator.CycleSummary
	RunStore(ctx context.Context, id string) (orchestrator.CycleResult, error)
	Probe(ctx context.Context, id string) (bool, error)
}

// CertChecker reports the certificate of a store endpoint.
type CertChecker func(ctx context.Context, store config.Store) *tlscheck.CertStatus

// Handler serves the metrics, health and operator endpoints.
type Handler struct {
	metrics    Renderer
	orch       Collector
	status     *status.Store
	production bool
	certs      CertChecker
	now        func() time.Time
	mux        *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithProduction hides internal error detail from /metrics failures.
func WithProduction(on bool) Option {
	return func(h *Handler) { h.production = on }
}

// WithCertChecker replaces tlscheck.Check.
func WithCertChecker(c CertChecker) Option {
	return func(h *Handler) { h.certs = c }
}

// WithStream mounts a websocket handler on /ws/stream.
func WithStream(stream http.Handler) Option {
	return func(h *Handler) { h.mux.Handle("GET /ws/stream", stream) }
}

// New creates a Handler and registers all routes.
func New(metrics Renderer, orch Collector, st *status.Store, opts ...Option) *Handler {
	h := &Handler{
		metrics: metrics,
		orch:    orch,
		status:  st,
		certs:   tlscheck.Check,
		now:     time.Now,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /metrics", h.serveMetrics)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("POST /api/v1/collect", h.collect)
	h.mux.HandleFunc("POST /api/v1/collect/{id}", h.collectStore)
	h.mux.HandleFunc("GET /api/v1/stores", h.listStores)
	h.mux.HandleFunc("GET /api/v1/stores/{id}/test", h.testStore)

	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	body, err := h.metrics.Render()
	if err != nil {
		slog.Error("api: render metrics", "err", err)
		msg := err.Error()
		if h.production {
			msg = "internal server error"
		}
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", registry.ContentType)
	w.Write(body) //nolint:errcheck
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	state := h.orch.State()
	resp := HealthResponse{
		State:        state.String(),
		ActiveStores: len(h.orch.Stores()),
	}
	for _, e := range h.status.List() {
		if e.Up == nil {
			continue
		}
		if *e.Up {
			resp.UpStores++
		} else {
			resp.DownStores++
		}
	}

	code := http.StatusOK
	if state != orchestrator.SteadyState {
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	if st := h.orch.State(); st != orchestrator.SteadyState {
		jsonErr(w, http.StatusServiceUnavailable, "exporter is "+st.String())
		return
	}
	jsonResp(w, http.StatusOK, h.orch.RunCycle(r.Context()))
}

func (h *Handler) collectStore(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.RunStore(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, orchestrator.ErrUnknownStore):
		jsonErr(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, orchestrator.ErrStopped):
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !res.Success {
		jsonResp(w, http.StatusBadGateway, CollectStoreResponse{Result: res, Error: res.Branches[res.ErrorKind]})
		return
	}
	jsonResp(w, http.StatusOK, CollectStoreResponse{Result: res})
}

func (h *Handler) listStores(w http.ResponseWriter, _ *http.Request) {
	stores := h.orch.Stores()
	out := make([]StoreResponse, 0, len(stores))
	for _, s := range stores {
		var entry *status.Entry
		if e, ok := h.status.Get(s.ID); ok {
			entry = &e
		}
		out = append(out, StoreResponse{
			ID:             s.ID,
			Name:           s.DisplayName(),
			URL:            s.URL,
			Currency:       s.Currency,
			ScrapeInterval: s.ScrapeInterval.String(),
			Status:         entry,
			Diagnostics:    computeDiagnostics(entry),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

func (h *Handler) testStore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	up, err := h.orch.Probe(r.Context(), id)
	if errors.Is(err, orchestrator.ErrUnknownStore) {
		jsonErr(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ConnectionTestResponse{
		StoreID:   id,
		Connected: up,
		CheckedAt: h.now().UTC().Format(time.RFC3339),
	}
	for _, s := range h.orch.Stores() {
		if s.ID == id {
			resp.TLS = h.certs(r.Context(), s)
			break
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
