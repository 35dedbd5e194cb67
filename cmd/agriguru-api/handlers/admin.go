package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/shivas758/agriguru/internal/ingest"
	"github.com/shivas758/agriguru/internal/observability"
	"github.com/shivas758/agriguru/internal/retrieval"
)

// SyncTrigger starts a price sync.
type SyncTrigger interface {
	Trigger(ctx context.Context) (*ingest.SyncResult, error)
}

// MetricsSource exposes pipeline counters.
type MetricsSource interface {
	Snapshot() retrieval.MetricsSnapshot
}

// Pinger checks backing services.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AdminHandler serves operational endpoints.
type AdminHandler struct {
	logger  *observability.Logger
	sync    SyncTrigger
	metrics MetricsSource
	pinger  Pinger
}

// NewAdminHandler creates an admin handler. sync may be nil when the
// upstream source is not configured.
func NewAdminHandler(logger *observability.Logger, sync SyncTrigger, metrics MetricsSource, pinger Pinger) *AdminHandler {
	return &AdminHandler{logger: logger, sync: sync, metrics: metrics, pinger: pinger}
}

// Sync handles POST /admin/sync. The run outlives a disconnected caller.
func (h *AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "price sync is not configured", "configure source.api_key")
		return
	}
	res, err := h.sync.Trigger(context.WithoutCancel(r.Context()))
	if errors.Is(err, ingest.ErrSyncRunning) {
		writeError(w, http.StatusConflict, err.Error(), "")
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Warn().Err(err).Msg("manual sync failed")
		if res == nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// Metrics handles GET /admin/metrics.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// Health handles GET /health.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "agriguru"})
}

// Ready handles GET /ready.
func (h *AdminHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
