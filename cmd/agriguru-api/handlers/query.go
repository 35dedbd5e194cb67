package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/intent"
	"github.com/shivas758/agriguru/internal/observability"
)

// Resolver runs the price cascade.
type Resolver interface {
	Resolve(ctx context.Context, in domain.QueryIntent) (*domain.ResolutionResult, error)
}

// IntentExtractor turns free text into an intent.
type IntentExtractor interface {
	Extract(ctx context.Context, req intent.Request) (domain.QueryIntent, error)
}

// QueryHandler serves natural-language and structured price questions.
type QueryHandler struct {
	logger    *observability.Logger
	resolver  Resolver
	extractor IntentExtractor
	inflight  *Inflight
	today     func() time.Time
}

// NewQueryHandler creates a query handler. extractor may be nil, in which
// case only /resolve works.
func NewQueryHandler(logger *observability.Logger, resolver Resolver, extractor IntentExtractor, inflight *Inflight, today func() time.Time) *QueryHandler {
	if inflight == nil {
		inflight = NewInflight()
	}
	return &QueryHandler{
		logger:    logger,
		resolver:  resolver,
		extractor: extractor,
		inflight:  inflight,
		today:     today,
	}
}

// QueryRequestDTO is the body of POST /query.
type QueryRequestDTO struct {
	RequestID   string              `json:"requestId,omitempty"`
	Text        string              `json:"text"`
	History     []string            `json:"history,omitempty"`
	Coordinates *domain.Coordinates `json:"coordinates,omitempty"`
}

// ResolveRequestDTO is the body of POST /resolve. Intent uses the same
// field names the extractor reads.
type ResolveRequestDTO struct {
	RequestID string          `json:"requestId,omitempty"`
	Intent    json.RawMessage `json:"intent"`
}

// QueryResponseDTO is the answer to both endpoints.
type QueryResponseDTO struct {
	Intent    domain.QueryIntent       `json:"intent"`
	Result    *domain.ResolutionResult `json:"result"`
	Stale     bool                     `json:"stale"`
	LatencyMs int64                    `json:"latencyMs"`
}

// Query handles POST /query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req QueryRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if h.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "natural language queries are disabled", "configure llm.api_key")
		return
	}

	ctx, done := h.inflight.Start(r.Context(), req.RequestID)
	defer done()

	in, err := h.extractor.Extract(ctx, intent.Request{
		Text:        req.Text,
		History:     req.History,
		Coordinates: req.Coordinates,
	})
	if ctx.Err() != nil {
		writeCancelled(w)
		return
	}
	if err != nil {
		writeDomainError(w, h.logger.WithContext(ctx), err)
		return
	}
	h.resolve(ctx, w, in, start)
}

// Resolve handles POST /resolve.
func (h *QueryHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req ResolveRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if len(req.Intent) == 0 {
		writeError(w, http.StatusBadRequest, "intent is required", "")
		return
	}
	in, err := intent.Parse(r.Context(), req.Intent, h.logger)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	ctx, done := h.inflight.Start(r.Context(), req.RequestID)
	defer done()
	h.resolve(ctx, w, in, start)
}

// Cancel handles DELETE /requests/{requestId}.
func (h *QueryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")
	if !h.inflight.Cancel(id) {
		writeError(w, http.StatusNotFound, "no running request with that id", "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "requestId": id})
}

func (h *QueryHandler) resolve(ctx context.Context, w http.ResponseWriter, in domain.QueryIntent, start time.Time) {
	res, err := h.resolver.Resolve(ctx, in)
	// Nothing partial is written once the caller has given up.
	if ctx.Err() != nil {
		writeCancelled(w)
		return
	}
	if err != nil {
		writeDomainError(w, h.logger.WithContext(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponseDTO{
		Intent:    in,
		Result:    res,
		Stale:     res.IsStale(h.today()),
		LatencyMs: time.Since(start).Milliseconds(),
	})
}
