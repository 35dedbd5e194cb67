package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/observability"
	"github.com/shivas758/agriguru/internal/storage"
)

// PriceReader is the stored price history.
type PriceReader interface {
	GetLatest(ctx context.Context, f storage.PriceFilter, limit int) ([]domain.PriceRecord, error)
	GetTrend(ctx context.Context, q storage.TrendQuery) ([]domain.TrendSeries, error)
}

// PriceHandler serves direct reads of the price store.
type PriceHandler struct {
	logger    *observability.Logger
	prices    PriceReader
	limit     int
	trendDays int
	today     func() time.Time
}

// NewPriceHandler creates a price handler. today gives the current day in
// the service's timezone; trends end with it by default.
func NewPriceHandler(logger *observability.Logger, prices PriceReader, limit, trendDays int, today func() time.Time) *PriceHandler {
	return &PriceHandler{logger: logger, prices: prices, limit: limit, trendDays: trendDays, today: today}
}

// PricesResponseDTO is the answer to GET /prices/latest.
type PricesResponseDTO struct {
	Records []domain.PriceRecord `json:"records"`
}

// TrendResponseDTO is the answer to GET /prices/trend.
type TrendResponseDTO struct {
	Series []domain.TrendSeries `json:"series"`
}

func filterFrom(r *http.Request) storage.PriceFilter {
	q := r.URL.Query()
	return storage.PriceFilter{
		Commodity: strings.TrimSpace(q.Get("commodity")),
		State:     strings.TrimSpace(q.Get("state")),
		District:  strings.TrimSpace(q.Get("district")),
		Market:    strings.TrimSpace(q.Get("market")),
	}
}

// Latest handles GET /prices/latest.
func (h *PriceHandler) Latest(w http.ResponseWriter, r *http.Request) {
	f := filterFrom(r)
	if f.Location().IsEmpty() && f.Commodity == "" {
		writeError(w, http.StatusBadRequest, "at least one of commodity, state, district or market is required", "")
		return
	}
	limit, err := queryInt(r, "limit", h.limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	recs, err := h.prices.GetLatest(r.Context(), f, limit)
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}
	if recs == nil {
		recs = []domain.PriceRecord{}
	}
	writeJSON(w, http.StatusOK, PricesResponseDTO{Records: recs})
}

// Trend handles GET /prices/trend. until is an exclusive YYYY-MM-DD bound.
func (h *PriceHandler) Trend(w http.ResponseWriter, r *http.Request) {
	f := filterFrom(r)
	if f.Commodity == "" {
		writeError(w, http.StatusBadRequest, "commodity is required", "")
		return
	}
	days, err := queryInt(r, "days", h.trendDays)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	until := domain.Day(h.today()).AddDate(0, 0, 1)
	if v := r.URL.Query().Get("until"); v != "" {
		until, err = domain.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be YYYY-MM-DD", err.Error())
			return
		}
	}

	series, err := h.prices.GetTrend(r.Context(), storage.TrendQuery{
		Commodity: f.Commodity,
		State:     f.State,
		District:  f.District,
		Market:    f.Market,
		Days:      days,
		Until:     until,
	})
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}
	if series == nil {
		series = []domain.TrendSeries{}
	}
	writeJSON(w, http.StatusOK, TrendResponseDTO{Series: series})
}
