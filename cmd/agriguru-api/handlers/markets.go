package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/geo"
	"github.com/shivas758/agriguru/internal/matcher"
	"github.com/shivas758/agriguru/internal/observability"
)

// MarketValidator checks a market name against the catalog.
type MarketValidator interface {
	Validate(ctx context.Context, name, state, district string, sig matcher.Signal) (matcher.Outcome, error)
}

// NearbyFinder lists markets close to an origin.
type NearbyFinder interface {
	NearbyMarkets(ctx context.Context, origin geo.Origin, radiusKm float64, max int) ([]domain.NearbyMarket, error)
}

// MarketHandler serves catalog lookups.
type MarketHandler struct {
	logger     *observability.Logger
	validator  MarketValidator
	nearby     NearbyFinder
	radiusKm   float64
	maxMarkets int
}

// NewMarketHandler creates a market handler.
func NewMarketHandler(logger *observability.Logger, validator MarketValidator, nearby NearbyFinder, radiusKm float64, maxMarkets int) *MarketHandler {
	return &MarketHandler{
		logger:     logger,
		validator:  validator,
		nearby:     nearby,
		radiusKm:   radiusKm,
		maxMarkets: maxMarkets,
	}
}

// ValidateResponseDTO is the answer to GET /markets/validate.
type ValidateResponseDTO struct {
	Kind        string                    `json:"kind"`
	Match       *domain.MarketEntry       `json:"match,omitempty"`
	Score       float64                   `json:"score"`
	Suggestions []domain.MarketSuggestion `json:"suggestions,omitempty"`
}

// NearbyResponseDTO is the answer to GET /markets/nearby.
type NearbyResponseDTO struct {
	Markets []domain.NearbyMarket `json:"markets"`
}

// Validate handles GET /markets/validate?name=&state=&district=.
func (h *MarketHandler) Validate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required", "")
		return
	}

	out, err := h.validator.Validate(r.Context(), name, q.Get("state"), q.Get("district"),
		matcher.Signal{IsRealLocation: q.Get("real") == "true"})
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}

	resp := ValidateResponseDTO{Kind: string(out.Kind), Match: out.Match, Score: out.Score}
	for _, c := range out.Candidates {
		resp.Suggestions = append(resp.Suggestions, domain.MarketSuggestion{Market: c.Market, Score: c.Score})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Nearby handles GET /markets/nearby. The origin is a place
// (market, district, state), a point (lat, lon), or both.
func (h *MarketHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	origin := geo.Origin{Location: domain.Location{
		State:    strings.TrimSpace(q.Get("state")),
		District: strings.TrimSpace(q.Get("district")),
		Market:   strings.TrimSpace(q.Get("market")),
	}}

	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	lon, err := queryFloat(r, "lon")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if (lat == nil) != (lon == nil) {
		writeError(w, http.StatusBadRequest, "lat and lon must be given together", "")
		return
	}
	if lat != nil {
		point := domain.Coordinates{Latitude: *lat, Longitude: *lon}
		if !point.Valid() {
			writeError(w, http.StatusBadRequest, "coordinates out of range", "")
			return
		}
		origin.Coordinates = &point
	}
	if origin.Location.IsEmpty() && origin.Coordinates == nil {
		writeError(w, http.StatusBadRequest, "a place or coordinates are required", "")
		return
	}

	radius := h.radiusKm
	if v, err := queryFloat(r, "radiusKm"); err != nil {
		writeDomainError(w, h.logger, err)
		return
	} else if v != nil && *v > 0 {
		radius = *v
	}
	limit, err := queryInt(r, "max", h.maxMarkets)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	markets, err := h.nearby.NearbyMarkets(r.Context(), origin, radius, limit)
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}
	if markets == nil {
		markets = []domain.NearbyMarket{}
	}
	writeJSON(w, http.StatusOK, NearbyResponseDTO{Markets: markets})
}
