package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the terminal state of a resolution.
type Outcome string

const (
	OutcomeResolved    Outcome = "resolved"
	OutcomeSuggestions Outcome = "suggestions"
	OutcomeEmpty       Outcome = "empty"
)

// MarketSuggestion is a catalog entry offered as a spelling correction.
type MarketSuggestion struct {
	Market MarketEntry `json:"market"`
	Score  float64     `json:"score"`
}

// NearbyMarket is a catalog entry close to the requested place.
type NearbyMarket struct {
	Market     MarketEntry `json:"market"`
	DistanceKm *float64    `json:"distanceKm,omitempty"`
	Strategy   string      `json:"strategy"`
}

// TrendPoint aggregates one commodity's prices on one day.
type TrendPoint struct {
	Date     time.Time       `json:"date"`
	AvgModal decimal.Decimal `json:"avgModalPrice"`
	MinPrice decimal.Decimal `json:"minPrice"`
	MaxPrice decimal.Decimal `json:"maxPrice"`
	Samples  int             `json:"samples"`
}

// TrendSeries is the day-by-day history of a single commodity.
type TrendSeries struct {
	Commodity string       `json:"commodity"`
	Points    []TrendPoint `json:"points"`
}

// ResolutionResult is what the pipeline hands back to a host.
type ResolutionResult struct {
	ID                 string             `json:"id"`
	Outcome            Outcome            `json:"outcome"`
	Tier               SourceTier         `json:"tier,omitempty"`
	Records            []PriceRecord      `json:"records,omitempty"`
	Trend              []TrendSeries      `json:"trend,omitempty"`
	DataDate           time.Time          `json:"dataDate,omitempty"`
	RequestedLocation  Location           `json:"requestedLocation"`
	ResolvedLocation   Location           `json:"resolvedLocation"`
	AutoCorrected      bool               `json:"autoCorrected,omitempty"`
	CommodityUsed      string             `json:"commodityUsed,omitempty"`
	SubstitutedMarkets []string           `json:"substitutedMarkets,omitempty"`
	Suggestions        []MarketSuggestion `json:"suggestions,omitempty"`
	NearbyMarkets      []NearbyMarket     `json:"nearbyMarkets,omitempty"`
	Reason             string             `json:"reason,omitempty"`
	TimedOut           bool               `json:"timedOut,omitempty"`
}

// IsStale reports whether the data predates today.
func (r *ResolutionResult) IsStale(today time.Time) bool {
	return !r.DataDate.IsZero() && r.DataDate.Before(Day(today))
}
