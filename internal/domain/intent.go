package domain

import (
	"time"
)

// QueryType is what the user is asking for.
type QueryType string

const (
	QueryPriceInquiry   QueryType = "price_inquiry"
	QueryMarketOverview QueryType = "market_overview"
	QueryTrend          QueryType = "trend"
	QueryNearbyMarkets  QueryType = "nearby_markets"
)

// DateKind says how the requested date should be interpreted.
type DateKind string

const (
	DateLatest   DateKind = "latest"
	DateSpecific DateKind = "date"
	DateYear     DateKind = "year"
)

// DateSpec is the requested date: latest, a calendar day, or a year.
type DateSpec struct {
	Kind DateKind  `json:"kind"`
	Day  time.Time `json:"day,omitempty"`
	Year int       `json:"year,omitempty"`
}

// LatestDate asks for the most recent data available.
func LatestDate() DateSpec { return DateSpec{Kind: DateLatest} }

// OnDay requests a specific calendar day.
func OnDay(t time.Time) DateSpec { return DateSpec{Kind: DateSpecific, Day: Day(t)} }

// InYear requests the latest data within a year.
func InYear(y int) DateSpec { return DateSpec{Kind: DateYear, Year: y} }

// QueryIntent is the structured form of a user question.
type QueryIntent struct {
	Commodity      string       `json:"commodity,omitempty"`
	Location       Location     `json:"location"`
	Date           DateSpec     `json:"date"`
	IsHistorical   bool         `json:"isHistoricalQuery"`
	QueryType      QueryType    `json:"queryType"`
	Confidence     float64      `json:"confidence"`
	IsRealLocation bool         `json:"isRealLocation"`
	HasMarket      bool         `json:"hasMarket"`
	Coordinates    *Coordinates `json:"coordinates,omitempty"`
}

// HasLocation reports whether the intent names a place or carries a position.
func (q QueryIntent) HasLocation() bool {
	return !q.Location.IsEmpty() || (q.Coordinates != nil && q.Coordinates.Valid())
}

// IsOverview reports whether the user asked about all commodities.
func (q QueryIntent) IsOverview() bool {
	return q.Commodity == "" || q.QueryType == QueryMarketOverview
}

// WantsToday reports whether the query should try today's tiers first.
func (q QueryIntent) WantsToday(today time.Time) bool {
	switch q.Date.Kind {
	case DateSpecific:
		return Day(q.Date.Day).Equal(Day(today)) && !q.IsHistorical
	case DateYear:
		return false
	default:
		return !q.IsHistorical
	}
}

// SearchBefore returns the exclusive upper bound for historical lookups.
func (q QueryIntent) SearchBefore(today time.Time) time.Time {
	switch q.Date.Kind {
	case DateSpecific:
		d := Day(q.Date.Day)
		if d.After(Day(today)) {
			return Day(today)
		}
		return d.AddDate(0, 0, 1)
	case DateYear:
		end := time.Date(q.Date.Year+1, 1, 1, 0, 0, 0, 0, time.UTC)
		if end.After(Day(today)) {
			return Day(today)
		}
		return end
	default:
		return Day(today)
	}
}
