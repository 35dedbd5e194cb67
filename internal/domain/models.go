// Package domain holds the types shared by every layer of the price
// resolution service.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-day format used across storage and APIs.
const DateLayout = "2006-01-02"

// SourceTier tags where a set of records came from.
type SourceTier string

const (
	TierCache              SourceTier = "cache"
	TierLive               SourceTier = "live"
	TierHistoricalCache    SourceTier = "historical-cache"
	TierHistoricalExternal SourceTier = "historical-external"
	TierNearby             SourceTier = "nearby"
)

// PriceRecord is one market's price for one commodity variety on one day.
// Prices are INR per quintal.
type PriceRecord struct {
	Date            time.Time           `json:"date"`
	State           string              `json:"state"`
	District        string              `json:"district"`
	Market          string              `json:"market"`
	Commodity       string              `json:"commodity"`
	Variety         string              `json:"variety,omitempty"`
	Grade           string              `json:"grade,omitempty"`
	MinPrice        decimal.Decimal     `json:"minPrice"`
	MaxPrice        decimal.Decimal     `json:"maxPrice"`
	ModalPrice      decimal.Decimal     `json:"modalPrice"`
	ArrivalQuantity decimal.NullDecimal `json:"arrivalQuantity"`
	Source          SourceTier          `json:"source,omitempty"`
}

// Key returns the natural key (date, state, district, market, commodity,
// variety), case-folded.
func (r PriceRecord) Key() string {
	return strings.Join([]string{
		r.Date.Format(DateLayout),
		Fold(r.State), Fold(r.District), Fold(r.Market),
		Fold(r.Commodity), Fold(r.Variety),
	}, "|")
}

// Location returns the place the record was observed.
func (r PriceRecord) Location() Location {
	return Location{State: r.State, District: r.District, Market: r.Market}
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the point is on the globe and not the null island.
func (c Coordinates) Valid() bool {
	if c.Latitude == 0 && c.Longitude == 0 {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// MarketEntry is one mandi in the catalog.
type MarketEntry struct {
	Market      string       `json:"market"`
	District    string       `json:"district"`
	State       string       `json:"state"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	IsActive    bool         `json:"isActive"`
}

// HasCoordinates reports whether the entry can take part in distance scans.
func (m MarketEntry) HasCoordinates() bool {
	return m.Coordinates != nil && m.Coordinates.Valid()
}

// Location returns the entry's place.
func (m MarketEntry) Location() Location {
	return Location{State: m.State, District: m.District, Market: m.Market}
}

// CommodityEntry is a canonical commodity name with its known aliases.
type CommodityEntry struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// Location is a (possibly partial) state/district/market triple.
type Location struct {
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
	Market   string `json:"market,omitempty"`
}

// IsEmpty reports whether no part of the location is known.
func (l Location) IsEmpty() bool {
	return l.State == "" && l.District == "" && l.Market == ""
}

// Contains reports whether rec lies within l. Empty parts match anything.
func (l Location) Contains(rec Location) bool {
	if l.Market != "" && !strings.EqualFold(l.Market, rec.Market) {
		return false
	}
	if l.District != "" && !strings.EqualFold(l.District, rec.District) {
		return false
	}
	if l.State != "" && !strings.EqualFold(l.State, rec.State) {
		return false
	}
	return true
}

// String renders the location for logs and messages.
func (l Location) String() string {
	var parts []string
	for _, p := range []string{l.Market, l.District, l.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Fold lowercases and trims a name for comparisons.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Day truncates t to its calendar day in t's location and returns it as
// UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}
