// Package intent turns model output into a validated QueryIntent.
package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/observability"
)

// Years outside this range are treated as unknown.
const (
	minYear = 1990
	maxYear = 2100
)

var yearOnly = regexp.MustCompile(`^\d{4}$`)

// wire mirrors the JSON the extractor asks for. Pointers let null and
// missing fields fall back to defaults while a wrong type still fails.
type wire struct {
	Commodity *string `json:"commodity"`
	Location  *struct {
		State    *string `json:"state"`
		District *string `json:"district"`
		Market   *string `json:"market"`
	} `json:"location"`
	State          *string  `json:"state"`
	District       *string  `json:"district"`
	Market         *string  `json:"market"`
	Date           *string  `json:"date"`
	Year           *int     `json:"year"`
	IsHistorical   *bool    `json:"isHistoricalQuery"`
	QueryType      *string  `json:"queryType"`
	Confidence     *float64 `json:"confidence"`
	IsRealLocation *bool    `json:"isRealLocation"`
	HasMarket      *bool    `json:"hasMarket"`

	Coordinates *domain.Coordinates `json:"coordinates"`
}

// Parse decodes an intent object. Nulls and missing fields take defaults
// and values of the wrong type are validation errors. A date that is
// neither YYYY-MM-DD nor a bare year is unknown: it is logged and the
// intent asks for the latest data.
func Parse(ctx context.Context, raw []byte, logger *observability.Logger) (domain.QueryIntent, error) {
	const op = "intent.Parse"
	if logger == nil {
		logger = observability.NopLogger()
	}

	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.QueryIntent{}, domain.ValidationError(op, "malformed intent", err)
	}

	in := domain.QueryIntent{
		Commodity:      clean(w.Commodity),
		IsHistorical:   deref(w.IsHistorical),
		IsRealLocation: deref(w.IsRealLocation),
		HasMarket:      deref(w.HasMarket),
		Date:           domain.LatestDate(),
	}
	in.Location = domain.Location{State: clean(w.State), District: clean(w.District), Market: clean(w.Market)}
	if w.Location != nil {
		in.Location = domain.Location{
			State:    firstSet(clean(w.Location.State), in.Location.State),
			District: firstSet(clean(w.Location.District), in.Location.District),
			Market:   firstSet(clean(w.Location.Market), in.Location.Market),
		}
	}
	if w.HasMarket == nil {
		in.HasMarket = in.Location.Market != ""
	}

	if w.Coordinates != nil && *w.Coordinates != (domain.Coordinates{}) {
		if !w.Coordinates.Valid() {
			return domain.QueryIntent{}, domain.ValidationError(op, "coordinates out of range", nil)
		}
		point := *w.Coordinates
		in.Coordinates = &point
	}

	if w.Confidence != nil {
		in.Confidence = clamp(*w.Confidence)
	}

	in.Date = parseDate(clean(w.Date))
	if in.Date.Kind == domain.DateYear {
		in.IsHistorical = true
	}
	if in.Date.Kind == domain.DateLatest && !isLatest(clean(w.Date)) {
		logger.WithContext(ctx).Warn().Str("date", clean(w.Date)).Msg("unrecognised date, using latest")
	}
	if w.Year != nil && in.Date.Kind == domain.DateLatest {
		if *w.Year < minYear || *w.Year > maxYear {
			logger.WithContext(ctx).Warn().Int("year", *w.Year).Msg("year out of range, ignoring it")
		} else {
			in.Date = domain.InYear(*w.Year)
			in.IsHistorical = true
		}
	}

	in.QueryType = queryType(clean(w.QueryType), in)
	return in, nil
}

// parseDate reads an ISO day or a bare year. Anything else is latest.
func parseDate(s string) domain.DateSpec {
	if isLatest(s) {
		return domain.LatestDate()
	}
	if yearOnly.MatchString(s) {
		y, _ := strconv.Atoi(s)
		if y >= minYear && y <= maxYear {
			return domain.InYear(y)
		}
		return domain.LatestDate()
	}
	day, err := domain.ParseDay(s)
	if err != nil {
		return domain.LatestDate()
	}
	return domain.OnDay(day)
}

func isLatest(s string) bool {
	switch strings.ToLower(s) {
	case "", "latest", "today", "current", "now":
		return true
	}
	return false
}

func queryType(s string, in domain.QueryIntent) domain.QueryType {
	switch qt := domain.QueryType(strings.ToLower(s)); qt {
	case domain.QueryPriceInquiry, domain.QueryMarketOverview, domain.QueryTrend, domain.QueryNearbyMarkets:
		return qt
	}
	if in.Commodity == "" {
		return domain.QueryMarketOverview
	}
	return domain.QueryPriceInquiry
}

// clean trims a string and maps the placeholder values models emit for
// "unknown" to empty.
func clean(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "null", "none", "n/a", "unknown", "any", "all":
		return ""
	}
	return v
}

func deref(b *bool) bool {
	return b != nil && *b
}

func firstSet(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
