package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shivas758/agriguru/internal/domain"
)

const geocodePrompt = `You are a geography assistant for Indian agricultural markets (mandis).
Return the approximate WGS84 coordinates of the place the user names as
{"latitude": <number>, "longitude": <number>}.
If you do not know the place, return {"latitude": null, "longitude": null}.
Answer with JSON only.`

const nearbyPrompt = `You are a geography assistant for Indian agricultural markets (mandis).
List real APMC mandis close to the place the user names, nearest first:
first markets in the same district (0-50 km), then markets in adjacent
districts (50-100 km), then markets elsewhere in the same state (100-300 km).
Never list the place itself. Never invent market names.
Answer with JSON only:
{"markets": [{"market": "...", "district": "...", "state": "..."}]}`

// Advisor answers geographic questions with the model. Its answers are
// hints; callers verify them against the catalog.
type Advisor struct {
	llm Completer
}

// NewAdvisor creates an advisor over llm.
func NewAdvisor(llm Completer) *Advisor {
	return &Advisor{llm: llm}
}

// Geocode returns the model's coordinates for place, or nil when it does
// not know it.
func (a *Advisor) Geocode(ctx context.Context, place domain.Location) (*domain.Coordinates, error) {
	reply, err := a.llm.Complete(ctx, geocodePrompt, describe(place))
	if err != nil {
		return nil, err
	}

	var out struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(reply)), &out); err != nil {
		return nil, fmt.Errorf("decode geocode reply: %w", err)
	}
	if out.Latitude == nil || out.Longitude == nil {
		return nil, nil
	}
	c := domain.Coordinates{Latitude: *out.Latitude, Longitude: *out.Longitude}
	if !c.Valid() {
		return nil, nil
	}
	return &c, nil
}

// SuggestNearby asks for up to max markets near origin in proximity order.
func (a *Advisor) SuggestNearby(ctx context.Context, origin domain.Location, max int) ([]domain.Location, error) {
	user := fmt.Sprintf("%s\nList at most %d markets.", describe(origin), max)
	reply, err := a.llm.Complete(ctx, nearbyPrompt, user)
	if err != nil {
		return nil, err
	}

	var out struct {
		Markets []struct {
			Market   string `json:"market"`
			District string `json:"district"`
			State    string `json:"state"`
		} `json:"markets"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(reply)), &out); err != nil {
		return nil, fmt.Errorf("decode nearby reply: %w", err)
	}

	locs := make([]domain.Location, 0, len(out.Markets))
	for _, m := range out.Markets {
		name := strings.TrimSpace(m.Market)
		if name == "" || strings.EqualFold(name, origin.Market) {
			continue
		}
		locs = append(locs, domain.Location{
			Market:   name,
			District: strings.TrimSpace(m.District),
			State:    strings.TrimSpace(m.State),
		})
		if max > 0 && len(locs) == max {
			break
		}
	}
	return locs, nil
}

func describe(l domain.Location) string {
	var b strings.Builder
	if l.Market != "" {
		fmt.Fprintf(&b, "Market: %s\n", l.Market)
	}
	if l.District != "" {
		fmt.Fprintf(&b, "District: %s\n", l.District)
	}
	if l.State != "" {
		fmt.Fprintf(&b, "State: %s\n", l.State)
	}
	b.WriteString("Country: India")
	return b.String()
}
