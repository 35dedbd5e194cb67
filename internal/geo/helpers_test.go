package geo

import (
	"context"
	"strings"

	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/textsim"
)

// matcherCatalog adapts the fake catalog to matcher.Catalog.
type matcherCatalog struct{ *fakeCatalog }

func (m matcherCatalog) Candidates(_ context.Context, name string) ([]domain.MarketEntry, error) {
	var out []domain.MarketEntry
	for _, e := range m.entries {
		if textsim.SharesTrigram(e.Market, name) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m matcherCatalog) FindContaining(_ context.Context, name, state, _ string) ([]domain.MarketEntry, error) {
	var out []domain.MarketEntry
	for _, e := range m.entries {
		if strings.Contains(strings.ToLower(e.Market), strings.ToLower(name)) &&
			(state == "" || strings.EqualFold(e.State, state)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func defaultMatcherConfig() config.MatcherConfig {
	return config.DefaultConfig().Resolution.Matcher
}
