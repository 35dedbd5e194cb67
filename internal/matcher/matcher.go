// Package matcher validates user-supplied market names against the catalog
// and proposes spelling corrections.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/observability"
	"github.com/shivas758/agriguru/internal/textsim"
)

// Kind is the matcher's verdict.
type Kind string

const (
	KindExact         Kind = "exact"
	KindAutoCorrected Kind = "auto_corrected"
	KindSuggestions   Kind = "suggestions"
	KindNotFound      Kind = "not_found"
)

// Catalog is the slice of the market catalog the matcher needs.
type Catalog interface {
	FindByName(ctx context.Context, name, state, district string) ([]domain.MarketEntry, error)
	FindContaining(ctx context.Context, name, state, district string) ([]domain.MarketEntry, error)
	Candidates(ctx context.Context, name string) ([]domain.MarketEntry, error)
}

// Signal is an external opinion on whether the name is a real place,
// usually from the intent extractor.
type Signal struct {
	IsRealLocation bool
	Confidence     float64
}

// Candidate is a scored catalog entry.
type Candidate struct {
	Market domain.MarketEntry
	Score  float64
}

// Outcome is the result of Validate.
type Outcome struct {
	Kind       Kind
	Match      *domain.MarketEntry // set for exact and auto-corrected
	Score      float64
	Candidates []Candidate
}

// Accepted reports whether the outcome names a single usable market.
func (o Outcome) Accepted() bool {
	return o.Kind == KindExact || o.Kind == KindAutoCorrected
}

// Matcher scores names against the catalog.
type Matcher struct {
	catalog Catalog
	cfg     config.MatcherConfig
	logger  *observability.Logger
}

// New creates a matcher. Zero thresholds fall back to the defaults.
func New(catalog Catalog, cfg config.MatcherConfig, logger *observability.Logger) *Matcher {
	def := config.DefaultConfig().Resolution.Matcher
	if cfg.AutoAcceptThreshold <= 0 {
		cfg.AutoAcceptThreshold = def.AutoAcceptThreshold
	}
	if cfg.SuggestThreshold <= 0 {
		cfg.SuggestThreshold = def.SuggestThreshold
	}
	if cfg.SignalConfidence <= 0 {
		cfg.SignalConfidence = def.SignalConfidence
	}
	if cfg.AmbiguityMargin <= 0 {
		cfg.AmbiguityMargin = def.AmbiguityMargin
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = def.MaxSuggestions
	}
	if cfg.LocationBonus <= 0 {
		cfg.LocationBonus = def.LocationBonus
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Matcher{catalog: catalog, cfg: cfg, logger: logger.WithComponent("matcher")}
}

// Validate checks name against the catalog. state and district are hints
// that narrow exact matches and add a bonus to fuzzy scores.
func (m *Matcher) Validate(ctx context.Context, name, state, district string, sig Signal) (Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Outcome{Kind: KindNotFound}, nil
	}

	exact, err := m.catalog.FindByName(ctx, name, state, district)
	if err != nil {
		return Outcome{}, fmt.Errorf("exact market lookup: %w", err)
	}
	if len(exact) == 0 {
		exact, err = m.catalog.FindContaining(ctx, name, state, district)
		if err != nil {
			return Outcome{}, fmt.Errorf("substring market lookup: %w", err)
		}
		if len(exact) > 1 {
			return m.listed(m.score(name, state, district, exact)), nil
		}
	}
	if len(exact) == 0 && (state != "" || district != "") {
		// Hints may be wrong; an exact name elsewhere is still worth offering.
		exact, err = m.catalog.FindByName(ctx, name, "", "")
		if err != nil {
			return Outcome{}, fmt.Errorf("exact market lookup: %w", err)
		}
		if len(exact) > 0 {
			return m.suggest(m.score(name, state, district, exact)), nil
		}
	}
	switch {
	case len(exact) == 1:
		return Outcome{Kind: KindExact, Match: &exact[0], Score: 1}, nil
	case len(exact) > 1:
		return m.suggest(m.score(name, state, district, exact)), nil
	}

	pool, err := m.catalog.Candidates(ctx, name)
	if err != nil {
		return Outcome{}, fmt.Errorf("candidate lookup: %w", err)
	}
	scored := m.score(name, state, district, pool)
	if len(scored) == 0 || scored[0].Score < m.cfg.SuggestThreshold {
		return Outcome{Kind: KindNotFound}, nil
	}

	top := scored[0]
	if top.Score >= m.cfg.AutoAcceptThreshold && inState(top.Market, state) && m.unambiguous(scored, sig) {
		m.logger.Debug().
			Str("input", name).
			Str("match", top.Market.Market).
			Float64("score", top.Score).
			Msg("auto-corrected market name")
		match := top.Market
		return Outcome{Kind: KindAutoCorrected, Match: &match, Score: top.Score, Candidates: m.top(scored)}, nil
	}

	return m.suggest(scored), nil
}

// Score returns the similarity of name to entry plus the location bonus.
func (m *Matcher) Score(name, state, district string, entry domain.MarketEntry) float64 {
	score := textsim.Similarity(name, entry.Market)
	if state != "" && strings.EqualFold(strings.TrimSpace(state), entry.State) {
		score += m.cfg.LocationBonus
	}
	if district != "" && strings.EqualFold(strings.TrimSpace(district), entry.District) {
		score += m.cfg.LocationBonus
	}
	return score
}

func (m *Matcher) score(name, state, district string, entries []domain.MarketEntry) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, Candidate{Market: e, Score: m.Score(name, state, district, e)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Market.Location().String() < out[j].Market.Location().String()
	})
	return out
}

// unambiguous reports whether the top candidate can be taken without asking:
// it is alone above the threshold, clearly ahead of the runner-up, or the
// caller's signal vouches for the place.
func (m *Matcher) unambiguous(scored []Candidate, sig Signal) bool {
	if sig.IsRealLocation && sig.Confidence >= m.cfg.SignalConfidence {
		return true
	}
	if len(scored) == 1 || scored[1].Score < m.cfg.AutoAcceptThreshold {
		return true
	}
	return scored[0].Score-scored[1].Score >= m.cfg.AmbiguityMargin
}

// inState reports whether entry lies in the hinted state. Auto-correction
// never moves a query across states.
func inState(entry domain.MarketEntry, state string) bool {
	return state == "" || strings.EqualFold(strings.TrimSpace(state), entry.State)
}

func (m *Matcher) suggest(scored []Candidate) Outcome {
	top := m.top(scored)
	if len(top) == 0 {
		return Outcome{Kind: KindNotFound}
	}
	return Outcome{Kind: KindSuggestions, Score: top[0].Score, Candidates: top}
}

// listed offers every substring hit up to the suggestion cap. Their edit
// similarity is low by nature, so no threshold applies.
func (m *Matcher) listed(scored []Candidate) Outcome {
	if len(scored) > m.cfg.MaxSuggestions {
		scored = scored[:m.cfg.MaxSuggestions]
	}
	return Outcome{Kind: KindSuggestions, Score: scored[0].Score, Candidates: scored}
}

func (m *Matcher) top(scored []Candidate) []Candidate {
	var out []Candidate
	for _, c := range scored {
		if c.Score < m.cfg.SuggestThreshold || len(out) == m.cfg.MaxSuggestions {
			break
		}
		out = append(out, c)
	}
	return out
}
