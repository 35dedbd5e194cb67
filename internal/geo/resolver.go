package geo

import (
	"context"
	"sort"
	"strings"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/matcher"
	"github.com/shivas758/agriguru/internal/observability"
)

// Strategy names recorded on each result.
const (
	StrategyCoordinates = "coordinates"
	StrategyAdvisor     = "llm"
	StrategyDistrict    = "district"
)

// advisorMaxKm bounds advisor suggestions whose distance can be measured:
// the widest proximity band it is asked for.
const advisorMaxKm = 300.0

// Catalog is the slice of the market catalog the resolver reads.
type Catalog interface {
	FindByName(ctx context.Context, name, state, district string) ([]domain.MarketEntry, error)
	ListWithCoordinates(ctx context.Context, state string) ([]domain.MarketEntry, error)
	ListInDistrict(ctx context.Context, state, district string, limit int) ([]domain.MarketEntry, error)
}

// Validator checks advisor-suggested names against the catalog.
type Validator interface {
	Validate(ctx context.Context, name, state, district string, sig matcher.Signal) (matcher.Outcome, error)
}

// Advisor is an external source of geographic knowledge, usually an LLM.
type Advisor interface {
	Geocode(ctx context.Context, place domain.Location) (*domain.Coordinates, error)
	SuggestNearby(ctx context.Context, origin domain.Location, max int) ([]domain.Location, error)
}

// Origin is where the search starts: a point, a named place, or both.
type Origin struct {
	Coordinates *domain.Coordinates
	Location    domain.Location
}

// Resolver finds markets near an origin.
type Resolver struct {
	catalog   Catalog
	validator Validator
	advisor   Advisor
	logger    *observability.Logger
}

// NewResolver creates a resolver. advisor may be nil.
func NewResolver(catalog Catalog, validator Validator, advisor Advisor, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{
		catalog:   catalog,
		validator: validator,
		advisor:   advisor,
		logger:    logger.WithComponent("geo"),
	}
}

// NearbyMarkets returns up to max markets near origin, nearest strategies
// first. Failures of individual strategies are logged and skipped; if all
// of them fail the result is empty with a nil error.
func (r *Resolver) NearbyMarkets(ctx context.Context, origin Origin, radiusKm float64, max int) ([]domain.NearbyMarket, error) {
	if max <= 0 {
		max = 8
	}
	acc := newAccumulator(origin.Location, max)
	logger := r.logger.WithContext(ctx)

	point := r.originPoint(ctx, origin)
	if point != nil {
		near, err := r.byDistance(ctx, *point, origin.Location.State, radiusKm)
		if err != nil {
			logger.Warn().Err(err).Msg("coordinate scan failed")
		}
		for _, n := range near {
			acc.add(n)
		}
	}

	if !acc.full() && r.advisor != nil && r.validator != nil && !origin.Location.IsEmpty() {
		if err := r.fromAdvisor(ctx, origin.Location, point, acc); err != nil {
			logger.Warn().Err(err).Msg("advisor nearby lookup failed")
		}
	}

	if !acc.full() && origin.Location.District != "" {
		entries, err := r.catalog.ListInDistrict(ctx, origin.Location.State, origin.Location.District, max*2)
		if err != nil {
			logger.Warn().Err(err).Msg("district scan failed")
		}
		for _, e := range entries {
			acc.add(domain.NearbyMarket{Market: e, DistanceKm: distanceFrom(point, e), Strategy: StrategyDistrict})
		}
	}

	logger.Debug().
		Str("origin", origin.Location.String()).
		Int("found", len(acc.out)).
		Msg("nearby markets resolved")
	return acc.out, nil
}

// originPoint finds coordinates for the origin: given ones, the catalog
// entry's, or the advisor's geocode.
func (r *Resolver) originPoint(ctx context.Context, origin Origin) *domain.Coordinates {
	if origin.Coordinates != nil && origin.Coordinates.Valid() {
		return origin.Coordinates
	}
	loc := origin.Location
	if loc.Market != "" {
		entries, err := r.catalog.FindByName(ctx, loc.Market, loc.State, loc.District)
		if err != nil {
			r.logger.Warn().Err(err).Msg("origin lookup failed")
		}
		for _, e := range entries {
			if e.HasCoordinates() {
				return e.Coordinates
			}
		}
	}
	if r.advisor != nil && !loc.IsEmpty() {
		c, err := r.advisor.Geocode(ctx, loc)
		if err != nil {
			r.logger.Warn().Err(err).Str("place", loc.String()).Msg("geocode failed")
			return nil
		}
		if c != nil && c.Valid() {
			return c
		}
	}
	return nil
}

// byDistance scans catalog markets within radiusKm of point. A known state
// confines the scan; a bare point searches every state.
func (r *Resolver) byDistance(ctx context.Context, point domain.Coordinates, state string, radiusKm float64) ([]domain.NearbyMarket, error) {
	entries, err := r.catalog.ListWithCoordinates(ctx, state)
	if err != nil {
		return nil, err
	}
	var out []domain.NearbyMarket
	for _, e := range entries {
		d := Haversine(point, *e.Coordinates)
		if d > radiusKm {
			continue
		}
		out = append(out, domain.NearbyMarket{Market: e, DistanceKm: &d, Strategy: StrategyCoordinates})
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].DistanceKm < *out[j].DistanceKm })
	return out, nil
}

// fromAdvisor asks the advisor for nearby market names and keeps only the
// ones the catalog confirms inside the origin's state.
func (r *Resolver) fromAdvisor(ctx context.Context, origin domain.Location, point *domain.Coordinates, acc *accumulator) error {
	suggestions, err := r.advisor.SuggestNearby(ctx, origin, acc.max*2)
	if err != nil {
		return err
	}
	for _, s := range suggestions {
		if acc.full() {
			break
		}
		state := s.State
		if state == "" {
			state = origin.State
		}
		outcome, err := r.validator.Validate(ctx, s.Market, state, s.District, matcher.Signal{})
		if err != nil {
			r.logger.Debug().Err(err).Str("market", s.Market).Msg("advisor suggestion not verified")
			continue
		}
		if !outcome.Accepted() || outcome.Match == nil {
			r.logger.Debug().Str("market", s.Market).Msg("dropping unverified advisor suggestion")
			continue
		}
		match := *outcome.Match
		if origin.State != "" && !strings.EqualFold(match.State, origin.State) {
			continue
		}
		dist := distanceFrom(point, match)
		if dist != nil && *dist > advisorMaxKm {
			continue
		}
		acc.add(domain.NearbyMarket{Market: match, DistanceKm: dist, Strategy: StrategyAdvisor})
	}
	return nil
}

func distanceFrom(point *domain.Coordinates, e domain.MarketEntry) *float64 {
	if point == nil || !e.HasCoordinates() {
		return nil
	}
	d := Haversine(*point, *e.Coordinates)
	return &d
}

type accumulator struct {
	origin domain.Location
	max    int
	seen   map[string]bool
	out    []domain.NearbyMarket
}

func newAccumulator(origin domain.Location, max int) *accumulator {
	return &accumulator{origin: origin, max: max, seen: make(map[string]bool)}
}

func (a *accumulator) add(n domain.NearbyMarket) {
	if a.full() {
		return
	}
	if a.origin.Market != "" && strings.EqualFold(n.Market.Market, a.origin.Market) &&
		(a.origin.District == "" || strings.EqualFold(n.Market.District, a.origin.District)) {
		return
	}
	key := domain.Fold(n.Market.State) + "|" + domain.Fold(n.Market.District) + "|" + domain.Fold(n.Market.Market)
	if a.seen[key] {
		return
	}
	a.seen[key] = true
	a.out = append(a.out, n)
}

func (a *accumulator) full() bool {
	return len(a.out) >= a.max
}
