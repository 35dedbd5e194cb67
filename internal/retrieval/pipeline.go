// Package retrieval resolves a price question to records by walking a
// cascade of price tiers: stored rows for today, the live source, stored
// history, an external back-search and finally nearby markets.
package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/geo"
	"github.com/shivas758/agriguru/internal/matcher"
	"github.com/shivas758/agriguru/internal/observability"
	"github.com/shivas758/agriguru/internal/source"
	"github.com/shivas758/agriguru/internal/storage"
)

// Reasons attached to results that did not resolve.
const (
	ReasonNoLocation     = "no_location"
	ReasonMarketNotFound = "market_not_found"
	ReasonAmbiguous      = "ambiguous_market"
	ReasonNoData         = "no_data"
	ReasonTimeout        = "timeout"
)

// PriceStore is the stored price history.
type PriceStore interface {
	GetLatest(ctx context.Context, f storage.PriceFilter, limit int) ([]domain.PriceRecord, error)
	GetOnDate(ctx context.Context, f storage.PriceFilter, day time.Time) ([]domain.PriceRecord, error)
	GetLastAvailable(ctx context.Context, f storage.PriceFilter, before time.Time) ([]domain.PriceRecord, time.Time, error)
	GetTrend(ctx context.Context, q storage.TrendQuery) ([]domain.TrendSeries, error)
	SearchFuzzy(ctx context.Context, q storage.FuzzyQuery) ([]storage.PriceMatch, error)
	Upsert(ctx context.Context, records []domain.PriceRecord) error
}

// PriceSource is the upstream price feed.
type PriceSource interface {
	Fetch(ctx context.Context, q source.Query) ([]domain.PriceRecord, error)
	SearchHistorical(ctx context.Context, q source.HistoricalQuery) (*source.HistoricalResult, error)
}

// MarketValidator checks market names against the catalog.
type MarketValidator interface {
	Validate(ctx context.Context, name, state, district string, sig matcher.Signal) (matcher.Outcome, error)
}

// NearbyFinder lists markets close to an origin.
type NearbyFinder interface {
	NearbyMarkets(ctx context.Context, origin geo.Origin, radiusKm float64, max int) ([]domain.NearbyMarket, error)
}

// CommodityCatalog resolves commodity aliases.
type CommodityCatalog interface {
	Lookup(ctx context.Context, name string) (*domain.CommodityEntry, error)
}

// Deps are the collaborators of a Pipeline. Only Store is required.
type Deps struct {
	Store       PriceStore
	Source      PriceSource
	Validator   MarketValidator
	Nearby      NearbyFinder
	Commodities CommodityCatalog
	Logger      *observability.Logger
	// Now overrides the wall clock.
	Now func() time.Time
}

// Pipeline runs resolutions. It is safe for concurrent use.
type Pipeline struct {
	deps    Deps
	cfg     config.ResolutionConfig
	loc     *time.Location
	now     func() time.Time
	logger  *observability.Logger
	metrics *Metrics
}

// NewPipeline creates a pipeline. A missing store or an unknown timezone
// is a configuration error.
func NewPipeline(deps Deps, cfg config.ResolutionConfig) (*Pipeline, error) {
	const op = "retrieval.NewPipeline"
	if deps.Store == nil {
		return nil, domain.ConfigError(op, "price store is required", nil)
	}

	def := config.DefaultConfig().Resolution
	if cfg.HistoricalDays <= 0 {
		cfg.HistoricalDays = def.HistoricalDays
	}
	if cfg.NearbyRadiusKm <= 0 {
		cfg.NearbyRadiusKm = def.NearbyRadiusKm
	}
	if cfg.NearbyMaxMarkets <= 0 {
		cfg.NearbyMaxMarkets = def.NearbyMaxMarkets
	}
	if cfg.NearbyRecordCap <= 0 {
		cfg.NearbyRecordCap = def.NearbyRecordCap
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = def.ResultLimit
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = def.OverallTimeout
	}
	if cfg.TrendDays <= 0 {
		cfg.TrendDays = def.TrendDays
	}
	if cfg.Timezone == "" {
		cfg.Timezone = def.Timezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, domain.ConfigError(op, "unknown timezone "+cfg.Timezone, err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		deps:    deps,
		cfg:     cfg,
		loc:     loc,
		now:     now,
		logger:  logger.WithComponent("pipeline"),
		metrics: NewMetrics(),
	}, nil
}

// Metrics returns the pipeline's counters.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Today returns the current calendar day in the configured timezone.
func (p *Pipeline) Today() time.Time {
	return domain.Day(p.now().In(p.loc))
}

// run is the mutable state of one resolution.
type run struct {
	intent      domain.QueryIntent
	today       time.Time
	loc         domain.Location
	commodities []string
	overview    bool
	result      *domain.ResolutionResult
}

// Resolve walks the cascade for in. Only configuration errors are
// returned; if ctx is cancelled the error is domain.ErrCancelled and the
// result is nil. When the overall deadline passes the result is Empty with
// TimedOut set.
func (p *Pipeline) Resolve(ctx context.Context, in domain.QueryIntent) (*domain.ResolutionResult, error) {
	if ctx.Err() != nil {
		return nil, domain.ErrCancelled
	}
	start := time.Now()
	logger := p.logger.WithContext(ctx)

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.OverallTimeout)
	defer cancel()

	r := p.newRun(runCtx, in)
	state := StateValidateLocation
	for !state.Terminal() {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		if runCtx.Err() != nil {
			logger.Warn().Str("state", string(state)).Msg("resolution deadline reached")
			r.result.TimedOut = true
			r.result.Reason = ReasonTimeout
			r.result.Records = nil
			r.result.Trend = nil
			state = StateEmpty
			break
		}

		sig, err := p.step(runCtx, r, state)
		if err != nil {
			if domain.IsConfiguration(err) {
				return nil, err
			}
			logger.Warn().Err(err).Str("state", string(state)).Msg("tier failed, degrading")
			sig = SignalMiss
		}

		next := Next(state, sig)
		logger.Debug().
			Str("state", string(state)).
			Str("signal", string(sig)).
			Str("next", string(next)).
			Str("tier", string(r.result.Tier)).
			Msg("transition")
		state = next
	}

	if ctx.Err() != nil {
		return nil, domain.ErrCancelled
	}

	p.finish(r, state)
	latency := time.Since(start)
	p.metrics.Record(r.result, latency)

	logger.Info().
		Str("resolution_id", r.result.ID).
		Str("outcome", string(r.result.Outcome)).
		Str("tier", string(r.result.Tier)).
		Int("records", len(r.result.Records)).
		Day("data_date", r.result.DataDate).
		Int64("latency_ms", latency.Milliseconds()).
		Msg("resolution complete")
	return r.result, nil
}

func (p *Pipeline) newRun(ctx context.Context, in domain.QueryIntent) *run {
	r := &run{
		intent:   in,
		today:    p.Today(),
		loc:      in.Location,
		overview: in.IsOverview(),
		result: &domain.ResolutionResult{
			ID:                uuid.NewString(),
			Outcome:           domain.OutcomeEmpty,
			RequestedLocation: in.Location,
		},
	}
	if r.overview {
		r.commodities = []string{""}
	} else {
		r.commodities = p.expandCommodity(ctx, in.Commodity)
	}
	return r
}

func (p *Pipeline) step(ctx context.Context, r *run, s State) (Signal, error) {
	switch s {
	case StateValidateLocation:
		return p.validate(ctx, r)
	case StateCacheToday:
		return p.cacheToday(ctx, r)
	case StateLiveToday:
		return p.liveToday(ctx, r)
	case StateCacheHistorical:
		return p.cacheHistorical(ctx, r)
	case StateExternalHistorical:
		return p.externalHistorical(ctx, r)
	case StateNearby:
		return p.nearby(ctx, r)
	case StateTrend:
		return p.trend(ctx, r)
	case StateExhausted:
		if r.result.Reason == "" {
			r.result.Reason = ReasonNoData
		}
		return SignalMiss, nil
	default:
		return "", errors.New("unknown state " + string(s))
	}
}

// finish fills the outcome fields from the terminal state.
func (p *Pipeline) finish(r *run, s State) {
	res := r.result
	res.ResolvedLocation = r.loc
	switch s {
	case StateResolved:
		res.Outcome = domain.OutcomeResolved
		res.Reason = ""
	case StateSuggestions:
		if len(res.Suggestions) > 0 || len(res.NearbyMarkets) > 0 {
			res.Outcome = domain.OutcomeSuggestions
		} else {
			res.Outcome = domain.OutcomeEmpty
		}
	default:
		res.Outcome = domain.OutcomeEmpty
		res.Tier = ""
		if res.Reason == "" {
			res.Reason = ReasonNoData
		}
	}
}
