package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/geo"
	"github.com/shivas758/agriguru/internal/matcher"
	"github.com/shivas758/agriguru/internal/source"
	"github.com/shivas758/agriguru/internal/storage"
)

// fuzzyMinSimilarity is the trigram floor for the stored-spelling fallback.
const fuzzyMinSimilarity = 0.4

func (p *Pipeline) validate(ctx context.Context, r *run) (Signal, error) {
	in := r.intent
	if !in.HasLocation() {
		r.result.Reason = ReasonNoLocation
		return SignalNoLocation, nil
	}

	coordsOnly := in.Location.IsEmpty()
	// A real place that is not a market (a village) searches around it;
	// the name stays on the origin for geocoding.
	realWithoutMarket := in.IsRealLocation && !in.HasMarket
	if coordsOnly || in.QueryType == domain.QueryNearbyMarkets ||
		(realWithoutMarket && in.QueryType != domain.QueryTrend) {
		return SignalNearby, nil
	}

	if in.Location.Market == "" || p.deps.Validator == nil {
		return p.route(r), nil
	}

	outcome, err := p.deps.Validator.Validate(ctx, in.Location.Market, in.Location.State, in.Location.District,
		matcher.Signal{IsRealLocation: in.IsRealLocation, Confidence: in.Confidence})
	if err != nil {
		p.logger.WithContext(ctx).Warn().Err(err).Str("market", in.Location.Market).
			Msg("market validation failed, using names as given")
		return p.route(r), nil
	}

	switch outcome.Kind {
	case matcher.KindExact, matcher.KindAutoCorrected:
		r.loc = outcome.Match.Location()
		r.result.AutoCorrected = outcome.Kind == matcher.KindAutoCorrected
		return p.route(r), nil
	}

	for _, c := range outcome.Candidates {
		r.result.Suggestions = append(r.result.Suggestions, domain.MarketSuggestion{Market: c.Market, Score: c.Score})
	}
	if outcome.Kind == matcher.KindSuggestions {
		r.result.Reason = ReasonAmbiguous
	} else {
		r.result.Reason = ReasonMarketNotFound
	}

	area := domain.Location{State: in.Location.State, District: in.Location.District}
	if p.deps.Nearby != nil && !area.IsEmpty() {
		near, err := p.deps.Nearby.NearbyMarkets(ctx, geo.Origin{Location: area, Coordinates: in.Coordinates},
			p.cfg.NearbyRadiusKm, p.cfg.NearbyMaxMarkets)
		if err != nil {
			p.logger.WithContext(ctx).Warn().Err(err).Msg("nearby candidates failed")
		}
		r.result.NearbyMarkets = inState(near, area.State)
	}
	return SignalSuggest, nil
}

// route picks the first data tier for a validated intent.
func (p *Pipeline) route(r *run) Signal {
	switch {
	case r.intent.QueryType == domain.QueryTrend:
		return SignalTrend
	case r.intent.WantsToday(r.today):
		return SignalToday
	default:
		return SignalHistorical
	}
}

func (p *Pipeline) cacheToday(ctx context.Context, r *run) (Signal, error) {
	for _, commodity := range r.commodities {
		recs, err := p.deps.Store.GetOnDate(ctx, r.filter(commodity), r.today)
		if err != nil {
			return SignalMiss, err
		}
		if p.accept(r, recs, r.loc, domain.TierCache, commodity) {
			return SignalFound, nil
		}
	}
	return SignalMiss, nil
}

func (p *Pipeline) liveToday(ctx context.Context, r *run) (Signal, error) {
	if p.deps.Source == nil {
		return SignalMiss, nil
	}
	for _, commodity := range r.commodities {
		recs, err := p.deps.Source.Fetch(ctx, source.Query{
			Location:  r.loc,
			Commodity: commodity,
			Date:      r.today,
		})
		if err != nil {
			return SignalMiss, err
		}
		recs = within(recs, r.loc)
		p.persist(ctx, recs)
		if p.accept(r, recs, r.loc, domain.TierLive, commodity) {
			return SignalFound, nil
		}
	}
	return SignalMiss, nil
}

func (p *Pipeline) cacheHistorical(ctx context.Context, r *run) (Signal, error) {
	before := r.intent.SearchBefore(r.today)
	for _, commodity := range r.commodities {
		recs, _, err := p.deps.Store.GetLastAvailable(ctx, r.filter(commodity), before)
		if err != nil {
			return SignalMiss, err
		}
		if p.accept(r, recs, r.loc, domain.TierHistoricalCache, commodity) {
			return SignalFound, nil
		}
	}

	if !r.result.AutoCorrected || r.loc.Market == "" {
		return SignalMiss, nil
	}
	// The corrected spelling may differ from what older rows stored.
	from := before.AddDate(0, 0, -p.cfg.HistoricalDays)
	for _, commodity := range r.commodities {
		matches, err := p.deps.Store.SearchFuzzy(ctx, storage.FuzzyQuery{
			Market:        r.loc.Market,
			Commodity:     commodity,
			State:         r.loc.State,
			District:      r.loc.District,
			From:          from,
			To:            before,
			MinSimilarity: fuzzyMinSimilarity,
		})
		if err != nil {
			return SignalMiss, err
		}
		area := domain.Location{State: r.loc.State, District: r.loc.District}
		if p.accept(r, fuzzyLatest(matches, area), area, domain.TierHistoricalCache, commodity) {
			return SignalFound, nil
		}
	}
	return SignalMiss, nil
}

func (p *Pipeline) externalHistorical(ctx context.Context, r *run) (Signal, error) {
	if p.deps.Source == nil {
		return SignalMiss, nil
	}
	from := r.intent.SearchBefore(r.today).AddDate(0, 0, -1)
	var lastErr error
	for _, commodity := range r.commodities {
		q := source.HistoricalQuery{Location: r.loc, From: from, Days: p.cfg.HistoricalDays}
		if commodity != "" {
			q.Commodities = []string{commodity}
		}
		res, err := p.deps.Source.SearchHistorical(ctx, q)
		if err != nil {
			lastErr = err
			if domain.IsConfiguration(err) || ctx.Err() != nil {
				return SignalMiss, err
			}
			continue
		}
		recs := within(res.Records, r.loc)
		p.persist(ctx, recs)
		if p.accept(r, recs, r.loc, domain.TierHistoricalExternal, commodity) {
			return SignalFound, nil
		}
	}
	return SignalMiss, lastErr
}

func (p *Pipeline) nearby(ctx context.Context, r *run) (Signal, error) {
	if p.deps.Nearby == nil {
		return SignalMiss, nil
	}
	origin := geo.Origin{Coordinates: r.intent.Coordinates, Location: r.loc}
	markets, err := p.deps.Nearby.NearbyMarkets(ctx, origin, p.cfg.NearbyRadiusKm, p.cfg.NearbyMaxMarkets)
	if err != nil {
		return SignalMiss, err
	}
	markets = inState(markets, r.loc.State)
	r.result.NearbyMarkets = markets

	limit := p.cfg.NearbyRecordCap
	var collected []domain.PriceRecord
	var used []string
	var usedCommodity string
	for _, m := range markets {
		if len(collected) >= limit || ctx.Err() != nil {
			break
		}
		for _, commodity := range r.commodities {
			recs := p.marketPrices(ctx, r, m.Market, commodity, limit-len(collected))
			if len(recs) == 0 {
				continue
			}
			collected = append(collected, recs...)
			used = append(used, m.Market.Market)
			if usedCommodity == "" {
				usedCommodity = commodity
			}
			break
		}
	}
	if len(collected) > limit {
		collected = collected[:limit]
	}
	for i := range collected {
		collected[i].Source = domain.TierNearby
	}
	if len(collected) == 0 {
		return SignalMiss, nil
	}

	r.result.SubstitutedMarkets = used
	r.setFound(collected, domain.TierNearby, usedCommodity)
	return SignalFound, nil
}

// marketPrices reads one nearby market from the store, then from the live
// source for today.
func (p *Pipeline) marketPrices(ctx context.Context, r *run, m domain.MarketEntry, commodity string, limit int) []domain.PriceRecord {
	loc := m.Location()
	f := storage.PriceFilter{Commodity: commodity, State: loc.State, District: loc.District, Market: loc.Market}
	recs, err := p.deps.Store.GetLatest(ctx, f, limit)
	if err != nil {
		p.logger.WithContext(ctx).Warn().Err(err).Str("market", loc.Market).Msg("nearby store read failed")
	}
	recs = p.shape(r, within(recs, loc))
	if len(recs) > 0 || p.deps.Source == nil {
		return recs
	}

	live, err := p.deps.Source.Fetch(ctx, source.Query{Location: loc, Commodity: commodity, Date: r.today, Limit: limit})
	if err != nil {
		p.logger.WithContext(ctx).Debug().Err(err).Str("market", loc.Market).Msg("nearby live fetch failed")
		return nil
	}
	live = within(live, loc)
	p.persist(ctx, live)
	return p.shape(r, live)
}

func (p *Pipeline) trend(ctx context.Context, r *run) (Signal, error) {
	until := r.today.AddDate(0, 0, 1)
	if r.intent.Date.Kind != domain.DateLatest {
		until = r.intent.SearchBefore(r.today)
	}
	for _, commodity := range r.commodities {
		series, err := p.deps.Store.GetTrend(ctx, storage.TrendQuery{
			Commodity: commodity,
			State:     r.loc.State,
			District:  r.loc.District,
			Market:    r.loc.Market,
			Days:      p.cfg.TrendDays,
			Until:     until,
		})
		if err != nil {
			return SignalMiss, err
		}
		var latest time.Time
		points := 0
		for _, s := range series {
			points += len(s.Points)
			for _, pt := range s.Points {
				if pt.Date.After(latest) {
					latest = pt.Date
				}
			}
		}
		if points == 0 {
			continue
		}
		r.result.Trend = series
		r.result.Tier = domain.TierHistoricalCache
		r.result.DataDate = latest
		r.result.CommodityUsed = commodity
		return SignalFound, nil
	}
	return SignalMiss, nil
}

// accept shapes the records inside loc and records them as the answer
// when any remain.
func (p *Pipeline) accept(r *run, recs []domain.PriceRecord, loc domain.Location, tier domain.SourceTier, commodity string) bool {
	recs = p.shape(r, within(recs, loc))
	if len(recs) == 0 {
		return false
	}
	for i := range recs {
		recs[i].Source = tier
	}
	r.setFound(recs, tier, commodity)
	return true
}

// shape deduplicates and caps records. Overviews keep one row per
// commodity per market.
func (p *Pipeline) shape(r *run, recs []domain.PriceRecord) []domain.PriceRecord {
	if len(recs) == 0 {
		return nil
	}
	key := storage.VarietyKey
	if r.overview {
		key = storage.CommodityKey
	}
	recs = storage.DedupeLatest(recs, key)
	if len(recs) > p.cfg.ResultLimit {
		recs = recs[:p.cfg.ResultLimit]
	}
	return recs
}

func (p *Pipeline) persist(ctx context.Context, recs []domain.PriceRecord) {
	if len(recs) == 0 {
		return
	}
	if err := p.deps.Store.Upsert(ctx, recs); err != nil {
		p.logger.WithContext(ctx).Warn().Err(err).Int("records", len(recs)).Msg("persisting fetched prices failed")
	}
}

func (r *run) setFound(recs []domain.PriceRecord, tier domain.SourceTier, commodity string) {
	r.result.Records = recs
	r.result.Tier = tier
	r.result.CommodityUsed = commodity
	r.result.DataDate = time.Time{}
	for _, rec := range recs {
		if rec.Date.After(r.result.DataDate) {
			r.result.DataDate = rec.Date
		}
	}
}

func (r *run) filter(commodity string) storage.PriceFilter {
	return storage.PriceFilter{
		Commodity: commodity,
		State:     r.loc.State,
		District:  r.loc.District,
		Market:    r.loc.Market,
	}
}

// inState keeps the markets of state; an empty state keeps all.
func inState(markets []domain.NearbyMarket, state string) []domain.NearbyMarket {
	if state == "" {
		return markets
	}
	var out []domain.NearbyMarket
	for _, m := range markets {
		if strings.EqualFold(m.Market.State, state) {
			out = append(out, m)
		}
	}
	return out
}

// within drops records outside loc.
func within(recs []domain.PriceRecord, loc domain.Location) []domain.PriceRecord {
	var out []domain.PriceRecord
	for _, rec := range recs {
		if loc.Contains(rec.Location()) {
			out = append(out, rec)
		}
	}
	return out
}

// fuzzyLatest keeps the rows of the newest day among fuzzy matches inside
// area.
func fuzzyLatest(matches []storage.PriceMatch, area domain.Location) []domain.PriceRecord {
	var recs []domain.PriceRecord
	var latest time.Time
	for _, m := range matches {
		if !area.Contains(m.Record.Location()) {
			continue
		}
		recs = append(recs, m.Record)
		if m.Record.Date.After(latest) {
			latest = m.Record.Date
		}
	}
	kept := recs[:0]
	for _, rec := range recs {
		if rec.Date.Equal(latest) {
			kept = append(kept, rec)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Market < kept[j].Market })
	return kept
}
