package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/geo"
	"github.com/shivas758/agriguru/internal/matcher"
	"github.com/shivas758/agriguru/internal/source"
	"github.com/shivas758/agriguru/internal/storage"
)

var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return today.AddDate(0, 0, -n) }

func rec(day time.Time, state, district, market, commodity, variety string, modal int64) domain.PriceRecord {
	return domain.PriceRecord{
		Date: day, State: state, District: district, Market: market,
		Commodity: commodity, Variety: variety,
		MinPrice:   decimal.NewFromInt(modal - 100),
		MaxPrice:   decimal.NewFromInt(modal + 100),
		ModalPrice: decimal.NewFromInt(modal),
	}
}

func ballari(day time.Time, commodity string, modal int64) domain.PriceRecord {
	return rec(day, "Karnataka", "Ballari", "Ballari", commodity, "Local", modal)
}

type fakeStore struct {
	mu        sync.Mutex
	records   []domain.PriceRecord
	trend     []domain.TrendSeries
	fuzzy     []storage.PriceMatch
	upserted  []domain.PriceRecord
	upsertErr error
	trendQ    storage.TrendQuery
	calls     map[string]int
}

func newFakeStore(records ...domain.PriceRecord) *fakeStore {
	return &fakeStore{records: records, calls: make(map[string]int)}
}

func (s *fakeStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeStore) matching(f storage.PriceFilter) []domain.PriceRecord {
	var out []domain.PriceRecord
	for _, r := range s.records {
		if f.Commodity != "" && !strings.EqualFold(f.Commodity, r.Commodity) {
			continue
		}
		if f.Location().Contains(r.Location()) {
			out = append(out, r)
		}
	}
	return out
}

func (s *fakeStore) GetLatest(_ context.Context, f storage.PriceFilter, limit int) ([]domain.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetLatest"]++
	rows := s.matching(f)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.After(rows[j].Date) })
	rows = storage.DedupeLatest(rows, storage.VarietyKey)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *fakeStore) GetOnDate(_ context.Context, f storage.PriceFilter, day time.Time) ([]domain.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetOnDate"]++
	var out []domain.PriceRecord
	for _, r := range s.matching(f) {
		if r.Date.Equal(day) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) GetLastAvailable(_ context.Context, f storage.PriceFilter, before time.Time) ([]domain.PriceRecord, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetLastAvailable"]++
	var last time.Time
	for _, r := range s.matching(f) {
		if r.Date.Before(before) && r.Date.After(last) {
			last = r.Date
		}
	}
	if last.IsZero() {
		return nil, time.Time{}, nil
	}
	var out []domain.PriceRecord
	for _, r := range s.matching(f) {
		if r.Date.Equal(last) {
			out = append(out, r)
		}
	}
	return out, last, nil
}

func (s *fakeStore) GetTrend(_ context.Context, q storage.TrendQuery) ([]domain.TrendSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetTrend"]++
	s.trendQ = q
	var out []domain.TrendSeries
	for _, series := range s.trend {
		if q.Commodity == "" || strings.EqualFold(q.Commodity, series.Commodity) {
			out = append(out, series)
		}
	}
	return out, nil
}

func (s *fakeStore) SearchFuzzy(_ context.Context, q storage.FuzzyQuery) ([]storage.PriceMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["SearchFuzzy"]++
	return s.fuzzy, nil
}

func (s *fakeStore) Upsert(_ context.Context, records []domain.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Upsert"]++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, records...)
	return nil
}

type fakeSource struct {
	mu        sync.Mutex
	fetch     func(ctx context.Context, q source.Query) ([]domain.PriceRecord, error)
	hist      func(ctx context.Context, q source.HistoricalQuery) (*source.HistoricalResult, error)
	fetches   []source.Query
	histories []source.HistoricalQuery
}

func (f *fakeSource) Fetch(ctx context.Context, q source.Query) ([]domain.PriceRecord, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, q)
	fn := f.fetch
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, q)
}

func (f *fakeSource) SearchHistorical(ctx context.Context, q source.HistoricalQuery) (*source.HistoricalResult, error) {
	f.mu.Lock()
	f.histories = append(f.histories, q)
	fn := f.hist
	f.mu.Unlock()
	if fn == nil {
		return &source.HistoricalResult{}, nil
	}
	return fn(ctx, q)
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func (f *fakeSource) historyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

type fakeValidator struct {
	outcome matcher.Outcome
	err     error
	calls   int
	signal  matcher.Signal
}

func (v *fakeValidator) Validate(_ context.Context, _, _, _ string, sig matcher.Signal) (matcher.Outcome, error) {
	v.calls++
	v.signal = sig
	return v.outcome, v.err
}

type fakeNearby struct {
	markets []domain.NearbyMarket
	err     error
	calls   int
	origin  geo.Origin
}

func (n *fakeNearby) NearbyMarkets(_ context.Context, origin geo.Origin, _ float64, max int) ([]domain.NearbyMarket, error) {
	n.calls++
	n.origin = origin
	out := n.markets
	if len(out) > max {
		out = out[:max]
	}
	return out, n.err
}

type fakeCommodities map[string]domain.CommodityEntry

func (f fakeCommodities) Lookup(_ context.Context, name string) (*domain.CommodityEntry, error) {
	for _, e := range f {
		if strings.EqualFold(e.Name, name) {
			return &e, nil
		}
		for _, a := range e.Aliases {
			if strings.EqualFold(a, name) {
				return &e, nil
			}
		}
	}
	return nil, storage.ErrNotFound
}

func market(name, district, state string) domain.MarketEntry {
	return domain.MarketEntry{Market: name, District: district, State: state, IsActive: true}
}
