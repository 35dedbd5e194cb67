package geo

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivas758/agriguru/internal/cache"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/matcher"
)

type fakeCatalog struct {
	entries []domain.MarketEntry
	err     error
}

func (f *fakeCatalog) FindByName(_ context.Context, name, state, district string) ([]domain.MarketEntry, error) {
	var out []domain.MarketEntry
	for _, e := range f.entries {
		if strings.EqualFold(e.Market, name) &&
			(state == "" || strings.EqualFold(e.State, state)) &&
			(district == "" || strings.EqualFold(e.District, district)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListWithCoordinates(_ context.Context, state string) ([]domain.MarketEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.MarketEntry
	for _, e := range f.entries {
		if e.HasCoordinates() && (state == "" || strings.EqualFold(e.State, state)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListInDistrict(_ context.Context, state, district string, limit int) ([]domain.MarketEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.MarketEntry
	for _, e := range f.entries {
		if strings.EqualFold(e.District, district) && (state == "" || strings.EqualFold(e.State, state)) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAdvisor struct {
	point       *domain.Coordinates
	suggestions []domain.Location
	err         error
	calls       atomic.Int32
}

func (f *fakeAdvisor) Geocode(context.Context, domain.Location) (*domain.Coordinates, error) {
	f.calls.Add(1)
	return f.point, f.err
}

func (f *fakeAdvisor) SuggestNearby(context.Context, domain.Location, int) ([]domain.Location, error) {
	f.calls.Add(1)
	return f.suggestions, f.err
}

func at(lat, lon float64) *domain.Coordinates {
	return &domain.Coordinates{Latitude: lat, Longitude: lon}
}

func entry(name, district, state string, c *domain.Coordinates) domain.MarketEntry {
	return domain.MarketEntry{Market: name, District: district, State: state, Coordinates: c, IsActive: true}
}

var kurnoolCatalog = []domain.MarketEntry{
	entry("Kurnool", "Kurnool", "Andhra Pradesh", at(15.8281, 78.0373)),
	entry("Adoni", "Kurnool", "Andhra Pradesh", at(15.6322, 77.2728)),
	entry("Nandyal", "Kurnool", "Andhra Pradesh", at(15.4786, 78.4836)),
	entry("Yemmiganur", "Kurnool", "Andhra Pradesh", nil),
	entry("Guntur", "Guntur", "Andhra Pradesh", at(16.3067, 80.4365)),
	entry("Raichur", "Raichur", "Karnataka", nil),
}

func newResolver(catalog *fakeCatalog, advisor Advisor) *Resolver {
	m := matcher.New(matcherCatalog{catalog}, defaultMatcherConfig(), nil)
	return NewResolver(catalog, m, advisor, nil)
}

func TestHaversine(t *testing.T) {
	d := Haversine(*at(15.8281, 78.0373), *at(15.6322, 77.2728))
	assert.InDelta(t, 85, d, 3)
	assert.Equal(t, 0.0, Haversine(*at(10, 10), *at(10, 10)))

	// Bengaluru to Hyderabad, either way round.
	blr, hyd := *at(12.9716, 77.5946), *at(17.3850, 78.4867)
	assert.InDelta(t, 498, Haversine(blr, hyd), 10)
	assert.InDelta(t, Haversine(blr, hyd), Haversine(hyd, blr), 1e-9)
}

func TestNearbyMarkets_FromCoordinates(t *testing.T) {
	r := newResolver(&fakeCatalog{entries: kurnoolCatalog}, nil)

	out, err := r.NearbyMarkets(context.Background(), Origin{Coordinates: at(15.8281, 78.0373)}, 100, 5)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "Kurnool", out[0].Market.Market)
	assert.Equal(t, "Nandyal", out[1].Market.Market)
	assert.Equal(t, "Adoni", out[2].Market.Market)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, *out[i-1].DistanceKm, *out[i].DistanceKm)
		assert.LessOrEqual(t, *out[i].DistanceKm, 100.0)
		assert.Equal(t, StrategyCoordinates, out[i].Strategy)
	}
}

func TestNearbyMarkets_NamedOriginExcludesItself(t *testing.T) {
	r := newResolver(&fakeCatalog{entries: kurnoolCatalog}, nil)

	origin := Origin{Location: domain.Location{State: "Andhra Pradesh", District: "Kurnool", Market: "Kurnool"}}
	out, err := r.NearbyMarkets(context.Background(), origin, 100, 5)
	require.NoError(t, err)

	var names []string
	for _, n := range out {
		names = append(names, n.Market.Market)
	}
	assert.NotContains(t, names, "Kurnool")
	assert.Equal(t, []string{"Nandyal", "Adoni", "Yemmiganur"}, names)
	assert.Equal(t, StrategyDistrict, out[2].Strategy)
	assert.Nil(t, out[2].DistanceKm)
}

func TestNearbyMarkets_CoordinateScanStaysInState(t *testing.T) {
	catalog := &fakeCatalog{entries: append([]domain.MarketEntry{
		entry("Siruguppa", "Ballari", "Karnataka", at(15.6300, 76.9000)),
	}, kurnoolCatalog...)}
	r := newResolver(catalog, nil)

	origin := Origin{Location: domain.Location{State: "Andhra Pradesh", District: "Kurnool", Market: "Adoni"}}
	out, err := r.NearbyMarkets(context.Background(), origin, 100, 5)
	require.NoError(t, err)
	for _, n := range out {
		assert.Equal(t, "Andhra Pradesh", n.Market.State, n.Market.Market)
	}

	// A bare point has no state to stay in.
	out, err = r.NearbyMarkets(context.Background(), Origin{Coordinates: at(15.6322, 77.2728)}, 100, 5)
	require.NoError(t, err)
	var names []string
	for _, n := range out {
		names = append(names, n.Market.Market)
	}
	assert.Contains(t, names, "Siruguppa")
}

func TestNearbyMarkets_AdvisorSuggestionsAreVerified(t *testing.T) {
	catalog := &fakeCatalog{entries: []domain.MarketEntry{
		entry("Pattikonda", "Kurnool", "Andhra Pradesh", nil),
		entry("Alur", "Kurnool", "Andhra Pradesh", nil),
		entry("Raichur", "Raichur", "Karnataka", nil),
	}}
	advisor := &fakeAdvisor{suggestions: []domain.Location{
		{Market: "Patikonda", District: "Kurnool", State: "Andhra Pradesh"},
		{Market: "Imaginarypet", District: "Kurnool", State: "Andhra Pradesh"},
		{Market: "Raichur", District: "Raichur", State: "Karnataka"},
		{Market: "Alur", District: "Kurnool"},
	}}
	r := newResolver(catalog, advisor)

	origin := Origin{Location: domain.Location{State: "Andhra Pradesh", District: "Kurnool", Market: "Chippagiri"}}
	out, err := r.NearbyMarkets(context.Background(), origin, 100, 5)
	require.NoError(t, err)

	var names []string
	for _, n := range out {
		names = append(names, n.Market.Market)
		assert.Equal(t, "Andhra Pradesh", n.Market.State)
	}
	assert.Equal(t, []string{"Pattikonda", "Alur"}, names)
	assert.Equal(t, StrategyAdvisor, out[0].Strategy)
}

func TestNearbyMarkets_AdvisorGeocodesUnknownOrigin(t *testing.T) {
	advisor := &fakeAdvisor{point: at(15.70, 77.60)}
	r := newResolver(&fakeCatalog{entries: kurnoolCatalog}, advisor)

	origin := Origin{Location: domain.Location{State: "Andhra Pradesh", District: "Kurnool", Market: "Chippagiri"}}
	out, err := r.NearbyMarkets(context.Background(), origin, 60, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Adoni", out[0].Market.Market)
	assert.Equal(t, StrategyCoordinates, out[0].Strategy)
}

func TestNearbyMarkets_TotalFailureIsEmpty(t *testing.T) {
	advisor := &fakeAdvisor{err: errors.New("llm offline")}
	r := newResolver(&fakeCatalog{entries: kurnoolCatalog, err: errors.New("db down")}, advisor)

	origin := Origin{Location: domain.Location{State: "Andhra Pradesh", District: "Kurnool", Market: "Chippagiri"}}
	out, err := r.NearbyMarkets(context.Background(), origin, 100, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCachingAdvisor(t *testing.T) {
	inner := &fakeAdvisor{
		point:       at(15.1, 76.9),
		suggestions: []domain.Location{{Market: "Siruguppa", District: "Ballari", State: "Karnataka"}},
	}
	mem := cache.NewMemoryClient(10)
	defer mem.Close()
	a := NewCachingAdvisor(inner, mem, time.Hour)
	ctx := context.Background()
	place := domain.Location{State: "Karnataka", District: "Ballari"}

	for i := 0; i < 3; i++ {
		c, err := a.Geocode(ctx, place)
		require.NoError(t, err)
		assert.InDelta(t, 15.1, c.Latitude, 1e-9)

		s, err := a.SuggestNearby(ctx, place, 4)
		require.NoError(t, err)
		assert.Len(t, s, 1)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}
