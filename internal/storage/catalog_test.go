package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivas758/agriguru/internal/domain"
)

func seedMarkets(t *testing.T, repo *MarketRepository) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), []domain.MarketEntry{
		{Market: "Ballari", District: "Ballari", State: "Karnataka", IsActive: true,
			Coordinates: &domain.Coordinates{Latitude: 15.1394, Longitude: 76.9214}},
		{Market: "Siruguppa", District: "Ballari", State: "Karnataka", IsActive: true},
		{Market: "Kallur", District: "Kurnool", State: "Andhra Pradesh", IsActive: true},
		{Market: "Adoni", District: "Kurnool", State: "Andhra Pradesh", IsActive: true,
			Coordinates: &domain.Coordinates{Latitude: 15.6322, Longitude: 77.2728}},
		{Market: "Old Yard", District: "Kurnool", State: "Andhra Pradesh", IsActive: false},
	}))
}

func TestMarketRepository_FindAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketRepository(db)
	ctx := context.Background()
	seedMarkets(t, repo)

	found, err := repo.FindByName(ctx, "ballari", "", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].HasCoordinates())

	found, err = repo.FindByName(ctx, "Ballari", "Andhra Pradesh", "")
	require.NoError(t, err)
	assert.Empty(t, found)

	inDistrict, err := repo.ListInDistrict(ctx, "Andhra Pradesh", "kurnool", 10)
	require.NoError(t, err)
	require.Len(t, inDistrict, 2, "inactive markets are excluded")
	assert.Equal(t, "Adoni", inDistrict[0].Market)

	withCoords, err := repo.ListWithCoordinates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, withCoords, 2)

	m, err := repo.Get(ctx, "karnataka", "ballari", "siruguppa")
	require.NoError(t, err)
	assert.Equal(t, "Siruguppa", m.Market)

	_, err = repo.Get(ctx, "Karnataka", "Ballari", "Nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarketRepository_FindContaining(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, []domain.MarketEntry{
		{Market: "Hubli (Amaragol)", District: "Dharwad", State: "Karnataka", IsActive: true},
		{Market: "Binny Mill (F&V), Bangalore", District: "Bangalore", State: "Karnataka", IsActive: true},
		{Market: "Hubli", District: "Hooghly", State: "West Bengal", IsActive: true},
		{Market: "Hubli Old", District: "Dharwad", State: "Karnataka", IsActive: false},
	}))

	found, err := repo.FindContaining(ctx, "hubli", "Karnataka", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Hubli (Amaragol)", found[0].Market)

	found, err = repo.FindContaining(ctx, "HUBLI", "", "")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = repo.FindContaining(ctx, "Bangalore", "karnataka", "bangalore")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Binny Mill (F&V), Bangalore", found[0].Market)

	found, err = repo.FindContaining(ctx, "%", "", "")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = repo.FindContaining(ctx, "b_i", "", "")
	require.NoError(t, err)
	assert.Empty(t, found, "wildcards are literal")

	found, err = repo.FindContaining(ctx, "i (", "", "")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestMarketRepository_CandidatesAreBounded(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketRepository(db)
	ctx := context.Background()
	seedMarkets(t, repo)

	cands, err := repo.Candidates(ctx, "Bellary")
	require.NoError(t, err)
	names := marketNames(cands)
	assert.Contains(t, names, "Ballari")
	assert.NotContains(t, names, "Adoni")

	cands, err = repo.Candidates(ctx, "Alur")
	require.NoError(t, err)
	assert.Contains(t, marketNames(cands), "Kallur")
}

func TestMarketRepository_UpsertKeepsCoordinates(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketRepository(db)
	ctx := context.Background()
	seedMarkets(t, repo)

	require.NoError(t, repo.Upsert(ctx, []domain.MarketEntry{
		{Market: "Ballari", District: "Ballari", State: "Karnataka", IsActive: true},
	}))
	m, err := repo.Get(ctx, "Karnataka", "Ballari", "Ballari")
	require.NoError(t, err)
	require.NotNil(t, m.Coordinates)
	assert.InDelta(t, 15.1394, m.Coordinates.Latitude, 1e-6)
}

func TestMarketRepository_RefreshFromPrices(t *testing.T) {
	db := newTestDB(t)
	markets := NewMarketRepository(db)
	prices := NewPriceRepository(db)
	ctx := context.Background()
	seedMarkets(t, markets)

	require.NoError(t, prices.Upsert(ctx, []domain.PriceRecord{
		rec("2025-03-01", "Andhra Pradesh", "Kurnool", "Adoni", "Cotton", "", 7000),
		rec("2025-03-01", "Andhra Pradesh", "Kurnool", "Yemmiganur", "Cotton", "", 7000),
	}))

	added, err := markets.RefreshFromPrices(ctx, day("2025-02-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)

	n, err := markets.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestCommodityRepository_LookupByAlias(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommodityRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.CommodityEntry{
		Name: "Paddy(Dhan)(Common)", Aliases: []string{"Paddy", "Rice"},
	}))

	entry, err := repo.Lookup(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, "Paddy(Dhan)(Common)", entry.Name)
	assert.Equal(t, []string{"Paddy", "Rice"}, entry.Aliases)

	_, err = repo.Lookup(ctx, "Saffron")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Paddy(Dhan)(Common)"}, names)
}

func marketNames(ms []domain.MarketEntry) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Market)
	}
	return out
}
