package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivas758/agriguru/internal/cache"
	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
)

func testConfig(url string) config.SourceConfig {
	cfg := config.DefaultConfig().Source
	cfg.BaseURL = url
	cfg.APIKey = "test-key"
	cfg.MaxPages = 5
	return cfg
}

func row(date, market, commodity string, modal int) map[string]interface{} {
	return map[string]interface{}{
		"state":        "Karnataka",
		"district":     "Ballari",
		"market":       market,
		"commodity":    commodity,
		"variety":      "Local",
		"arrival_date": date,
		"min_price":    strconv.Itoa(modal - 100),
		"max_price":    modal + 100,
		"modal_price":  strconv.Itoa(modal),
	}
}

func writeRecords(w http.ResponseWriter, records []map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"total":   len(records),
		"records": records,
	})
}

func TestNew_RequiresKeyAndURL(t *testing.T) {
	_, err := New(config.SourceConfig{BaseURL: "http://x"})
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))

	_, err = New(config.SourceConfig{APIKey: "k"})
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
}

func TestFetch_ParsesRowsAndSendsFilters(t *testing.T) {
	var got http.Header
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header
		query = r.URL.Query()
		writeRecords(w, []map[string]interface{}{
			row("09/03/2025", "Ballari", "Onion", 1800),
			{
				"State": "Karnataka", "District": "Ballari", "Market": "Siruguppa",
				"Commodity": "Onion", "Arrival_Date": "09/03/2025",
				"Min_Price": "1,500", "Max_Price": "1,900", "Modal_Price": "1,700",
				"Arrivals_in_Qtl": 42,
			},
			{"market": "Broken", "commodity": "Onion", "arrival_date": "yesterday", "modal_price": "10"},
		})
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	recs, err := c.Fetch(context.Background(), Query{
		Location:  domain.Location{State: "karnataka", District: "bellary ", Market: "ballari"},
		Commodity: "onion",
		Date:      time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "test-key", query["api-key"][0])
	assert.Equal(t, "Karnataka", query["filters[state.keyword]"][0])
	assert.Equal(t, "Bellary", query["filters[district]"][0])
	assert.Equal(t, "Ballari", query["filters[market]"][0])
	assert.Equal(t, "Onion", query["filters[commodity]"][0])
	assert.Equal(t, "09/03/2025", query["filters[arrival_date]"][0])

	assert.Equal(t, "2025-03-09", recs[0].Date.Format(domain.DateLayout))
	assert.Equal(t, "1800", recs[0].ModalPrice.String())
	assert.Equal(t, "1900", recs[0].MaxPrice.String())
	assert.Equal(t, domain.TierLive, recs[0].Source)

	assert.Equal(t, "Siruguppa", recs[1].Market)
	assert.Equal(t, "1700", recs[1].ModalPrice.String())
	assert.Equal(t, "1500", recs[1].MinPrice.String())
	require.True(t, recs[1].ArrivalQuantity.Valid)
	assert.Equal(t, "42", recs[1].ArrivalQuantity.Decimal.String())
}

func TestFetch_CommodityVariants(t *testing.T) {
	var commodity string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		commodity = r.URL.Query().Get("filters[commodity]")
		writeRecords(w, nil)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), Query{Commodity: "Paddy"})
	require.NoError(t, err)
	assert.Equal(t, "Paddy(Dhan)(Common)", commodity)
}

func TestFetch_Pagination(t *testing.T) {
	all := []map[string]interface{}{
		row("09/03/2025", "A", "Onion", 1000),
		row("09/03/2025", "B", "Onion", 1100),
		row("09/03/2025", "C", "Onion", 1200),
		row("09/03/2025", "D", "Onion", 1300),
		row("09/03/2025", "E", "Onion", 1400),
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		if offset > len(all) {
			offset = len(all)
		}
		writeRecords(w, all[offset:end])
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PageSize = 2
	c, err := New(cfg)
	require.NoError(t, err)

	recs, err := c.Fetch(context.Background(), Query{Commodity: "Onion"})
	require.NoError(t, err)
	assert.Len(t, recs, 5)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	recs, err = c.Fetch(context.Background(), Query{Commodity: "Onion", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_ErrorsAreSourceUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"upstream status", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"error","message":"invalid key"}`))
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, err := New(testConfig(srv.URL))
			require.NoError(t, err)
			_, err = c.Fetch(context.Background(), Query{Commodity: "Onion"})
			require.Error(t, err)
			assert.True(t, domain.IsSourceUnavailable(err))
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Fetch(context.Background(), Query{Commodity: "Onion"})
	require.Error(t, err)
	assert.True(t, domain.IsSourceUnavailable(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSearchHistorical_StopsAfterBatchWithData(t *testing.T) {
	from := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	dataDay := from.AddDate(0, 0, -3).Format(upstreamDate)
	olderDay := from.AddDate(0, 0, -5).Format(upstreamDate)

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
		calls    atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()

		switch r.URL.Query().Get("filters[arrival_date]") {
		case dataDay:
			writeRecords(w, []map[string]interface{}{row(dataDay, "Ballari", "Onion", 1500)})
		case olderDay:
			writeRecords(w, []map[string]interface{}{row(olderDay, "Ballari", "Onion", 1400)})
		default:
			writeRecords(w, nil)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 5
	c, err := New(cfg)
	require.NoError(t, err)

	res, err := c.SearchHistorical(context.Background(), HistoricalQuery{
		Location:    domain.Location{State: "Karnataka", Market: "Ballari"},
		Commodities: []string{"Onion"},
		From:        from,
		Days:        14,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "1500", res.Records[0].ModalPrice.String())
	assert.Len(t, res.Probed, 5)
	assert.Equal(t, int32(5), calls.Load())
	assert.LessOrEqual(t, maxSeen, 5)
	assert.Equal(t, from, res.Probed[0])
}

func TestSearchHistorical_NegativeCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeRecords(w, nil)
	}))
	defer srv.Close()

	today := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	mem := cache.NewMemoryClient(100)
	defer mem.Close()

	c, err := New(testConfig(srv.URL),
		WithNegativeCache(mem),
		WithClock(func() time.Time { return today.Add(10 * time.Hour) }, time.UTC))
	require.NoError(t, err)

	q := HistoricalQuery{Commodities: []string{"Onion"}, From: today, Days: 7}
	res, err := c.SearchHistorical(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Len(t, res.Probed, 7)
	assert.Equal(t, int32(7), calls.Load())

	// Only today is asked again.
	_, err = c.SearchHistorical(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(8), calls.Load())
}

func TestSearchHistorical_AllFailuresAreSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	res, err := c.SearchHistorical(context.Background(), HistoricalQuery{
		Commodities: []string{"Onion"},
		From:        time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
		Days:        5,
	})
	require.Error(t, err)
	assert.True(t, domain.IsSourceUnavailable(err))
	assert.Empty(t, res.Records)
}

func TestSearchHistorical_LatestPerCommodity(t *testing.T) {
	from := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("filters[arrival_date]")
		commodity := r.URL.Query().Get("filters[commodity]")
		switch {
		case commodity == "Onion" && (date == from.AddDate(0, 0, -1).Format(upstreamDate) || date == from.AddDate(0, 0, -4).Format(upstreamDate)):
			writeRecords(w, []map[string]interface{}{row(date, "Ballari", "Onion", 1000)})
		case commodity == "Tomato" && date == from.AddDate(0, 0, -9).Format(upstreamDate):
			writeRecords(w, []map[string]interface{}{row(date, "Ballari", "Tomato", 900)})
		default:
			writeRecords(w, nil)
		}
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	res, err := c.SearchHistorical(context.Background(), HistoricalQuery{
		Commodities: []string{"Onion", "Tomato"},
		From:        from,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, from.AddDate(0, 0, -1), res.Records[0].Date)
	assert.Equal(t, "Tomato", res.Records[1].Commodity)
	assert.Len(t, res.Probed, 14)
	for i := 1; i < len(res.Probed); i++ {
		assert.True(t, res.Probed[i].Before(res.Probed[i-1]), fmt.Sprintf("probe %d out of order", i))
	}
}
