package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivas758/agriguru/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "k1", Timeout: 5 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestResolve(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/resolve", r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("X-API-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "req-1", body["requestId"])
		in := body["intent"].(map[string]interface{})
		assert.Equal(t, "Onion", in["commodity"])
		assert.Equal(t, "Kurnool", in["market"])
		assert.Equal(t, "2025-03-01", in["date"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"intent": domain.QueryIntent{Commodity: "Onion", Location: domain.Location{Market: "Kurnool"}},
			"result": domain.ResolutionResult{Outcome: domain.OutcomeResolved, Tier: domain.TierHistoricalCache},
			"stale":  true,
		})
	})

	resp, err := c.Resolve(context.Background(), ResolveRequest{
		RequestID: "req-1",
		Intent:    Intent{Commodity: "Onion", Market: "Kurnool", Date: "2025-03-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeResolved, resp.Result.Outcome)
	assert.Equal(t, domain.TierHistoricalCache, resp.Result.Tier)
	assert.True(t, resp.Stale)
}

func TestQuery_APIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "kind": "validation"})
	})

	_, err := c.Query(context.Background(), QueryRequest{Text: "onion"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation", apiErr.Kind)
	assert.Equal(t, "invalid request body", apiErr.Message)
}

func TestQuery_Cancelled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statusClientClosedRequest, map[string]string{"status": "cancelled"})
	})

	_, err := c.Query(context.Background(), QueryRequest{Text: "onion"})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCancel(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/api/v1/requests/running" {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no running request with that id"})
	})

	ok, err := c.Cancel(context.Background(), "running")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Cancel(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrend(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prices/trend", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Cotton", q.Get("commodity"))
		assert.Equal(t, "14", q.Get("days"))
		assert.Equal(t, "2025-03-10", q.Get("until"))
		assert.Empty(t, q.Get("state"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"series": []domain.TrendSeries{{Commodity: "Cotton", Points: []domain.TrendPoint{{Samples: 3}}}},
		})
	})

	series, err := c.Trend(context.Background(), PriceQuery{
		Commodity: "Cotton",
		Days:      14,
		Until:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 3, series[0].Points[0].Samples)
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "agriguru"})
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestNewRequestID(t *testing.T) {
	assert.NotEqual(t, NewRequestID(), NewRequestID())
}
