// Package client is the Go SDK for the AgriGuru HTTP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/shivas758/agriguru/internal/domain"
)

// Result types shared with the server.
type (
	QueryIntent      = domain.QueryIntent
	ResolutionResult = domain.ResolutionResult
	PriceRecord      = domain.PriceRecord
	TrendSeries      = domain.TrendSeries
	NearbyMarket     = domain.NearbyMarket
	Coordinates      = domain.Coordinates
)

// ErrCancelled is returned when the server acknowledged a cancellation
// instead of answering.
var ErrCancelled = errors.New("request cancelled")

const statusClientClosedRequest = 499

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("agriguru: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("agriguru: %d: %s", e.StatusCode, e.Message)
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each call. Resolutions can take up to 40s server side.
	Timeout time.Duration
}

// Client calls the AgriGuru API.
type Client struct {
	http *resty.Client
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if cfg.APIKey != "" {
		rc.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &Client{http: rc}
}

// NewRequestID returns an id to pass in a request so it can be cancelled.
func NewRequestID() string {
	return uuid.NewString()
}

// QueryRequest is a natural-language question.
type QueryRequest struct {
	RequestID   string       `json:"requestId,omitempty"`
	Text        string       `json:"text"`
	History     []string     `json:"history,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Intent is a structured question. Date is YYYY-MM-DD or empty for the
// latest prices.
type Intent struct {
	Commodity    string       `json:"commodity,omitempty"`
	State        string       `json:"state,omitempty"`
	District     string       `json:"district,omitempty"`
	Market       string       `json:"market,omitempty"`
	Date         string       `json:"date,omitempty"`
	Year         int          `json:"year,omitempty"`
	IsHistorical bool         `json:"isHistoricalQuery,omitempty"`
	QueryType    string       `json:"queryType,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
}

// ResolveRequest is a structured question.
type ResolveRequest struct {
	RequestID string `json:"requestId,omitempty"`
	Intent    Intent `json:"intent"`
}

// QueryResponse is the answer to Query and Resolve.
type QueryResponse struct {
	Intent    QueryIntent       `json:"intent"`
	Result    *ResolutionResult `json:"result"`
	Stale     bool              `json:"stale"`
	LatencyMs int64             `json:"latencyMs"`
}

// Query asks a free-text question.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var out QueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/query", req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resolve asks a structured question.
func (c *Client) Resolve(ctx context.Context, req ResolveRequest) (*QueryResponse, error) {
	var out QueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/resolve", req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel stops a running Query or Resolve started with requestID. It
// returns false when no such request is running.
func (c *Client) Cancel(ctx context.Context, requestID string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, "/api/v1/requests/"+requestID, nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return err == nil, err
}

// PriceQuery filters stored prices.
type PriceQuery struct {
	Commodity string
	State     string
	District  string
	Market    string
	Limit     int
	// Trend only.
	Days  int
	Until time.Time
}

func (q PriceQuery) params() map[string]string {
	p := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("commodity", q.Commodity)
	set("state", q.State)
	set("district", q.District)
	set("market", q.Market)
	if q.Limit > 0 {
		p["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Days > 0 {
		p["days"] = strconv.Itoa(q.Days)
	}
	if !q.Until.IsZero() {
		p["until"] = q.Until.Format(domain.DateLayout)
	}
	return p
}

// Latest returns the newest stored price per market and variety.
func (c *Client) Latest(ctx context.Context, q PriceQuery) ([]PriceRecord, error) {
	var out struct {
		Records []PriceRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/prices/latest", nil, q.params(), &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Trend returns day-by-day aggregates per commodity.
func (c *Client) Trend(ctx context.Context, q PriceQuery) ([]TrendSeries, error) {
	var out struct {
		Series []TrendSeries `json:"series"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/prices/trend", nil, q.params(), &out); err != nil {
		return nil, err
	}
	return out.Series, nil
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, params map[string]string, out interface{}) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&APIError{})
	if body != nil {
		req.SetBody(body)
	}
	if params != nil {
		req.SetQueryParams(params)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("agriguru: %s %s: %w", method, path, err)
	}
	if resp.StatusCode() == statusClientClosedRequest {
		return ErrCancelled
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr.Message == "" {
			apiErr = &APIError{Message: http.StatusText(resp.StatusCode())}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}
