// Package source reads daily mandi prices from the data.gov.in
// "current daily price of various commodities" resource.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/shivas758/agriguru/internal/cache"
	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/observability"
	"github.com/shivas758/agriguru/internal/textsim"
)

// upstreamDate is the arrival date layout used by the resource.
const upstreamDate = "02/01/2006"

// Query is one filtered request. Zero Date means no date filter; zero
// Limit means as many rows as MaxPages allows.
type Query struct {
	Location  domain.Location
	Commodity string
	Date      time.Time
	Limit     int
}

// Client talks to the upstream resource. It never retries.
type Client struct {
	cfg      config.SourceConfig
	http     *resty.Client
	limiter  *rate.Limiter
	negative cache.Client
	logger   *observability.Logger
	now      func() time.Time
	loc      *time.Location
}

// Option customizes a Client.
type Option func(*Client)

// WithNegativeCache remembers dates that returned no rows.
func WithNegativeCache(c cache.Client) Option {
	return func(cl *Client) { cl.negative = c }
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithClock overrides time.Now and the zone "today" is computed in.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
		if loc != nil {
			cl.loc = loc
		}
	}
}

// New creates a client. A missing API key or base URL is a configuration error.
func New(cfg config.SourceConfig, opts ...Option) (*Client, error) {
	const op = "source.New"
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, domain.ConfigError(op, "source base URL is required", nil)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.ConfigError(op, "source API key is required", nil)
	}

	def := config.DefaultConfig().Source
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Fields == (config.SourceFields{}) {
		cfg.Fields = def.Fields
	}

	c := &Client{
		cfg: cfg,
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json").
			SetRetryCount(0),
		logger: observability.NopLogger(),
		now:    time.Now,
		loc:    time.UTC,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.BatchSize)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("source")
	return c, nil
}

// Fetch runs one filtered query, paging until a short page, q.Limit or
// MaxPages.
func (c *Client) Fetch(ctx context.Context, q Query) ([]domain.PriceRecord, error) {
	const op = "source.Fetch"

	var out []domain.PriceRecord
	for n := 0; n < c.cfg.MaxPages; n++ {
		size := c.cfg.PageSize
		if q.Limit > 0 && q.Limit-len(out) < size {
			size = q.Limit - len(out)
		}
		rows, err := c.fetchPage(ctx, op, q, n*c.cfg.PageSize, size)
		if err != nil {
			return out, err
		}
		out = append(out, rows.records...)
		if rows.raw < size || (q.Limit > 0 && len(out) >= q.Limit) {
			break
		}
	}

	c.logger.WithContext(ctx).Debug().
		Str("location", q.Location.String()).
		Str("commodity", q.Commodity).
		Day("date", q.Date).
		Int("records", len(out)).
		Msg("source fetch complete")
	return out, nil
}

type page struct {
	raw     int
	records []domain.PriceRecord
}

type envelope struct {
	Status  string                   `json:"status"`
	Message string                   `json:"message"`
	Records []map[string]interface{} `json:"records"`
}

func (c *Client) fetchPage(ctx context.Context, op string, q Query, offset, limit int) (page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return page{}, domain.SourceUnavailable(op, "rate limiter wait", err)
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.params(q, offset, limit)).
		Get(c.cfg.BaseURL)
	if err != nil {
		return page{}, domain.SourceUnavailable(op, "request failed", err)
	}
	if !resp.IsSuccess() {
		return page{}, domain.SourceUnavailable(op, fmt.Sprintf("upstream returned %d", resp.StatusCode()), nil)
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return page{}, domain.SourceUnavailable(op, "decode response", err)
	}
	if env.Status != "" && !strings.EqualFold(env.Status, "ok") {
		return page{}, domain.SourceUnavailable(op, "upstream error: "+env.Message, nil)
	}

	p := page{raw: len(env.Records)}
	for _, raw := range env.Records {
		rec, ok := parseRecord(raw)
		if !ok {
			continue
		}
		rec.Source = domain.TierLive
		p.records = append(p.records, rec)
	}
	return p, nil
}

func (c *Client) params(q Query, offset, limit int) map[string]string {
	p := map[string]string{
		"api-key": c.cfg.APIKey,
		"format":  "json",
		"offset":  strconv.Itoa(offset),
		"limit":   strconv.Itoa(limit),
	}
	filter := func(field, value string) {
		if field != "" && strings.TrimSpace(value) != "" {
			p["filters["+field+"]"] = value
		}
	}
	filter(c.cfg.Fields.State, UpstreamName(q.Location.State))
	filter(c.cfg.Fields.District, UpstreamName(q.Location.District))
	filter(c.cfg.Fields.Market, UpstreamName(q.Location.Market))
	filter(c.cfg.Fields.Commodity, c.UpstreamCommodity(q.Commodity))
	if !q.Date.IsZero() {
		filter(c.cfg.Fields.ArrivalDate, q.Date.Format(upstreamDate))
	}
	return p
}

// UpstreamName converts a place name to the resource's Title Case spelling.
func UpstreamName(s string) string {
	return textsim.TitleCase(strings.Join(strings.Fields(s), " "))
}

// UpstreamCommodity maps a commodity to the upstream spelling, honoring the
// configured variants.
func (c *Client) UpstreamCommodity(name string) string {
	if v, ok := c.cfg.CommodityVariants[domain.Fold(name)]; ok {
		return v
	}
	return UpstreamName(name)
}

// parseRecord reads one upstream row. Keys are matched case-insensitively.
func parseRecord(raw map[string]interface{}) (domain.PriceRecord, bool) {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(strings.TrimSpace(k))] = stringify(v)
	}

	day, err := parseUpstreamDate(fields["arrival_date"])
	if err != nil {
		return domain.PriceRecord{}, false
	}
	modal, ok := parsePrice(fields["modal_price"])
	if !ok {
		return domain.PriceRecord{}, false
	}
	minPrice, ok := parsePrice(fields["min_price"])
	if !ok {
		minPrice = modal
	}
	maxPrice, ok := parsePrice(fields["max_price"])
	if !ok {
		maxPrice = modal
	}

	rec := domain.PriceRecord{
		Date:       day,
		State:      strings.TrimSpace(fields["state"]),
		District:   strings.TrimSpace(fields["district"]),
		Market:     strings.TrimSpace(fields["market"]),
		Commodity:  strings.TrimSpace(fields["commodity"]),
		Variety:    strings.TrimSpace(fields["variety"]),
		Grade:      strings.TrimSpace(fields["grade"]),
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		ModalPrice: modal,
	}
	if q, ok := parsePrice(firstNonEmpty(fields["arrivals_in_qtl"], fields["arrival_quantity"])); ok {
		rec.ArrivalQuantity.Decimal = q
		rec.ArrivalQuantity.Valid = true
	}
	if rec.Market == "" || rec.Commodity == "" {
		return domain.PriceRecord{}, false
	}
	return rec, true
}

func parseUpstreamDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(upstreamDate, s); err == nil {
		return t, nil
	}
	return domain.ParseDay(s)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (c *Client) today() time.Time {
	return domain.Day(c.now().In(c.loc))
}

func parsePrice(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.EqualFold(s, "NR") {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
