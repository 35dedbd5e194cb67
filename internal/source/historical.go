package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shivas758/agriguru/internal/cache"
	"github.com/shivas758/agriguru/internal/domain"
)

// DefaultHistoricalDays is how far back a search probes when Days is unset.
const DefaultHistoricalDays = 14

// HistoricalQuery asks for the most recent day with data, walking back
// from From. An empty Commodities list means any commodity.
type HistoricalQuery struct {
	Location    domain.Location
	Commodities []string
	From        time.Time
	Days        int
}

// HistoricalResult holds the latest records per commodity and every date
// that was probed, newest first.
type HistoricalResult struct {
	Records []domain.PriceRecord
	Probed  []time.Time
}

type probe struct {
	day       time.Time
	commodity string
	records   []domain.PriceRecord
	err       error
}

// SearchHistorical probes dates backward in bounded parallel batches and
// stops after the first batch in which every requested commodity has data.
// A failed date counts as no data. If every probe failed the result is
// empty and the error is SourceUnavailable.
func (c *Client) SearchHistorical(ctx context.Context, q HistoricalQuery) (*HistoricalResult, error) {
	const op = "source.SearchHistorical"

	days := q.Days
	if days <= 0 {
		days = DefaultHistoricalDays
	}
	commodities := q.Commodities
	if len(commodities) == 0 {
		commodities = []string{""}
	}
	from := domain.Day(q.From)

	logger := c.logger.WithContext(ctx)
	res := &HistoricalResult{}
	latest := make(map[string]time.Time)
	found := make(map[string][]domain.PriceRecord)
	var attempts, failures int
	var lastErr error

	for start := 0; start < days; start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, domain.SourceUnavailable(op, "search interrupted", err)
		}

		end := start + c.cfg.BatchSize
		if end > days {
			end = days
		}
		batch := make([]time.Time, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, from.AddDate(0, 0, -i))
		}
		res.Probed = append(res.Probed, batch...)

		results := c.probeBatch(ctx, q.Location, commodities, batch)
		for _, p := range results {
			if p.err != nil {
				failures++
				lastErr = p.err
				logger.Warn().Err(p.err).Day("date", p.day).Str("commodity", p.commodity).
					Msg("historical probe failed")
				continue
			}
			if len(p.records) == 0 {
				continue
			}
			if p.day.After(latest[p.commodity]) {
				latest[p.commodity] = p.day
				found[p.commodity] = p.records
			}
		}
		attempts += len(results)

		if len(found) == len(commodities) {
			break
		}
	}

	for _, commodity := range commodities {
		res.Records = append(res.Records, found[commodity]...)
	}
	logger.Debug().
		Int("probed", len(res.Probed)).
		Int("records", len(res.Records)).
		Int("failures", failures).
		Msg("historical search complete")

	if len(res.Records) == 0 && attempts > 0 && failures == attempts {
		return res, domain.SourceUnavailable(op, "every historical probe failed", lastErr)
	}
	return res, nil
}

// probeBatch fetches every (date, commodity) pair of one batch. At most
// one request per date is in flight.
func (c *Client) probeBatch(ctx context.Context, loc domain.Location, commodities []string, batch []time.Time) []probe {
	var (
		mu  sync.Mutex
		out []probe
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchSize)

	for _, day := range batch {
		g.Go(func() error {
			for _, commodity := range commodities {
				p := probe{day: day, commodity: commodity}
				if c.knownEmpty(gCtx, loc, commodity, day) {
					mu.Lock()
					out = append(out, p)
					mu.Unlock()
					continue
				}
				p.records, p.err = c.Fetch(gCtx, Query{Location: loc, Commodity: commodity, Date: day})
				if p.err == nil && len(p.records) == 0 {
					c.rememberEmpty(gCtx, loc, commodity, day)
				}
				mu.Lock()
				out = append(out, p)
				mu.Unlock()
			}
			// Failures are per date and never cancel the batch.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].day.After(out[j].day) })
	return out
}

func emptyKey(loc domain.Location, commodity string, day time.Time) string {
	return cache.CacheKey("source", "empty", day.Format(domain.DateLayout),
		loc.State, loc.District, loc.Market, commodity)
}

func (c *Client) knownEmpty(ctx context.Context, loc domain.Location, commodity string, day time.Time) bool {
	if c.negative == nil {
		return false
	}
	_, err := c.negative.Get(ctx, emptyKey(loc, commodity, day))
	return err == nil
}

// rememberEmpty records a date without data. Today is skipped: its rows
// may still arrive.
func (c *Client) rememberEmpty(ctx context.Context, loc domain.Location, commodity string, day time.Time) {
	if c.negative == nil || c.cfg.NegativeTTL <= 0 || !day.Before(c.today()) {
		return
	}
	if err := c.negative.Set(ctx, emptyKey(loc, commodity, day), []byte{1}, c.cfg.NegativeTTL); err != nil {
		c.logger.Debug().Err(err).Msg("negative cache write failed")
	}
}
