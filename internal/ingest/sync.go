// Package ingest keeps the local price store warm by pulling the configured
// commodities and states from the upstream feed.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/observability"
	"github.com/shivas758/agriguru/internal/source"
)

// Fetcher is the upstream feed.
type Fetcher interface {
	Fetch(ctx context.Context, q source.Query) ([]domain.PriceRecord, error)
}

// PriceWriter persists fetched rows.
type PriceWriter interface {
	Upsert(ctx context.Context, records []domain.PriceRecord) error
}

// CatalogRefresher adds newly seen markets to the catalog.
type CatalogRefresher interface {
	RefreshFromPrices(ctx context.Context, since time.Time) (int64, error)
}

// ProgressFunc is called after every finished job.
type ProgressFunc func(done, total int)

// SyncResult summarizes one run.
type SyncResult struct {
	RunID       uuid.UUID     `json:"runId"`
	Date        time.Time     `json:"date"`
	Jobs        int           `json:"jobs"`
	Failed      int           `json:"failed"`
	Records     int           `json:"records"`
	NewMarkets  int64         `json:"newMarkets"`
	Errors      []string      `json:"errors,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
}

// Syncer pulls one day of prices into the store.
type Syncer struct {
	fetcher  Fetcher
	store    PriceWriter
	catalog  CatalogRefresher
	cfg      config.IngestionConfig
	logger   *observability.Logger
	progress ProgressFunc
}

// NewSyncer creates a syncer. catalog may be nil.
func NewSyncer(fetcher Fetcher, store PriceWriter, catalog CatalogRefresher, cfg config.IngestionConfig, logger *observability.Logger) *Syncer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Syncer{
		fetcher: fetcher,
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.WithComponent("ingest"),
	}
}

// OnProgress registers a progress callback. It must be set before Run.
func (s *Syncer) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

type job struct {
	commodity string
	state     string
}

func (s *Syncer) jobs() []job {
	states := s.cfg.States
	if len(states) == 0 {
		states = []string{""}
	}
	commodities := s.cfg.Commodities
	if len(commodities) == 0 {
		commodities = []string{""}
	}
	out := make([]job, 0, len(states)*len(commodities))
	for _, c := range commodities {
		for _, st := range states {
			out = append(out, job{commodity: c, state: st})
		}
	}
	return out
}

// Run fetches every configured (commodity, state) pair for date and stores
// the rows. Individual job failures are counted, not returned. The error
// is set when ctx ends, the source rejects the configuration, or every job
// failed.
func (s *Syncer) Run(ctx context.Context, date time.Time) (*SyncResult, error) {
	const op = "ingest.Run"
	date = domain.Day(date)
	jobs := s.jobs()
	result := &SyncResult{
		RunID:     uuid.New(),
		Date:      date,
		Jobs:      len(jobs),
		StartedAt: time.Now(),
	}
	logger := s.logger.WithContext(ctx).WithOperation(result.RunID.String())
	logger.Info().Day("date", date).Int("jobs", len(jobs)).Msg("starting price sync")

	var (
		mu      sync.Mutex
		done    atomic.Int64
		records atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			n, err := s.runJob(gctx, j, date)
			finished := int(done.Add(1))
			if s.progress != nil {
				s.progress(finished, len(jobs))
			}
			if err == nil {
				records.Add(int64(n))
				return nil
			}
			if domain.IsConfiguration(err) {
				return err
			}
			mu.Lock()
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", j.commodity, j.state, err))
			mu.Unlock()
			logger.Warn().Err(err).Str("commodity", j.commodity).Str("state", j.state).Msg("sync job failed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	if ctx.Err() != nil {
		return result, domain.ErrCancelled
	}
	result.Records = int(records.Load())

	if s.catalog != nil && result.Records > 0 {
		n, err := s.catalog.RefreshFromPrices(ctx, date)
		if err != nil {
			logger.Warn().Err(err).Msg("market catalog refresh failed")
		}
		result.NewMarkets = n
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	logger.Info().
		Int("records", result.Records).
		Int("failed", result.Failed).
		Int64("new_markets", result.NewMarkets).
		Dur("duration", result.Duration).
		Msg("price sync completed")

	if result.Jobs > 0 && result.Failed == result.Jobs {
		return result, domain.SourceUnavailable(op, "every sync job failed", nil)
	}
	return result, nil
}

func (s *Syncer) runJob(ctx context.Context, j job, date time.Time) (int, error) {
	recs, err := s.fetcher.Fetch(ctx, source.Query{
		Location:  domain.Location{State: j.state},
		Commodity: j.commodity,
		Date:      date,
	})
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	if err := s.store.Upsert(ctx, recs); err != nil {
		return 0, fmt.Errorf("store prices: %w", err)
	}
	return len(recs), nil
}
