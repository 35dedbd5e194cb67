// Package app wires the stores, clients and pipeline from configuration.
// Both binaries build their services through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shivas758/agriguru/internal/cache"
	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/geo"
	"github.com/shivas758/agriguru/internal/ingest"
	"github.com/shivas758/agriguru/internal/intent"
	"github.com/shivas758/agriguru/internal/llm"
	"github.com/shivas758/agriguru/internal/matcher"
	"github.com/shivas758/agriguru/internal/observability"
	"github.com/shivas758/agriguru/internal/retrieval"
	"github.com/shivas758/agriguru/internal/source"
	"github.com/shivas758/agriguru/internal/storage"
)

// Options tweak what New builds.
type Options struct {
	// Migrate applies pending schema migrations after connecting.
	Migrate bool
	// Now overrides the wall clock; nil means time.Now.
	Now func() time.Time
}

// App holds the wired services. Source, LLM, Extractor and Syncer are nil
// when their configuration is absent.
type App struct {
	Config      *config.Config
	Logger      *observability.Logger
	DB          *sqlx.DB
	Cache       cache.Client
	Prices      *storage.PriceRepository
	Markets     *storage.MarketRepository
	Commodities *storage.CommodityRepository
	Source      *source.Client
	LLM         *llm.Client
	Extractor   *intent.Extractor
	Matcher     *matcher.Matcher
	Nearby      *geo.Resolver
	Pipeline    *retrieval.Pipeline
	Syncer      *ingest.Syncer
}

// New connects to the database and cache and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: db}

	if opts.Migrate {
		applied, err := storage.Migrate(ctx, db)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("versions", applied).Msg("applied migrations")
		}
	}

	a.Cache, err = cache.New(cfg.Cache)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	a.Prices = storage.NewPriceRepository(db)
	a.Markets = storage.NewMarketRepository(db)
	a.Commodities = storage.NewCommodityRepository(db)

	a.Source, err = source.New(cfg.Source,
		source.WithNegativeCache(a.Cache),
		source.WithLogger(logger),
		source.WithClock(now, cfg.Location()),
	)
	if err != nil {
		if !domain.IsConfiguration(err) {
			_ = a.Close()
			return nil, err
		}
		logger.Warn().Err(err).Msg("upstream price source disabled, serving stored prices only")
		a.Source = nil
	}

	var advisor geo.Advisor
	if cfg.LLM.Enabled {
		a.LLM, err = llm.NewClient(cfg.LLM, logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Extractor = intent.NewExtractor(a.LLM, cfg.Location(), logger)
		advisor = geo.NewCachingAdvisor(llm.NewAdvisor(a.LLM), a.Cache, cfg.LLM.CacheTTL)
	}

	a.Matcher = matcher.New(a.Markets, cfg.Resolution.Matcher, logger)
	a.Nearby = geo.NewResolver(a.Markets, a.Matcher, advisor, logger)

	deps := retrieval.Deps{
		Store:       a.Prices,
		Validator:   a.Matcher,
		Nearby:      a.Nearby,
		Commodities: a.Commodities,
		Logger:      logger,
		Now:         now,
	}
	if a.Source != nil {
		deps.Source = a.Source
		a.Syncer = ingest.NewSyncer(a.Source, a.Prices, a.Markets, cfg.Ingestion, logger)
	}
	a.Pipeline, err = retrieval.NewPipeline(deps, cfg.Resolution)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Ping checks the database and cache.
func (a *App) Ping(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if p, ok := a.Cache.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// Close releases the database and cache.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
