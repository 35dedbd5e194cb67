package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shivas758/agriguru/cmd/agriguru-api/handlers"
	"github.com/shivas758/agriguru/cmd/agriguru-api/middleware"
	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/observability"
)

// Services are the collaborators behind the routes. Extractor and Sync
// may be nil.
type Services struct {
	Resolver  handlers.Resolver
	Extractor handlers.IntentExtractor
	Validator handlers.MarketValidator
	Nearby    handlers.NearbyFinder
	Prices    handlers.PriceReader
	Sync      handlers.SyncTrigger
	Metrics   handlers.MetricsSource
	Pinger    handlers.Pinger
	Today     func() time.Time
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Trace)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	today := svc.Today
	if today == nil {
		today = time.Now
	}

	queryHandler := handlers.NewQueryHandler(logger, svc.Resolver, svc.Extractor, handlers.NewInflight(), today)
	marketHandler := handlers.NewMarketHandler(logger, svc.Validator, svc.Nearby,
		cfg.Resolution.NearbyRadiusKm, cfg.Resolution.NearbyMaxMarkets)
	priceHandler := handlers.NewPriceHandler(logger, svc.Prices, cfg.Resolution.ResultLimit, cfg.Resolution.TrendDays, today)
	adminHandler := handlers.NewAdminHandler(logger, svc.Sync, svc.Metrics, svc.Pinger)

	r.Get("/health", adminHandler.Health)
	r.Get("/ready", adminHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth))

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))

			r.Post("/query", queryHandler.Query)
			r.Post("/resolve", queryHandler.Resolve)
			r.Delete("/requests/{requestId}", queryHandler.Cancel)

			r.Route("/markets", func(r chi.Router) {
				r.Get("/validate", marketHandler.Validate)
				r.Get("/nearby", marketHandler.Nearby)
			})

			r.Route("/prices", func(r chi.Router) {
				r.Get("/latest", priceHandler.Latest)
				r.Get("/trend", priceHandler.Trend)
			})
		})

		// Sync runs longer than a request timeout.
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sync", adminHandler.Sync)
			r.Get("/metrics", adminHandler.Metrics)
		})
	})

	return r
}
