// Package main provides the AgriGuru API server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shivas758/agriguru/internal/app"
	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/ingest"
	"github.com/shivas758/agriguru/internal/observability"
)

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Bool("llm", cfg.LLM.Enabled).
		Msg("Starting AgriGuru API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Migrate: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	svc := Services{
		Resolver:  a.Pipeline,
		Validator: a.Matcher,
		Nearby:    a.Nearby,
		Prices:    a.Prices,
		Metrics:   a.Pipeline.Metrics(),
		Pinger:    a,
		Today:     a.Pipeline.Today,
	}
	if a.Extractor != nil {
		svc.Extractor = a.Extractor
	}

	var scheduler *ingest.Scheduler
	if a.Syncer != nil {
		scheduler = ingest.NewScheduler(a.Syncer, cfg.Ingestion.Interval, a.Pipeline.Today, logger)
		svc.Sync = scheduler
		if cfg.Ingestion.Enabled {
			scheduler.Start(ctx)
			logger.Info().Dur("interval", cfg.Ingestion.Interval).Msg("Scheduled price sync enabled")
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger, cfg, svc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}
	if scheduler != nil {
		scheduler.Wait()
	}

	logger.Info().Msg("Server stopped")
}
