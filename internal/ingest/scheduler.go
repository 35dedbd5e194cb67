package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shivas758/agriguru/internal/observability"
)

// ErrSyncRunning is returned by Trigger while another run is in progress.
var ErrSyncRunning = errors.New("price sync already running")

// Scheduler runs a Syncer on a fixed interval. Runs never overlap.
type Scheduler struct {
	syncer   *Syncer
	interval time.Duration
	today    func() time.Time
	logger   *observability.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *SyncResult
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. today returns the day to sync.
func NewScheduler(syncer *Syncer, interval time.Duration, today func() time.Time, logger *observability.Logger) *Scheduler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		today:    today,
		logger:   logger.WithComponent("scheduler"),
	}
}

// Start launches the loop. It stops when ctx is done; Wait blocks until then.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("stopping scheduled price sync")
				return
			case <-ticker.C:
				if _, err := s.Trigger(ctx); err != nil && !errors.Is(err, ErrSyncRunning) {
					s.logger.Error().Err(err).Msg("scheduled price sync failed")
				}
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Trigger runs a sync now unless one is already in progress.
func (s *Scheduler) Trigger(ctx context.Context) (*SyncResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncRunning
	}
	defer s.running.Store(false)

	res, err := s.syncer.Run(ctx, s.today())
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, err
}

// Last returns the most recent run, or nil.
func (s *Scheduler) Last() *SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
