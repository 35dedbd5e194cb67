package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/source"
)

var syncDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	fn       func(q source.Query) ([]domain.PriceRecord, error)
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, q source.Query) ([]domain.PriceRecord, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return f.fn(q)
}

type fakeWriter struct {
	mu      sync.Mutex
	records []domain.PriceRecord
}

func (w *fakeWriter) Upsert(_ context.Context, records []domain.PriceRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, records...)
	return nil
}

type fakeCatalog struct {
	since time.Time
	calls int
}

func (c *fakeCatalog) RefreshFromPrices(_ context.Context, since time.Time) (int64, error) {
	c.calls++
	c.since = since
	return 3, nil
}

func row(q source.Query, market string) domain.PriceRecord {
	return domain.PriceRecord{
		Date: q.Date, State: q.Location.State, District: "D", Market: market,
		Commodity: q.Commodity, ModalPrice: decimal.NewFromInt(1000),
	}
}

func ingestConfig() config.IngestionConfig {
	return config.IngestionConfig{
		Commodities: []string{"Onion", "Tomato", "Maize"},
		States:      []string{"Karnataka", "Telangana"},
		Concurrency: 2,
	}
}

func TestSyncer_Run(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(q source.Query) ([]domain.PriceRecord, error) {
		return []domain.PriceRecord{row(q, "A"), row(q, "B")}, nil
	}}
	writer := &fakeWriter{}
	catalog := &fakeCatalog{}
	s := NewSyncer(fetcher, writer, catalog, ingestConfig(), nil)

	var progress []int
	var mu sync.Mutex
	s.OnProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 6, total)
		progress = append(progress, done)
	})

	res, err := s.Run(context.Background(), syncDay.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Jobs)
	assert.Equal(t, 12, res.Records)
	assert.Zero(t, res.Failed)
	assert.Equal(t, int64(3), res.NewMarkets)
	assert.Equal(t, syncDay, res.Date)
	assert.Len(t, writer.records, 12)
	assert.Equal(t, syncDay, catalog.since)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6}, progress)
	assert.LessOrEqual(t, fetcher.maxSeen.Load(), int32(2))
}

func TestSyncer_PartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(q source.Query) ([]domain.PriceRecord, error) {
		if q.Location.State == "Telangana" {
			return nil, domain.SourceUnavailable("source.Fetch", "503", nil)
		}
		return []domain.PriceRecord{row(q, "A")}, nil
	}}
	s := NewSyncer(fetcher, &fakeWriter{}, nil, ingestConfig(), nil)

	res, err := s.Run(context.Background(), syncDay)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 3, res.Records)
	assert.Len(t, res.Errors, 3)
}

func TestSyncer_AllFailed(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(source.Query) ([]domain.PriceRecord, error) {
		return nil, domain.SourceUnavailable("source.Fetch", "503", nil)
	}}
	s := NewSyncer(fetcher, &fakeWriter{}, nil, ingestConfig(), nil)

	res, err := s.Run(context.Background(), syncDay)
	require.Error(t, err)
	assert.True(t, domain.IsSourceUnavailable(err))
	assert.Equal(t, 6, res.Failed)
}

func TestSyncer_ConfigErrorStops(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(source.Query) ([]domain.PriceRecord, error) {
		return nil, domain.ConfigError("source", "bad key", nil)
	}}
	s := NewSyncer(fetcher, &fakeWriter{}, nil, ingestConfig(), nil)

	_, err := s.Run(context.Background(), syncDay)
	assert.True(t, domain.IsConfiguration(err))
}

func TestSyncer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{fn: func(source.Query) ([]domain.PriceRecord, error) { return nil, nil }}
	s := NewSyncer(fetcher, &fakeWriter{}, nil, ingestConfig(), nil)

	_, err := s.Run(ctx, syncDay)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestScheduler_TriggerDoesNotOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetcher := &fakeFetcher{fn: func(q source.Query) ([]domain.PriceRecord, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return []domain.PriceRecord{row(q, "A")}, nil
	}}
	cfg := config.IngestionConfig{Commodities: []string{"Onion"}, States: []string{"Karnataka"}}
	sched := NewScheduler(NewSyncer(fetcher, &fakeWriter{}, nil, cfg, nil), time.Hour,
		func() time.Time { return syncDay }, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := sched.Trigger(context.Background())
		errc <- err
	}()
	<-started

	_, err := sched.Trigger(context.Background())
	assert.True(t, errors.Is(err, ErrSyncRunning))

	close(release)
	require.NoError(t, <-errc)
	require.NotNil(t, sched.Last())
	assert.Equal(t, 1, sched.Last().Records)
}

func TestScheduler_StartRunsOnInterval(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(q source.Query) ([]domain.PriceRecord, error) {
		return []domain.PriceRecord{row(q, "A")}, nil
	}}
	cfg := config.IngestionConfig{Commodities: []string{"Onion"}, States: []string{"Karnataka"}}
	sched := NewScheduler(NewSyncer(fetcher, &fakeWriter{}, nil, cfg, nil), 10*time.Millisecond,
		func() time.Time { return syncDay }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	sched.Wait()
}
