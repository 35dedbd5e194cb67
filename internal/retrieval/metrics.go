package retrieval

import (
	"sync"
	"time"

	"github.com/shivas758/agriguru/internal/domain"
)

// Metrics tracks pipeline outcomes since start-up.
type Metrics struct {
	mu        sync.Mutex
	total     int64
	timedOut  int64
	outcomes  map[domain.Outcome]int64
	tiers     map[domain.SourceTier]int64
	latencyMs int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Total        int64                       `json:"total"`
	TimedOut     int64                       `json:"timedOut"`
	Outcomes     map[domain.Outcome]int64    `json:"outcomes"`
	Tiers        map[domain.SourceTier]int64 `json:"tiers"`
	AvgLatencyMs float64                     `json:"avgLatencyMs"`
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		outcomes: make(map[domain.Outcome]int64),
		tiers:    make(map[domain.SourceTier]int64),
	}
}

// Record adds one finished resolution.
func (m *Metrics) Record(res *domain.ResolutionResult, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.latencyMs += latency.Milliseconds()
	m.outcomes[res.Outcome]++
	if res.Tier != "" {
		m.tiers[res.Tier]++
	}
	if res.TimedOut {
		m.timedOut++
	}
}

// Snapshot returns a copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MetricsSnapshot{
		Total:    m.total,
		TimedOut: m.timedOut,
		Outcomes: make(map[domain.Outcome]int64, len(m.outcomes)),
		Tiers:    make(map[domain.SourceTier]int64, len(m.tiers)),
	}
	for k, v := range m.outcomes {
		s.Outcomes[k] = v
	}
	for k, v := range m.tiers {
		s.Tiers[k] = v
	}
	if m.total > 0 {
		s.AvgLatencyMs = float64(m.latencyMs) / float64(m.total)
	}
	return s
}
