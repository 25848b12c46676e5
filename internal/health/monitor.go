// Package health keeps rolling per-provider call metrics and derives
// availability. Samples are created lazily on first observation, mutated
// under a mutex on every call, and never destroyed (Reset is an admin
// action). Availability is derived, not stored: a provider is unavailable
// iff it was marked down less than the re-probe window ago.
package health

import (
	"errors"
	"sync"
	"time"

	"github.com/auraforge/relay/internal/domain"
)

// ReprobeWindow is how long a marked-down provider stays unavailable before
// it is retried optimistically.
const ReprobeWindow = 5 * time.Minute

// Latency attributed to providers with no successful calls yet, effectively
// infinity for the fastest priority.
const unknownLatencyS = 999.0

// Balanced score weights.
const (
	latencyWeight   = 100.0
	errorRateWeight = 1000.0
	costWeight      = 10000.0
)

type sample struct {
	total            int
	successful       int
	failed           int
	rateLimitErrors  int
	tokenLimitErrors int
	timeoutErrors    int
	totalLatencyS    float64
	totalCostUSD     float64
	lastSuccess      time.Time
	lastError        time.Time
	downSince        time.Time
}

// Monitor implements the domain.HealthMonitor interface. Safe for
// concurrent use; hold times are bounded to the read-modify-write sequence.
type Monitor struct {
	mu      sync.Mutex
	samples map[string]*sample
	now     func() time.Time
}

// NewMonitor creates a new health monitor (DI constructor).
func NewMonitor() *Monitor {
	return &Monitor{
		samples: make(map[string]*sample),
		now:     time.Now,
	}
}

// NewMonitorWithClock creates a monitor with an injected clock for tests.
func NewMonitorWithClock(now func() time.Time) *Monitor {
	return &Monitor{
		samples: make(map[string]*sample),
		now:     now,
	}
}

func (m *Monitor) sampleFor(provider string) *sample {
	s, ok := m.samples[provider]
	if !ok {
		s = &sample{}
		m.samples[provider] = s
	}
	return s
}

// Record atomically updates a provider's sample with one call outcome.
// Failures classified as rate_limit, network, or timeout mark the provider
// down; other kinds do not.
func (m *Monitor) Record(provider string, success bool, latency time.Duration, costUSD float64, kind domain.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sampleFor(provider)
	now := m.now()

	s.total++
	s.totalLatencyS += latency.Seconds()

	if success {
		s.successful++
		s.totalCostUSD += costUSD
		s.lastSuccess = now
		return
	}

	s.failed++
	s.lastError = now

	switch kind {
	case domain.ErrKindRateLimit:
		s.rateLimitErrors++
	case domain.ErrKindTokenLimit:
		s.tokenLimitErrors++
	case domain.ErrKindTimeout:
		s.timeoutErrors++
	}

	if marksDown(kind) {
		s.downSince = now
	}
}

// marksDown reports whether a failure kind takes the provider out of
// rotation. Token-limit and auth failures say nothing about the provider's
// health for other requests.
func marksDown(kind domain.ErrorKind) bool {
	switch kind {
	case domain.ErrKindRateLimit, domain.ErrKindNetwork, domain.ErrKindTimeout:
		return true
	default:
		return false
	}
}

// IsAvailable reports whether a provider may be tried. Once the re-probe
// window has elapsed the down state is cleared so the next call reprobes.
func (m *Monitor) IsAvailable(provider string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.samples[provider]
	if !ok || s.downSince.IsZero() {
		return true
	}

	if m.now().Sub(s.downSince) < ReprobeWindow {
		return false
	}

	s.downSince = time.Time{}
	return true
}

// Best picks the candidate minimizing the priority's metric. Unavailable
// providers are excluded; if every candidate is down the first candidate is
// returned so the caller still has something to probe.
func (m *Monitor) Best(priority domain.Priority, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", errors.New("no candidate providers")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	best := ""
	bestScore := 0.0
	now := m.now()

	for _, name := range candidates {
		s, ok := m.samples[name]
		if ok && !s.downSince.IsZero() && now.Sub(s.downSince) < ReprobeWindow {
			continue
		}

		score := m.score(priority, s)
		if best == "" || score < bestScore {
			best = name
			bestScore = score
		}
	}

	if best == "" {
		return candidates[0], nil
	}

	return best, nil
}

func (m *Monitor) score(priority domain.Priority, s *sample) float64 {
	avgLatency := unknownLatencyS
	avgCost := 0.0
	errorRate := 0.0

	if s != nil {
		if s.successful > 0 {
			avgLatency = s.totalLatencyS / float64(s.successful)
			avgCost = s.totalCostUSD / float64(s.successful)
		}
		if s.total > 0 {
			errorRate = float64(s.failed) / float64(s.total)
		}
	}

	switch priority {
	case domain.PriorityFastest:
		return avgLatency
	case domain.PriorityCheapest:
		return avgCost
	case domain.PriorityReliable:
		return errorRate
	default: // balanced
		return latencyWeight*avgLatency + errorRateWeight*errorRate + costWeight*avgCost
	}
}

// Report returns a snapshot of every observed provider.
func (m *Monitor) Report() map[string]domain.ProviderSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.ProviderSnapshot, len(m.samples))
	for name, s := range m.samples {
		snap := domain.ProviderSnapshot{
			Total:            s.total,
			Successful:       s.successful,
			Failed:           s.failed,
			RateLimitErrors:  s.rateLimitErrors,
			TokenLimitErrors: s.tokenLimitErrors,
			TimeoutErrors:    s.timeoutErrors,
			TotalLatencyS:    s.totalLatencyS,
			TotalCostUSD:     s.totalCostUSD,
			LastSuccess:      s.lastSuccess,
			LastError:        s.lastError,
			DownSince:        s.downSince,
		}
		if s.successful > 0 {
			snap.AvgLatencyS = s.totalLatencyS / float64(s.successful)
			snap.AvgCostUSD = s.totalCostUSD / float64(s.successful)
		}
		if s.total > 0 {
			snap.ErrorRate = float64(s.failed) / float64(s.total)
		}
		out[name] = snap
	}

	return out
}

// Reset clears all samples (admin action).
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = make(map[string]*sample)
}
