// Package health tracks per-provider health state and runs recovery
// probes against unhealthy providers.
//
// The state machine per provider is
//
//	Healthy --(K consecutive failures)--> Degraded
//	Degraded --(M consecutive failures)--> Unhealthy
//	Unhealthy --(N consecutive successful probes)--> Healthy
//
// with K=3, M=5, N=2 by default. Transitions are single-writer per
// provider: each provider has its own mutex, so transitions are
// linearizable while reads from the request path may lag by up to one
// probe interval.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/observability"
)

// State is the health state of one provider.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// Routable reports whether the state admits request traffic.
// Degraded providers still receive traffic; only unhealthy providers
// are limited to recovery probes.
func (s State) Routable() bool {
	return s != StateUnhealthy
}

// ProbeFunc issues one recovery probe against the named provider and
// reports whether it succeeded.
type ProbeFunc func(ctx context.Context, providerID string) error

// Config holds monitor thresholds and probe settings.
type Config struct {
	// FailureThreshold is the consecutive-failure count that moves a
	// healthy provider to degraded (default: 3).
	FailureThreshold int

	// UnhealthyThreshold is the consecutive-failure count that moves a
	// degraded provider to unhealthy (default: 5).
	UnhealthyThreshold int

	// RecoveryProbes is the consecutive successful probe count that
	// moves an unhealthy provider back to healthy (default: 2).
	RecoveryProbes int

	// ProbeInterval is the recovery probe timer period (default: 15s).
	ProbeInterval time.Duration

	// ProbeTimeout bounds each recovery probe (default: 5s).
	ProbeTimeout time.Duration

	// NewTicker builds the probe timer. Injectable for tests; defaults
	// to time.NewTicker.
	NewTicker func(d time.Duration) *time.Ticker

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.UnhealthyThreshold == 0 {
		c.UnhealthyThreshold = 5
	}
	if c.RecoveryProbes == 0 {
		c.RecoveryProbes = 2
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 15 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.NewTicker == nil {
		c.NewTicker = time.NewTicker
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// record is the mutable health state of one provider.
type record struct {
	mu             sync.Mutex
	state          State
	consecFails    int
	consecProbeOKs int
	lastProbeAt    time.Time
}

// Monitor tracks health per provider. All methods are safe for
// concurrent use; state is guarded by fine-grained per-provider locks.
type Monitor struct {
	cfg   Config
	probe ProbeFunc

	mu      sync.RWMutex
	records map[string]*record

	wg sync.WaitGroup
}

// NewMonitor creates a monitor that probes unhealthy providers with
// the given probe function.
func NewMonitor(cfg Config, probe ProbeFunc) *Monitor {
	cfg.defaults()
	return &Monitor{
		cfg:     cfg,
		probe:   probe,
		records: make(map[string]*record),
	}
}

// Track registers a provider, starting it healthy.
func (m *Monitor) Track(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[providerID]; ok {
		return
	}
	m.records[providerID] = &record{state: StateHealthy}
	observability.ProviderHealthy.WithLabelValues(providerID).Set(1)
}

// State returns the provider's current health state. Unknown providers
// report healthy so registration order does not matter.
func (m *Monitor) State(providerID string) State {
	rec := m.record(providerID)
	if rec == nil {
		return StateHealthy
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state
}

// ReportSuccess records a successful request-path call. It resets the
// failure streak, and a degraded provider recovers immediately.
func (m *Monitor) ReportSuccess(providerID string) {
	rec := m.record(providerID)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.consecFails = 0
	if rec.state == StateDegraded {
		m.transition(providerID, rec, StateHealthy)
	}
}

// ReportFailure records a failed request-path call and applies the
// degradation thresholds.
func (m *Monitor) ReportFailure(providerID string) {
	rec := m.record(providerID)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.consecFails++
	switch {
	case rec.state == StateHealthy && rec.consecFails >= m.cfg.FailureThreshold:
		m.transition(providerID, rec, StateDegraded)
	case rec.state == StateDegraded && rec.consecFails >= m.cfg.UnhealthyThreshold:
		m.transition(providerID, rec, StateUnhealthy)
	}
}

// Run executes the recovery probe loop until the context is cancelled.
// Probing never blocks the request path: it runs on its own timer and
// touches only unhealthy providers.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.cfg.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		case <-ticker.C:
			m.probeUnhealthy(ctx)
		}
	}
}

// Snapshot returns the current state of every tracked provider.
func (m *Monitor) Snapshot() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]State, len(m.records))
	for id, rec := range m.records {
		rec.mu.Lock()
		out[id] = rec.state
		rec.mu.Unlock()
	}
	return out
}

func (m *Monitor) probeUnhealthy(ctx context.Context) {
	m.mu.RLock()
	var targets []string
	for id, rec := range m.records {
		rec.mu.Lock()
		if rec.state == StateUnhealthy {
			targets = append(targets, id)
		}
		rec.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, id := range targets {
		id := id
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.probeOne(ctx, id)
		}()
	}
}

func (m *Monitor) probeOne(ctx context.Context, providerID string) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	err := m.probe(probeCtx, providerID)

	rec := m.record(providerID)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.lastProbeAt = time.Now()
	if rec.state != StateUnhealthy {
		// Recovered through another path while the probe was in flight.
		return
	}

	if err != nil {
		rec.consecProbeOKs = 0
		m.cfg.Logger.Debug("recovery probe failed", "provider", providerID, "error", err)
		return
	}

	rec.consecProbeOKs++
	if rec.consecProbeOKs >= m.cfg.RecoveryProbes {
		rec.consecFails = 0
		rec.consecProbeOKs = 0
		m.transition(providerID, rec, StateHealthy)
	}
}

// transition applies a state change. Must be called with rec.mu held.
func (m *Monitor) transition(providerID string, rec *record, to State) {
	from := rec.state
	rec.state = to
	if to == StateHealthy {
		rec.consecFails = 0
	}

	if to.Routable() {
		observability.ProviderHealthy.WithLabelValues(providerID).Set(1)
	} else {
		observability.ProviderHealthy.WithLabelValues(providerID).Set(0)
	}

	m.cfg.Logger.Info("provider health transition",
		"provider", providerID, "from", string(from), "to", string(to))
}

func (m *Monitor) record(providerID string) *record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[providerID]
}
