// Package health tracks model endpoint health with a consecutive-failure
// circuit breaker and a background prober.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the reported model health.
type State int

const (
	// StateHealthy means recent calls succeeded.
	StateHealthy State = iota
	// StateDegraded means some recent calls failed but the circuit is
	// still closed.
	StateDegraded
	// StateUnavailable means the circuit is open and calls are rejected.
	StateUnavailable
)

// String returns the stable name for a state.
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	default:
		return "unavailable"
	}
}

// Breaker thresholds.
const (
	// DefaultOpenThreshold is the consecutive failure count that opens
	// the circuit.
	DefaultOpenThreshold = 5
	// DefaultDegradedThreshold is the count past which the state reads
	// degraded.
	DefaultDegradedThreshold = 1
	// DefaultResetTimeout is how long the circuit stays open before one
	// trial call is allowed through.
	DefaultResetTimeout = 300 * time.Second
)

// Snapshot is the health payload surfaced by /health.
type Snapshot struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CircuitOpen         bool      `json:"circuit_open"`
	LastError           string    `json:"last_error,omitempty"`
	LastCheck           time.Time `json:"last_check"`
}

// Monitor is the circuit breaker guarding the model endpoint. Calls ask
// Allow before contacting the model and report the outcome back.
type Monitor struct {
	mu                  sync.Mutex
	consecutiveFailures int
	openedAt            time.Time
	halfOpen            bool
	lastError           string
	lastCheck           time.Time

	openThreshold     int
	degradedThreshold int
	resetTimeout      time.Duration
	now               func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithOpenThreshold overrides the failure count that opens the circuit.
func WithOpenThreshold(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.openThreshold = n
		}
	}
}

// WithResetTimeout overrides the open-circuit cooldown.
func WithResetTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.resetTimeout = d
		}
	}
}

// withClock injects a fake clock in tests.
func withClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		openThreshold:     DefaultOpenThreshold,
		degradedThreshold: DefaultDegradedThreshold,
		resetTimeout:      DefaultResetTimeout,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow reports whether a model call may proceed. When the circuit is
// open it stays closed to callers until the reset timeout elapses, after
// which exactly one trial call is let through (half-open).
func (m *Monitor) Allow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures < m.openThreshold {
		return true
	}
	if m.halfOpen {
		return false
	}
	if m.now().Sub(m.openedAt) >= m.resetTimeout {
		m.halfOpen = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit and clears failure state.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures = 0
	m.halfOpen = false
	m.lastError = ""
	m.lastCheck = m.now()
}

// RecordFailure counts a failure, opening the circuit at the threshold.
// A failed half-open trial restarts the cooldown.
func (m *Monitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++
	if err != nil {
		m.lastError = err.Error()
	}
	m.lastCheck = m.now()

	if m.consecutiveFailures >= m.openThreshold {
		if m.consecutiveFailures == m.openThreshold || m.halfOpen {
			m.openedAt = m.now()
		}
		m.halfOpen = false
	}
}

// State returns the current health classification.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Monitor) stateLocked() State {
	switch {
	case m.consecutiveFailures >= m.openThreshold:
		return StateUnavailable
	case m.consecutiveFailures > m.degradedThreshold:
		return StateDegraded
	default:
		return StateHealthy
	}
}

// Snapshot returns the health payload for handlers.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:               m.stateLocked().String(),
		ConsecutiveFailures: m.consecutiveFailures,
		CircuitOpen:         m.consecutiveFailures >= m.openThreshold,
		LastError:           m.lastError,
		LastCheck:           m.lastCheck,
	}
}

// Pinger is anything that can probe the model endpoint.
type Pinger interface {
	Available(ctx context.Context) bool
}

// Prober periodically probes the model and feeds the monitor, so the
// circuit can close again without waiting for user traffic.
type Prober struct {
	monitor  *Monitor
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewProber creates a prober; interval zero means 30s.
func NewProber(monitor *Monitor, pinger Pinger, interval time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		monitor:  monitor,
		pinger:   pinger,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the probe loop.
func (p *Prober) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.probe(ctx)
			}
		}
	}()
}

func (p *Prober) probe(ctx context.Context) {
	wasOpen := p.monitor.State() == StateUnavailable
	if p.pinger.Available(ctx) {
		p.monitor.RecordSuccess()
		if wasOpen {
			p.logger.Info("model endpoint recovered, circuit closed")
		}
		return
	}
	p.monitor.RecordFailure(nil)
	p.logger.Warn("model endpoint probe failed",
		slog.String("state", p.monitor.State().String()))
}

// Stop halts the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}
