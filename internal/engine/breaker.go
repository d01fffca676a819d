package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/reviewlens/reviewlens/internal/metrics"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateHalfOpen
	stateOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// ErrorThreshold is the failure percentage over the rolling window that
	// trips the breaker.
	ErrorThreshold float64
	// MinRequests is how many calls the window must hold before the rate is
	// evaluated at all.
	MinRequests int
	// Window is the length of the rolling error-rate window.
	Window time.Duration
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenProbes is how many probe calls half-open admits.
	HalfOpenProbes int
}

// DefaultBreakerConfig returns the shipped defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ErrorThreshold: 50.0,
		MinRequests:    5,
		Window:         30 * time.Second,
		ResetTimeout:   60 * time.Second,
		HalfOpenProbes: 1,
	}
}

// Breaker is a process-local three-state circuit breaker shared by every
// concurrent call to the engine. State never leaves the process: when the
// service runs as replicas, each replica protects itself independently.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       breakerState
	windowStart time.Time
	total       int
	failures    int
	openedAt    time.Time
	probes      int
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 50.0
	}
	if cfg.MinRequests < 1 {
		cfg.MinRequests = 1
	}
	if cfg.HalfOpenProbes < 1 {
		cfg.HalfOpenProbes = 1
	}
	b := &Breaker{cfg: cfg, now: time.Now}
	b.setGauge()
	return b
}

// Allow reports whether a call may proceed. It returns ErrUnavailable while
// the breaker is open or the half-open probe budget is spent.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrUnavailable
		}
		b.transition(stateHalfOpen)
		b.probes = 0
		fallthrough
	case stateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrUnavailable
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateHalfOpen:
		if success {
			b.transition(stateClosed)
			b.resetWindow()
			return
		}
		b.trip()
	case stateClosed:
		b.roll()
		b.total++
		if !success {
			b.failures++
		}
		if b.total >= b.cfg.MinRequests {
			rate := float64(b.failures) / float64(b.total) * 100
			if rate >= b.cfg.ErrorThreshold {
				b.trip()
			}
		}
	default:
		// Outcome of a call dispatched before the breaker opened; ignore.
	}
}

// State returns the current state name, for logs and health output.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// roll resets the counters once the window has elapsed.
func (b *Breaker) roll() {
	now := b.now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.cfg.Window {
		b.windowStart = now
		b.total = 0
		b.failures = 0
	}
}

func (b *Breaker) resetWindow() {
	b.windowStart = b.now()
	b.total = 0
	b.failures = 0
}

func (b *Breaker) trip() {
	b.transition(stateOpen)
	b.openedAt = b.now()
}

func (b *Breaker) transition(to breakerState) {
	if b.state == to {
		return
	}
	slog.Warn("circuit breaker transition", "from", b.state.String(), "to", to.String())
	b.state = to
	b.setGauge()
}

func (b *Breaker) setGauge() {
	switch b.state {
	case stateClosed:
		metrics.BreakerState.Set(0)
	case stateHalfOpen:
		metrics.BreakerState.Set(1)
	default:
		metrics.BreakerState.Set(2)
	}
}
