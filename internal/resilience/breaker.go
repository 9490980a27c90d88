// Package resilience guards the outbound switch command with a circuit
// breaker. A host that stops acking would otherwise stall every scan for
// the full ack timeout; after a few consecutive failures the breaker
// fails switches fast until a probe succeeds.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// reset timeout has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit is open")

// State is a breaker's operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the reset timeout.
	StateOpen

	// StateHalfOpen lets a single probe through; its outcome decides
	// whether the breaker closes or re-opens.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields take defaults.
type Config struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is the consecutive-failure count that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing a
	// probe. Default: 30s.
	ResetTimeout time.Duration
}

// Breaker is a three-state circuit breaker (closed, open, half-open)
// with a single-probe half-open state. Safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	clock        func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
}

// New builds a [Breaker]. A nil clock means [time.Now].
func New(cfg Config, clock func() time.Time) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		clock:        clock,
	}
}

// Do runs fn if the breaker allows it. In the open state it returns
// [ErrOpen] without calling fn; after the reset timeout one probe call is
// let through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.clock().Sub(b.lastFailure) < b.resetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = false
		slog.Info("circuit half-open, probing", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}
	probe := b.state == StateHalfOpen
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probe)
	} else {
		b.onSuccess(probe)
	}
	return err
}

// State returns the breaker's current mode.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// onFailure updates accounting after a failed call. Caller holds b.mu.
func (b *Breaker) onFailure(probe bool) {
	b.lastFailure = b.clock()
	if probe {
		b.state = StateOpen
		b.probing = false
		slog.Warn("circuit re-opened, probe failed", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = StateOpen
		slog.Warn("circuit opened", "name", b.name, "failures", b.failures)
	}
}

// onSuccess updates accounting after a successful call. Caller holds b.mu.
func (b *Breaker) onSuccess(probe bool) {
	if probe {
		slog.Info("circuit closed, probe succeeded", "name", b.name)
	}
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
