// Package resilience provides a circuit breaker for calls to the dashboard
// backend.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"    // Normal operation
	StateOpen     State = "OPEN"      // Failing, rejecting calls
	StateHalfOpen State = "HALF_OPEN" // Probing whether the backend recovered
)

// ErrCircuitOpen is returned without calling fn while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that open the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// IsFailure decides which errors count; nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called with the lock released.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern. In the half-open state a
// single probe runs at a time; other calls are rejected until it finishes.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool

	totalCalls    int64
	totalFailures int64
	totalRejected int64
}

// New creates a closed breaker.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	var from State
	changed := false

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.totalRejected++
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		from, changed = b.state, true
		b.transition(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.totalRejected++
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.totalCalls++
	b.mu.Unlock()

	if changed {
		b.notify(from, StateHalfOpen)
	}
	return nil
}

func (b *Breaker) record(err error) {
	failed := err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err))

	b.mu.Lock()
	from := b.state
	if b.state == StateHalfOpen {
		b.probing = false
	}

	if failed {
		b.totalFailures++
		switch b.state {
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.transition(StateOpen)
			}
		case StateHalfOpen:
			b.transition(StateOpen)
		}
	} else {
		switch b.state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// State returns the current circuit state. An open circuit whose cooldown
// has passed still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Stats holds circuit breaker statistics.
type Stats struct {
	Name          string
	State         State
	TotalCalls    int64
	TotalFailures int64
	TotalRejected int64
}

// Stats returns circuit breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:          b.name,
		State:         b.state,
		TotalCalls:    b.totalCalls,
		TotalFailures: b.totalFailures,
		TotalRejected: b.totalRejected,
	}
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.transition(StateClosed)
	b.probing = false
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}
