package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast with ErrOpen
	StateHalfOpen              // a limited number of probe calls pass through
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

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold int           // consecutive failures that open the breaker
	Cooldown         time.Duration // time spent open before probing
	HalfOpenProbes   int           // successful probes needed to close again
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Breaker guards calls to a flaky dependency.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	inFlight int
	openedAt time.Time

	onStateChange func(from, to State)
}

// New creates a breaker. Non-positive config values fall back to defaults.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers a callback invoked synchronously on every transition.
// The callback must not call back into the breaker.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Execute runs fn unless the breaker is open. The error from fn is returned
// unchanged.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}

	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()
	switch b.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenProbes {
			return false
		}
		b.inFlight++
	}
	return true
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.inFlight--
		if !success {
			b.transition(StateOpen)
			return
		}
		b.probes++
		if b.probes >= b.cfg.HalfOpenProbes {
			b.transition(StateClosed)
		}
		return
	}

	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
	}
}

// maybeHalfOpen moves an open breaker to half-open once the cooldown elapsed.
// Caller holds b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(StateHalfOpen)
	}
}

// Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.probes = 0
	b.inFlight = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
