package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests while half-open")
)

// State of a breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero values pick the defaults below.
type Settings struct {
	// MaxRequests admitted while half-open; also the successes needed to close
	MaxRequests uint32
	// Interval after which closed-state counts reset
	Interval time.Duration
	// Timeout spent open before probing
	Timeout time.Duration
	// ReadyToTrip decides, after a failure while closed, whether to open
	ReadyToTrip func(counts Counts) bool
	// OnStateChange observes transitions
	OnStateChange func(name string, from, to State)
	// Now is the clock; tests replace it
	Now func() time.Time
}

// Counts within the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultTrip opens after five consecutive failures.
func DefaultTrip(counts Counts) bool {
	return counts.ConsecutiveFailures >= 5
}

// Breaker guards calls to one remote dependency.
type Breaker struct {
	name string
	cfg  Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	generation uint64
	expiry     time.Time
}

// New creates a closed breaker.
func New(name string, cfg Settings) *Breaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultTrip
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	b := &Breaker{name: name, cfg: cfg, state: StateClosed}
	b.expiry = cfg.Now().Add(cfg.Interval)
	return b
}

// Name of the guarded dependency
func (b *Breaker) Name() string {
	return b.name
}

// State advances time-based transitions and returns the result.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick(b.cfg.Now())
	return b.state
}

// Counts returns a snapshot
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker admits it and records the outcome.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	gen, err := b.admit()
	if err != nil {
		return zero, err
	}

	ok := false
	defer func() { b.record(gen, ok) }()

	v, err := fn()
	ok = err == nil
	return v, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick(b.cfg.Now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.cfg.MaxRequests:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) record(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	b.tick(now)
	if gen != b.generation {
		return
	}

	if ok {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.MaxRequests {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch b.state {
	case StateClosed:
		if b.cfg.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// tick applies expiry-driven changes; caller holds mu.
func (b *Breaker) tick(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.newGeneration()
			b.expiry = now.Add(b.cfg.Interval)
		}
	case StateOpen:
		if now.After(b.expiry) {
			b.transition(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.newGeneration()

	switch to {
	case StateClosed:
		b.expiry = now.Add(b.cfg.Interval)
	case StateOpen:
		b.expiry = now.Add(b.cfg.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) newGeneration() {
	b.generation++
	b.counts = Counts{}
}
