// Package resilience holds the failure-handling primitives shared by the bot:
// a circuit breaker for the ASR engine, retries for Telegram downloads and a
// rate limiter for replies.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls for the open period. Then exactly one trial call is let through: its
// success closes the breaker, its failure opens it again at once.
type CircuitBreaker struct {
	maxFailures uint32
	openFor     time.Duration
	onChange    func(from, to State)
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures uint32
	openedAt time.Time
	trial    bool
}

type BreakerOption func(*CircuitBreaker)

// WithStateChange registers fn to be called on every transition. It runs
// with the breaker locked and must not call back into it.
func WithStateChange(fn func(from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

func NewCircuitBreaker(maxFailures uint32, openFor time.Duration, opts ...BreakerOption) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}

	cb := &CircuitBreaker{
		maxFailures: maxFailures,
		openFor:     openFor,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the breaker rejects the call with ErrCircuitOpen.
// fn is called at most once.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn()
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.openFor {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.trial = true
	case StateHalfOpen:
		// A trial call is already in flight.
		if cb.trial {
			return ErrCircuitOpen
		}
		cb.trial = true
	}
	return nil
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.trial = false
		if err != nil {
			cb.trip()
			return
		}
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.failures = 0
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
