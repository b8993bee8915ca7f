package redis

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // normal operation — cache calls pass through
	StateOpen     State = 1 // tripped — cache calls rejected immediately
	StateHalfOpen State = 2 // probing — one call allowed through
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

// ErrBreakerOpen is returned while the breaker rejects cache calls.
var ErrBreakerOpen = errors.New("cache circuit breaker is open")

// breaker shields the reconciler from a down Redis: after maxFailures
// consecutive failures it opens and rejects cache calls for resetTimeout,
// so bar fetches degrade to "cache empty" instead of stalling on every
// request. After the timeout one probe call is let through; success closes
// the breaker, failure reopens it.
type breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	resetAfter  time.Duration
	lastFailure time.Time

	onStateChange func(from, to State) // optional, used for metrics
}

func newBreaker(maxFailures int, resetAfter time.Duration) *breaker {
	return &breaker{
		maxFailures: maxFailures,
		resetAfter:  resetAfter,
		state:       StateClosed,
	}
}

// do runs fn unless the breaker is open and the reset timeout has not
// elapsed, in which case it returns ErrBreakerOpen without calling fn.
func (b *breaker) do(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.lastFailure) <= b.resetAfter {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.transition(StateHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
		return err
	}
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
	return nil
}

func (b *breaker) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) transition(to State) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.onStateChange != nil && from != to {
		b.onStateChange(from, to)
	}
}
