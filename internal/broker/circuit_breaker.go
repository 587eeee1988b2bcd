package broker

import (
	"sync"
	"time"

	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0 // calls pass through
	BreakerOpen     BreakerState = 1 // calls are rejected immediately
	BreakerHalfOpen BreakerState = 2 // one probe call is allowed through
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New(errors.ErrCodeBrokerRequest, "circuit breaker is open")

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls for resetTimeout. It then lets one probe through; a successful probe
// closes it, a failed one reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	now          func() time.Time

	// IsFailure decides which errors count towards tripping. Nil counts every error.
	IsFailure func(err error) bool
	// IsIgnored marks errors that neither count as a failure nor reset the
	// failure count, such as a caller giving up.
	IsIgnored func(err error) bool
	// OnStateChange is called on every transition, with the lock held.
	OnStateChange func(from, to BreakerState)
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		mu:            sync.Mutex{},
		state:         BreakerClosed,
		failures:      0,
		maxFailures:   maxFailures,
		resetTimeout:  resetTimeout,
		openedAt:      time.Time{},
		now:           time.Now,
		IsFailure:     nil,
		IsIgnored:     nil,
		OnStateChange: nil,
	}
}

// Execute runs fn through the breaker. It returns ErrCircuitOpen without
// calling fn while the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()

	if cb.state == BreakerOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()

			return ErrCircuitOpen
		}

		cb.transition(BreakerHalfOpen)
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.IsIgnored != nil && cb.IsIgnored(err) {
		return err
	}

	if err != nil && cb.counts(err) {
		cb.failures++

		if cb.state == BreakerHalfOpen || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			cb.transition(BreakerOpen)
		}

		return err
	}

	if cb.state == BreakerHalfOpen {
		cb.transition(BreakerClosed)
	}

	cb.failures = 0

	return err
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

func (cb *CircuitBreaker) counts(err error) bool {
	if cb.IsFailure == nil {
		return true
	}

	return cb.IsFailure(err)
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	if to == BreakerClosed {
		cb.failures = 0
	}

	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
