package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ncerr "connboot/internal/errors"
)

// State is the position of a CircuitBreaker.
type State int

const (
	StateClosed   State = iota // calls go through
	StateOpen                  // calls are refused until ResetTimeout passes
	StateHalfOpen              // trial calls decide between closed and open
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

// CircuitBreakerConfig configures a [CircuitBreaker].  Zero fields
// take the values of DefaultCircuitBreakerConfig.
type CircuitBreakerConfig struct {
	MaxFailures  int           // consecutive failures that open the circuit
	ResetTimeout time.Duration // time spent open before a trial call
	HalfOpenMax  int           // trial successes needed to close again

	// IsFailure decides which errors count against the circuit.  The
	// default counts everything except a cancelled or expired context,
	// which says nothing about the upstream.
	IsFailure func(err error) bool

	// OnStateChange runs under the breaker's lock on every transition.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig suits an SSH gateway: five failed
// sessions in a row open the circuit for thirty seconds.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, HalfOpenMax: 2}
}

// OpenError is returned by Execute while the circuit is open.  It
// matches errors.ErrCircuitOpen.
type OpenError struct {
	Failures int
	RetryIn  time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%v: %d consecutive failures, retry in %v",
		ncerr.ErrCircuitOpen, e.Failures, e.RetryIn.Truncate(time.Second))
}

func (e *OpenError) Unwrap() error { return ncerr.ErrCircuitOpen }

// CircuitBreaker refuses calls to an upstream that keeps failing.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	trials   int
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker.  cfg may be nil.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	c := *DefaultCircuitBreakerConfig()
	if cfg != nil {
		if cfg.MaxFailures > 0 {
			c.MaxFailures = cfg.MaxFailures
		}
		if cfg.ResetTimeout > 0 {
			c.ResetTimeout = cfg.ResetTimeout
		}
		if cfg.HalfOpenMax > 0 {
			c.HalfOpenMax = cfg.HalfOpenMax
		}
		c.IsFailure = cfg.IsFailure
		c.OnStateChange = cfg.OnStateChange
	}
	if c.IsFailure == nil {
		c.IsFailure = countsAgainstCircuit
	}
	return &CircuitBreaker{cfg: c, now: time.Now}
}

func countsAgainstCircuit(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Execute calls fn unless the circuit is open, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State reports the current position.  An open circuit whose timeout
// has passed still reads open until the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.trials = 0, 0
	cb.moveTo(StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if waited := cb.now().Sub(cb.openedAt); waited < cb.cfg.ResetTimeout {
		return &OpenError{Failures: cb.failures, RetryIn: cb.cfg.ResetTimeout - waited}
	}
	cb.trials = 0
	cb.moveTo(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil:
		if cb.state == StateHalfOpen {
			cb.trials++
			if cb.trials < cb.cfg.HalfOpenMax {
				return
			}
		}
		cb.failures = 0
		cb.moveTo(StateClosed)
	case cb.cfg.IsFailure(err):
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.now()
			cb.moveTo(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
