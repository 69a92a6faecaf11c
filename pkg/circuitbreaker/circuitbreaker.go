package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without calling the protected function while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
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

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold    int           // Consecutive failures before opening
	SuccessThreshold    int           // Successes in half-open needed to close
	Timeout             time.Duration // Time spent open before going half-open
	MaxRequestsHalfOpen int           // Concurrent trial requests allowed in half-open
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

type CircuitBreaker struct {
	name   string
	config Config
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenInFlight int
	openedAt         time.Time

	onStateChange func(name string, from, to State)
}

func New(name string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// OnStateChange registers a callback invoked synchronously, outside the breaker lock.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn through the breaker. Rejected calls fail with ErrOpen.
func Execute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := cb.before(); err != nil {
		return zero, err
	}

	result, err := fn()
	cb.after(err == nil)
	if err != nil {
		return zero, err
	}
	return result, nil
}

func (cb *CircuitBreaker) Do(fn func() error) error {
	_, err := Execute(cb, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	var transition func()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrOpen, cb.name)
		}
		transition = cb.setState(StateHalfOpen)
		cb.halfOpenInFlight++
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.maxHalfOpen() {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (half-open)", ErrOpen, cb.name)
		}
		cb.halfOpenInFlight++
	}

	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
	return nil
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	var transition func()

	wasHalfOpen := cb.state == StateHalfOpen
	if wasHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if success {
		cb.failures = 0
		if wasHalfOpen {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				transition = cb.setState(StateClosed)
			}
		}
	} else {
		cb.successes = 0
		cb.failures++
		if wasHalfOpen || (cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold) {
			transition = cb.setState(StateOpen)
		}
	}

	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}

func (cb *CircuitBreaker) maxHalfOpen() int {
	if cb.config.MaxRequestsHalfOpen < 1 {
		return 1
	}
	return cb.config.MaxRequestsHalfOpen
}

// setState must be called with mu held. It returns the callback to run after unlocking.
func (cb *CircuitBreaker) setState(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}

	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to != StateHalfOpen {
		cb.halfOpenInFlight = 0
	}
	if to == StateOpen {
		cb.openedAt = cb.now()
	}

	if cb.onStateChange == nil {
		return nil
	}
	fn, name := cb.onStateChange, cb.name
	return func() { fn(name, from, to) }
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	transition := cb.setState(StateClosed)
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}
