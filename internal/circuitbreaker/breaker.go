package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

type State int

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "closed"
}

// CircuitBreaker counts consecutive failures of one dependency. After
// failureThreshold failures it opens for timeout, then lets calls through
// half-open until successThreshold consecutive successes close it again.
// A failure while half-open reopens it.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	now              func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openUntil time.Time
}

func New(failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: max(failureThreshold, 1),
		successThreshold: max(successThreshold, 1),
		timeout:          timeout,
		now:              time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// State reports the current state, moving open to half-open once the
// timeout has passed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && !cb.now().Before(cb.openUntil) {
		cb.state = StateHalfOpen
		cb.successes = 0
	}
	return cb.state
}

// Execute runs action unless the breaker is open.
func (cb *CircuitBreaker) Execute(action func() error) error {
	cb.mu.Lock()
	if cb.currentState() == StateOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	opErr := action()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if opErr != nil {
		cb.onFailure()
		return opErr
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.successes = 0
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openUntil = cb.now().Add(cb.timeout)
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0
	if cb.state != StateHalfOpen {
		return
	}
	cb.successes++
	if cb.successes >= cb.successThreshold {
		cb.state = StateClosed
		cb.successes = 0
	}
}
