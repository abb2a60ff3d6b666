// Package circuitbreaker stops calls to a failing upstream for a cool-down
// period. The language-model client runs every completion through one, so AI
// analysis fails fast and degrades while the provider is down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the open timeout passes.
	StateOpen
	// StateHalfOpen lets a few trial calls through.
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

var (
	// ErrCircuitOpen is returned without calling the upstream while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when all half-open trial slots are taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Settings configure a breaker. Zero values fall back to defaults.
type Settings struct {
	Name string

	// FailureThreshold consecutive failures open the breaker. Default 5.
	FailureThreshold int

	// SuccessThreshold consecutive half-open successes close it. Default 1.
	SuccessThreshold int

	// OpenTimeout is how long the breaker stays open. Default 30s.
	OpenTimeout time.Duration

	// HalfOpenMax concurrent trial calls. Default 1.
	HalfOpenMax int

	// OnStateChange is called with the lock held; it must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count. By default every error except
	// context.Canceled does: a caller giving up says nothing about the upstream.
	IsFailure func(error) bool

	// Now is the clock, for tests.
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 1
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenMax <= 0 {
		s.HalfOpenMax = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Snapshot is a point-in-time view of a breaker, used by health checks.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveFailures int
	TotalRequests       int
	TotalFailures       int
	OpenedAt            time.Time
}

// CircuitBreaker guards calls to one upstream. Safe for concurrent use.
type CircuitBreaker struct {
	settings Settings

	mu          sync.Mutex
	state       State
	failures    int // consecutive
	successes   int // consecutive, half-open only
	inFlight    int // half-open trials
	openedAt    time.Time
	requests    int
	totalFailed int
}

// New creates a closed breaker.
func New(settings Settings) *CircuitBreaker {
	return &CircuitBreaker{settings: settings.withDefaults()}
}

// LLMBreaker returns the breaker used in front of the language-model provider.
// One half-open success closes it again.
func LLMBreaker(failureThreshold int, openTimeout time.Duration, halfOpenMax int, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:             "llm",
		FailureThreshold: failureThreshold,
		SuccessThreshold: 1,
		OpenTimeout:      openTimeout,
		HalfOpenMax:      halfOpenMax,
		OnStateChange:    onStateChange,
	})
}

// Execute calls fn unless the breaker rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.record(trial, err)
	return err
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.settings.Now().Sub(cb.openedAt) >= cb.settings.OpenTimeout {
		cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.settings.HalfOpenMax {
			return false, ErrTooManyRequests
		}
		cb.inFlight++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	if trial && cb.inFlight > 0 {
		cb.inFlight--
	}

	if err != nil && cb.settings.IsFailure(err) {
		cb.totalFailed++
		cb.failures++
		cb.successes = 0

		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.settings.FailureThreshold) {
			cb.openedAt = cb.settings.Now()
			cb.transition(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.settings.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.successes = 0
	cb.inFlight = 0
	if to == StateClosed {
		cb.failures = 0
	}

	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// State returns the current state. An open breaker whose timeout has passed
// still reports open until the next call tries it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the current counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:                cb.settings.Name,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		TotalRequests:       cb.requests,
		TotalFailures:       cb.totalFailed,
		OpenedAt:            cb.openedAt,
	}
}
