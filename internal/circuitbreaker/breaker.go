package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"subtranslate/site/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

type State int32

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

type Config struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close,
	// and the number of concurrent half-open probes allowed.
	SuccessThreshold int
	// OpenFor is how long the breaker stays open before probing.
	OpenFor time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenFor:          30 * time.Second,
	}
}

// CircuitBreaker guards a single outbound dependency.
type CircuitBreaker struct {
	name   string
	config Config

	state     atomic.Int32
	failures  atomic.Int64 // consecutive, closed state
	successes atomic.Int64 // consecutive, half-open state
	probes    atomic.Int64 // in-flight half-open probes
	openedAt  atomic.Int64 // unix nanos

	mu      sync.Mutex // serializes transitions
	nowFunc func() time.Time
}

func New(name string, config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if config.OpenFor <= 0 {
		config.OpenFor = DefaultConfig().OpenFor
	}
	cb := &CircuitBreaker{name: name, config: config, nowFunc: time.Now}
	cb.state.Store(int32(StateClosed))
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// Allow reports whether a call may proceed. When needsRelease is true the
// caller holds a half-open probe slot and must call Release when done.
func (cb *CircuitBreaker) Allow() (needsRelease bool, err error) {
	switch State(cb.state.Load()) {
	case StateClosed:
		return false, nil

	case StateOpen:
		elapsed := cb.nowFunc().Sub(time.Unix(0, cb.openedAt.Load()))
		if elapsed < cb.config.OpenFor {
			return false, fmt.Errorf("%w for %s (retry in %v)", ErrOpen, cb.name, (cb.config.OpenFor - elapsed).Round(time.Second))
		}
		cb.mu.Lock()
		if State(cb.state.Load()) == StateOpen {
			cb.transitionTo(StateHalfOpen)
		}
		cb.mu.Unlock()
		return cb.Allow()

	case StateHalfOpen:
		if n := cb.probes.Add(1); int(n) > cb.config.SuccessThreshold {
			cb.probes.Add(-1)
			return false, fmt.Errorf("%w for %s: probe limit reached", ErrOpen, cb.name)
		}
		return true, nil
	}
	return false, fmt.Errorf("circuit breaker %s in unknown state", cb.name)
}

// Release frees a half-open probe slot acquired by Allow.
func (cb *CircuitBreaker) Release() {
	if cb.probes.Add(-1) < 0 {
		cb.probes.Store(0)
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	switch State(cb.state.Load()) {
	case StateClosed:
		cb.failures.Store(0)
	case StateHalfOpen:
		if int(cb.successes.Add(1)) >= cb.config.SuccessThreshold {
			cb.mu.Lock()
			if State(cb.state.Load()) == StateHalfOpen {
				cb.transitionTo(StateClosed)
			}
			cb.mu.Unlock()
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	switch State(cb.state.Load()) {
	case StateClosed:
		if int(cb.failures.Add(1)) >= cb.config.FailureThreshold {
			cb.mu.Lock()
			if State(cb.state.Load()) == StateClosed {
				cb.transitionTo(StateOpen)
			}
			cb.mu.Unlock()
		}
	case StateHalfOpen:
		// any probe failure reopens
		cb.mu.Lock()
		if State(cb.state.Load()) == StateHalfOpen {
			cb.transitionTo(StateOpen)
		}
		cb.mu.Unlock()
	}
}

// transitionTo changes state and resets counters (caller must hold mu).
func (cb *CircuitBreaker) transitionTo(next State) {
	prev := State(cb.state.Load())
	cb.state.Store(int32(next))
	cb.failures.Store(0)
	cb.successes.Store(0)
	if next == StateOpen {
		cb.openedAt.Store(cb.nowFunc().UnixNano())
	}

	metrics.BreakerState.WithLabelValues(cb.name).Set(float64(next))
	metrics.BreakerTransitions.WithLabelValues(cb.name, prev.String(), next.String()).Inc()

	ev := log.Info()
	if next == StateOpen {
		ev = log.Warn()
	}
	ev.Str("dependency", cb.name).
		Str("old_state", prev.String()).
		Str("new_state", next.String()).
		Msg("circuit breaker state transition")
}

func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if State(cb.state.Load()) != StateClosed {
		cb.transitionTo(StateClosed)
	}
	cb.probes.Store(0)
}
