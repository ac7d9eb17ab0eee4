package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/evidence"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
)

// ErrCircuitOpen is returned by a guarded provider while its circuit is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	// CircuitClosed allows requests to pass through
	CircuitClosed CircuitBreakerState = "closed"
	// CircuitOpen blocks all requests
	CircuitOpen CircuitBreakerState = "open"
	// CircuitHalfOpen allows trial requests after the open period
	CircuitHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreaker stops calling an evidence source that keeps failing. Runs
// share one breaker per provider, so a dead upstream fails fast instead of
// burning every run's step timeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     int
	lastFailure  time.Time
	state        CircuitBreakerState
	successCount int

	failureThreshold int
	successThreshold int
	openDuration     time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a breaker from configuration, filling in the
// defaults for unset values.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openDuration:     config.MustDuration(cfg.OpenDuration),
		now:              time.Now,
	}
	if cb.failureThreshold <= 0 {
		cb.failureThreshold = 5
	}
	if cb.successThreshold <= 0 {
		cb.successThreshold = 3
	}
	if cb.openDuration <= 0 {
		cb.openDuration = 30 * time.Second
	}
	return cb
}

// Allow reports whether a call may proceed, moving an expired open circuit
// to half-open.
func (cb *CircuitBreaker) Allow() (allowed bool, from, to CircuitBreakerState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from = cb.state
	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailure) >= cb.openDuration {
		cb.state = CircuitHalfOpen
		cb.successCount = 0
	}
	return cb.state != CircuitOpen, from, cb.state
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() (from, to CircuitBreakerState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from = cb.state
	switch cb.state {
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successCount = 0
		}
	case CircuitClosed:
		cb.failures = 0
	}
	return from, cb.state
}

// RecordFailure records a failed call
func (cb *CircuitBreaker) RecordFailure() (from, to CircuitBreakerState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from = cb.state
	cb.failures++
	cb.lastFailure = cb.now()

	switch {
	case cb.state == CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successCount = 0
	case cb.failures >= cb.failureThreshold:
		cb.state = CircuitOpen
	}
	return from, cb.state
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset returns the breaker to the closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successCount = 0
	cb.lastFailure = time.Time{}
}

// GuardedProvider wraps an evidence provider with a circuit breaker
type GuardedProvider struct {
	domain.EvidenceProvider
	breaker   *CircuitBreaker
	telemetry *observability.Telemetry
	logger    *observability.StructuredLogger
}

// NewGuardedProvider wraps provider
func NewGuardedProvider(provider domain.EvidenceProvider, breaker *CircuitBreaker, telemetry *observability.Telemetry) *GuardedProvider {
	return &GuardedProvider{
		EvidenceProvider: provider,
		breaker:          breaker,
		telemetry:        ensureTelemetry(telemetry),
		logger:           observability.NewStructuredLogger("circuit-breaker"),
	}
}

// Breaker exposes the provider's breaker
func (g *GuardedProvider) Breaker() *CircuitBreaker {
	return g.breaker
}

// Fetch calls the wrapped provider unless the circuit is open. Context
// cancellation is not counted as an upstream failure.
func (g *GuardedProvider) Fetch(ctx context.Context, entity domain.Entity) (domain.Evidence, error) {
	allowed, from, to := g.breaker.Allow()
	g.transition(ctx, from, to)
	if !allowed {
		return nil, fmt.Errorf("%s: %w", g.Name(), ErrCircuitOpen)
	}

	ev, err := g.EvidenceProvider.Fetch(ctx, entity)
	switch {
	case err == nil:
		from, to = g.breaker.RecordSuccess()
	case ctx.Err() != nil:
		return ev, err
	default:
		from, to = g.breaker.RecordFailure()
	}
	g.transition(ctx, from, to)
	return ev, err
}

func (g *GuardedProvider) transition(ctx context.Context, from, to CircuitBreakerState) {
	if from == to {
		return
	}
	g.logger.Warn(ctx, "Circuit breaker state changed", map[string]interface{}{
		"provider": g.Name(),
		"from":     string(from),
		"to":       string(to),
	})
	g.telemetry.Metrics().RecordCircuitTransition(ctx, g.Name(), string(from), string(to))
}

// GuardRegistry returns a registry whose providers share one breaker each
func GuardRegistry(registry *evidence.Registry, cfg config.CircuitBreakerConfig, telemetry *observability.Telemetry) (*evidence.Registry, error) {
	guarded := evidence.NewRegistry()
	for _, p := range registry.List() {
		if err := guarded.Register(NewGuardedProvider(p, NewCircuitBreaker(cfg), telemetry)); err != nil {
			return nil, err
		}
	}
	return guarded, nil
}
