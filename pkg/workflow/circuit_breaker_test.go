package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ncolesummers/company-research-agent/internal/testutil"
	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(failures, successes int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(config.CircuitBreakerConfig{
		FailureThreshold: failures,
		SuccessThreshold: successes,
		OpenDuration:     "1m",
	})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitBreakerConfig{})
	assert.Equal(t, 5, cb.failureThreshold)
	assert.Equal(t, 3, cb.successThreshold)
	assert.Equal(t, 30*time.Second, cb.openDuration)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	cb, clock := newTestBreaker(2, 2)

	from, to := cb.RecordFailure()
	assert.Equal(t, CircuitClosed, from)
	assert.Equal(t, CircuitClosed, to)

	_, to = cb.RecordFailure()
	assert.Equal(t, CircuitOpen, to)

	allowed, _, _ := cb.Allow()
	assert.False(t, allowed, "open circuit blocks calls")

	clock.Advance(time.Minute)
	allowed, from, to = cb.Allow()
	assert.True(t, allowed)
	assert.Equal(t, CircuitOpen, from)
	assert.Equal(t, CircuitHalfOpen, to)

	// one failure while half-open reopens
	_, to = cb.RecordFailure()
	assert.Equal(t, CircuitOpen, to)

	clock.Advance(time.Minute)
	cb.Allow()
	_, to = cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, to)
	_, to = cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, to)

	cb.RecordFailure()
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.failures)
}

func TestGuardedProvider_Fetch(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	metricReader := sdkmetric.NewManualReader()
	telemetry := testutil.SetupTestTelemetry(spanRecorder, metricReader)

	provider := &testutil.MockProvider{EvidenceKind: domain.EvidenceNews, Err: errors.New("HTTP 500")}
	breaker, _ := newTestBreaker(2, 1)
	guarded := NewGuardedProvider(provider, breaker, telemetry)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := guarded.Fetch(ctx, domain.Entity{Name: "Acme Corp"})
		assert.EqualError(t, err, "HTTP 500")
	}
	assert.Equal(t, CircuitOpen, guarded.Breaker().State())

	_, err := guarded.Fetch(ctx, domain.Entity{Name: "Acme Corp"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, provider.Calls(), "open circuit does not reach the provider")

	var rm metricdata.ResourceMetrics
	require.NoError(t, metricReader.Collect(ctx, &rm))
	assert.True(t, hasMetric(rm, "provider_circuit_transitions_total"))
}

func TestGuardedProvider_CancellationIsNotAFailure(t *testing.T) {
	provider := &testutil.MockProvider{EvidenceKind: domain.EvidenceWeb, Delay: time.Second}
	breaker, _ := newTestBreaker(1, 1)
	guarded := NewGuardedProvider(provider, breaker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := guarded.Fetch(ctx, domain.Entity{Name: "Acme Corp"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, breaker.State())
}

func TestGuardRegistry(t *testing.T) {
	registry := evidence.NewRegistry()
	for _, p := range testutil.SampleProviders() {
		require.NoError(t, registry.Register(p))
	}

	guarded, err := GuardRegistry(registry, config.CircuitBreakerConfig{Enabled: true}, nil)
	require.NoError(t, err)
	require.Len(t, guarded.List(), 4)

	for _, p := range guarded.List() {
		g, ok := p.(*GuardedProvider)
		require.True(t, ok)
		assert.Equal(t, CircuitClosed, g.Breaker().State())
	}

	web, err := guarded.Get(domain.EvidenceWeb)
	require.NoError(t, err)
	assert.Equal(t, "mock-web", web.Name())
}

func hasMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}
