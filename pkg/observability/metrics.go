package observability

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Counters
	researchRunsTotal       metric.Int64Counter
	stepsTotal              metric.Int64Counter
	nonConvergenceTotal     metric.Int64Counter
	llmRequestsTotal        metric.Int64Counter
	llmTokensUsedTotal      metric.Int64Counter
	providerFetchesTotal    metric.Int64Counter
	circuitTransitionsTotal metric.Int64Counter

	// Histograms
	researchDuration      metric.Float64Histogram
	researchIterations    metric.Int64Histogram
	stepDuration          metric.Float64Histogram
	llmRequestDuration    metric.Float64Histogram
	providerFetchDuration metric.Float64Histogram

	activeResearchRequests metric.Int64ObservableGauge
	activeResearchCount    int64
}

// NewMetrics creates and initializes all metrics
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{
		meter: meter,
	}

	var err error

	m.researchRunsTotal, err = meter.Int64Counter(
		"research_runs_total",
		metric.WithDescription("Total number of research runs started"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.stepsTotal, err = meter.Int64Counter(
		"research_steps_total",
		metric.WithDescription("Total number of step executions by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.nonConvergenceTotal, err = meter.Int64Counter(
		"research_non_convergence_total",
		metric.WithDescription("Runs aborted because the iteration budget ran out"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.llmRequestsTotal, err = meter.Int64Counter(
		"llm_requests_total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.llmTokensUsedTotal, err = meter.Int64Counter(
		"llm_tokens_used_total",
		metric.WithDescription("Total number of LLM tokens used"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.providerFetchesTotal, err = meter.Int64Counter(
		"provider_fetches_total",
		metric.WithDescription("Total number of evidence provider fetches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.circuitTransitionsTotal, err = meter.Int64Counter(
		"provider_circuit_transitions_total",
		metric.WithDescription("Circuit breaker state transitions per provider"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.researchDuration, err = meter.Float64Histogram(
		"research_duration_seconds",
		metric.WithDescription("Duration of research runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.researchIterations, err = meter.Int64Histogram(
		"research_iterations",
		metric.WithDescription("Scheduler iterations consumed per research run"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.stepDuration, err = meter.Float64Histogram(
		"research_step_duration_seconds",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.llmRequestDuration, err = meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("Duration of LLM requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.providerFetchDuration, err = meter.Float64Histogram(
		"provider_fetch_duration_seconds",
		metric.WithDescription("Duration of evidence provider fetches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.activeResearchRequests, err = meter.Int64ObservableGauge(
		"active_research_runs",
		metric.WithDescription("Number of research runs in flight"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(atomic.LoadInt64(&m.activeResearchCount))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordResearchStart records a new research run
func (m *Metrics) RecordResearchStart(ctx context.Context) {
	m.researchRunsTotal.Add(ctx, 1)
	atomic.AddInt64(&m.activeResearchCount, 1)
}

// RecordResearchComplete records completion of a research run.
// status is "completed", "not_converged", "cancelled" or "error".
func (m *Metrics) RecordResearchComplete(ctx context.Context, duration time.Duration, iterations int, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.researchDuration.Record(ctx, duration.Seconds(), attrs)
	m.researchIterations.Record(ctx, int64(iterations), attrs)
	if status == "not_converged" {
		m.nonConvergenceTotal.Add(ctx, 1)
	}
	atomic.AddInt64(&m.activeResearchCount, -1)
}

// RecordStep records one step execution and the marker it produced
func (m *Metrics) RecordStep(ctx context.Context, step, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status),
	)
	m.stepsTotal.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLLMRequest records an LLM request
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, model string, promptTokens, completionTokens int64, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("status", status),
	)

	m.llmRequestsTotal.Add(ctx, 1, attrs)
	m.llmRequestDuration.Record(ctx, duration.Seconds(), attrs)

	if success {
		m.llmTokensUsedTotal.Add(ctx, promptTokens,
			metric.WithAttributes(
				attribute.String("model", model),
				attribute.String("type", "prompt"),
			),
		)
		m.llmTokensUsedTotal.Add(ctx, completionTokens,
			metric.WithAttributes(
				attribute.String("model", model),
				attribute.String("type", "completion"),
			),
		)
	}
}

// RecordProviderFetch records an evidence provider fetch
func (m *Metrics) RecordProviderFetch(ctx context.Context, provider string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.providerFetchesTotal.Add(ctx, 1, attrs)
	m.providerFetchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCircuitTransition records a breaker state change for a provider
func (m *Metrics) RecordCircuitTransition(ctx context.Context, provider, from, to string) {
	m.circuitTransitionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// ActiveResearchCount returns the number of research runs in flight
func (m *Metrics) ActiveResearchCount() int64 {
	return atomic.LoadInt64(&m.activeResearchCount)
}
