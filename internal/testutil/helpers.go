package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTimeout provides a standard timeout for test contexts
const TestTimeout = 5 * time.Second

// NewTestContext creates a context with standard test timeout
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// NewTestRequest creates a test research request for the given company
func NewTestRequest(company string) *domain.ResearchRequest {
	return &domain.ResearchRequest{
		ID:     "test-req-1",
		Target: domain.Entity{Name: company},
		Requester: domain.RequesterContext{
			Name:            "Dana",
			Role:            "Account Executive",
			Company:         "Widgets Inc",
			ProductService:  "inventory analytics",
			ResearchPurpose: "first sales call",
		},
		Timestamp: time.Now(),
	}
}

// FullCatalogue lists the reference catalogue with both plan variants
func FullCatalogue() []domain.StepName {
	return []domain.StepName{
		domain.StepWebSearch,
		domain.StepFinancial,
		domain.StepEncyclopedia,
		domain.StepNews,
		domain.StepVerification,
		domain.StepSynthesis,
		domain.StepPersonalizedPlan,
		domain.StepGenericPlan,
	}
}

// SetupTestTelemetry creates test telemetry with span recorder and metric reader
func SetupTestTelemetry(spanRecorder *tracetest.SpanRecorder, metricReader metric.Reader) *observability.Telemetry {
	tracerProvider := trace.NewTracerProvider(
		trace.WithSpanProcessor(spanRecorder),
	)
	otel.SetTracerProvider(tracerProvider)

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metricReader),
	)
	otel.SetMeterProvider(meterProvider)

	return observability.NewTelemetryFromProviders(
		&observability.TelemetryConfig{
			ServiceName:    "test-service",
			ServiceVersion: "test",
			Environment:    "test",
			EnableTracing:  true,
			EnableMetrics:  true,
			SamplingRate:   1.0,
		},
		tracerProvider,
		meterProvider,
	)
}

// NewNoopTelemetry returns telemetry with tracing and metrics disabled
func NewNoopTelemetry(t *testing.T) *observability.Telemetry {
	t.Helper()
	telemetry, err := observability.NewTelemetry(&observability.TelemetryConfig{
		ServiceName:   "test-service",
		EnableTracing: false,
		EnableMetrics: false,
	})
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}
	return telemetry
}
