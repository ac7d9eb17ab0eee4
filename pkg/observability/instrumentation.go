package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentStep wraps a pipeline step with a span and step metrics.
// fn reports the marker the step produced ("succeeded" or "failed").
func (t *Telemetry) InstrumentStep(ctx context.Context, step, category string, fn func(context.Context) (status string)) string {
	ctx, span := t.StartSpan(ctx, fmt.Sprintf("research.step.%s", step),
		trace.WithAttributes(
			attribute.String("step.name", step),
			attribute.String("step.category", category),
		),
	)
	defer span.End()

	startTime := time.Now()
	status := fn(ctx)
	duration := time.Since(startTime)

	if status == "failed" {
		span.SetStatus(codes.Error, "step failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.String("step.status", status),
		attribute.Float64("duration.seconds", duration.Seconds()),
	)

	t.metrics.RecordStep(ctx, step, status, duration)
	return status
}

// InstrumentLLMCall wraps an LLM call with observability
func (t *Telemetry) InstrumentLLMCall(ctx context.Context, provider, model string, fn func(context.Context) (promptTokens, completionTokens int, err error)) error {
	ctx, span := t.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("llm.provider", provider),
		),
	)
	defer span.End()

	startTime := time.Now()
	promptTokens, completionTokens, err := fn(ctx)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", promptTokens),
			attribute.Int("llm.completion_tokens", completionTokens),
			attribute.Int("llm.total_tokens", promptTokens+completionTokens),
		)
	}

	span.SetAttributes(
		attribute.Float64("duration.seconds", duration.Seconds()),
	)

	t.metrics.RecordLLMRequest(ctx, provider, model, int64(promptTokens), int64(completionTokens), duration, err == nil)
	return err
}

// InstrumentProviderFetch wraps an evidence provider fetch with observability
func (t *Telemetry) InstrumentProviderFetch(ctx context.Context, provider string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, fmt.Sprintf("provider.%s", provider),
		trace.WithAttributes(
			attribute.String("provider.name", provider),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	duration := time.Since(startTime)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.String("provider.status", status),
		attribute.Float64("provider.duration_seconds", duration.Seconds()),
	)

	t.metrics.RecordProviderFetch(ctx, provider, duration, err == nil)
	return err
}

// StartResearchRequest starts a root span for a research run
func (t *Telemetry) StartResearchRequest(ctx context.Context, requestID, company string, planVariants int) (context.Context, trace.Span) {
	ctx, span := t.StartSpan(ctx, "research.request",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("research.company", company),
			attribute.Int("research.plan_variants", planVariants),
		),
	)
	t.metrics.RecordResearchStart(ctx)
	return ctx, span
}

// EndResearchRequest closes the root span opened by StartResearchRequest
func (t *Telemetry) EndResearchRequest(ctx context.Context, span trace.Span, started time.Time, iterations int, status string, err error) {
	span.SetAttributes(
		attribute.Int("research.iterations", iterations),
		attribute.String("research.status", status),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	t.metrics.RecordResearchComplete(ctx, time.Since(started), iterations, status)
	span.End()
}
