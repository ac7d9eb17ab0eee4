package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/state"
)

// Step is one entry of the research catalogue. Run reads prior outputs
// through the view and reports its result as an outcome; it never records
// markers itself.
type Step interface {
	Name() domain.StepName
	Category() domain.StepCategory
	Run(ctx context.Context, view state.View) state.Outcome
}

// failureSentinel is implemented by steps whose failures must still leave
// an explicit payload behind, even when the step never returned.
type failureSentinel interface {
	Sentinel(reason string) any
}

// errNoOutcome marks a step that returned without a terminal status
var errNoOutcome = errors.New("step returned no outcome")

// safeRun invokes the step once and always produces a terminal outcome.
// Panics, context expiry and missing outcomes become failures. A step that
// ignores its context is abandoned when the context ends.
func safeRun(ctx context.Context, step Step, view state.View, logger *observability.StructuredLogger) state.Outcome {
	started := time.Now()

	done := make(chan state.Outcome, 1)
	go func() {
		done <- invoke(ctx, step, view, logger)
	}()

	var outcome state.Outcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		outcome = state.Failed(timeoutReason(ctx.Err()), nil)
	}

	if err := ctx.Err(); err != nil && outcome.OK() {
		// a result that arrived after the deadline is discarded
		outcome = state.Failed(timeoutReason(err), nil)
	}
	if !outcome.Status().Attempted() {
		outcome = state.Failed(errNoOutcome.Error(), nil)
	}
	if !outcome.OK() && outcome.Payload() == nil {
		if fs, ok := step.(failureSentinel); ok {
			outcome = state.Failed(outcome.Reason(), fs.Sentinel(outcome.Reason()))
		}
	}
	return outcome.WithDuration(time.Since(started))
}

func invoke(ctx context.Context, step Step, view state.View, logger *observability.StructuredLogger) (outcome state.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Step panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"step":  step.Name(),
				"stack": string(debug.Stack()),
			})
			outcome = state.Failed(fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return step.Run(ctx, view)
}

func timeoutReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "step timed out"
	}
	return err.Error()
}

// failureReason renders err for a failure marker, preferring the timeout
// wording when the step's context expired.
func failureReason(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return timeoutReason(ctxErr)
	}
	return err.Error()
}
