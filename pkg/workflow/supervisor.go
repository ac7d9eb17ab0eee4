package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/state"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrNotConverged is matched by errors.Is for every NonConvergenceError
var ErrNotConverged = errors.New("research did not converge")

// NonConvergenceError is returned when the iteration budget runs out with
// steps still not attempted.
type NonConvergenceError struct {
	Budget int
	Stuck  []domain.StepName
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("%s: budget of %d iterations exhausted with %d steps not attempted %v",
		ErrNotConverged, e.Budget, len(e.Stuck), e.Stuck)
}

// Unwrap makes errors.Is(err, ErrNotConverged) hold
func (e *NonConvergenceError) Unwrap() error {
	return ErrNotConverged
}

// SupervisorConfig tunes the scheduling loop
type SupervisorConfig struct {
	// MaxIterations caps the loop; 0 means one iteration per catalogue step
	MaxIterations int
	// StepTimeout bounds each step invocation; 0 disables it
	StepTimeout time.Duration
	// ParallelEvidence dispatches all pending evidence steps together
	ParallelEvidence bool
}

// Supervisor drives a research state through the catalogue. Every
// iteration it selects the first step whose marker is not attempted,
// dispatches it and records the outcome. Failure and success are treated
// alike; the run is done when every step has been attempted.
type Supervisor struct {
	catalogue *Catalogue
	config    SupervisorConfig
	telemetry *observability.Telemetry
	logger    *observability.StructuredLogger
}

// NewSupervisor creates a supervisor over catalogue
func NewSupervisor(catalogue *Catalogue, cfg SupervisorConfig, telemetry *observability.Telemetry) *Supervisor {
	return &Supervisor{
		catalogue: catalogue,
		config:    cfg,
		telemetry: ensureTelemetry(telemetry),
		logger:    observability.NewStructuredLogger("supervisor"),
	}
}

// Catalogue returns the catalogue the supervisor schedules
func (s *Supervisor) Catalogue() *Catalogue {
	return s.catalogue
}

// Budget returns the maximum number of iterations a run may use
func (s *Supervisor) Budget() int {
	if s.config.MaxIterations > 0 {
		return s.config.MaxIterations
	}
	return s.catalogue.Len()
}

// NewState creates a research state over this supervisor's catalogue
func (s *Supervisor) NewState(request domain.ResearchRequest) *state.ResearchState {
	return state.NewResearchState(request, s.catalogue.Names())
}

// SelectNext returns the first step in catalogue order that has not been
// attempted. ok is false once every step has been attempted.
func (s *Supervisor) SelectNext(st *state.ResearchState) (name domain.StepName, ok bool) {
	for _, step := range s.catalogue.steps {
		if !st.Status(step.Name()).Attempted() {
			return step.Name(), true
		}
	}
	return "", false
}

// Run schedules steps until every marker is attempted. It returns a
// *NonConvergenceError when the budget is exhausted first, or the context
// error when ctx ends.
func (s *Supervisor) Run(ctx context.Context, st *state.ResearchState) error {
	ctx, span := s.telemetry.StartSpan(ctx, "supervisor.run",
		trace.WithAttributes(
			attribute.Int("catalogue.size", s.catalogue.Len()),
			attribute.Int("supervisor.budget", s.Budget()),
			attribute.Bool("supervisor.parallel_evidence", s.config.ParallelEvidence),
		),
	)
	defer span.End()

	budget := s.Budget()
	dispatched := make(map[domain.StepName]bool)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, ok := s.SelectNext(st)
		if !ok {
			st.SetNext("")
			s.logger.Debug(ctx, "All steps attempted", map[string]interface{}{
				"iterations": st.Iterations(),
				"markers":    markerSnapshot(st),
			})
			return nil
		}

		if st.Iterations() >= budget {
			err := &NonConvergenceError{Budget: budget, Stuck: s.pending(st)}
			s.logger.Error(ctx, "Iteration budget exhausted", err, map[string]interface{}{
				"markers": markerSnapshot(st),
			})
			return err
		}

		iteration := st.IncrementIteration()
		st.SetNext(next)
		span.AddEvent("dispatch", trace.WithAttributes(
			attribute.String("step", string(next)),
			attribute.Int("iteration", iteration),
		))
		s.logger.Debug(ctx, "Next step selected", map[string]interface{}{
			"iteration": iteration,
			"next":      next,
			"markers":   markerSnapshot(st),
		})

		// A step whose outcome could not be recorded is never invoked again;
		// the loop spends its budget instead.
		if dispatched[next] {
			s.logger.Warn(ctx, "Selected step was already dispatched", map[string]interface{}{
				"step":      next,
				"iteration": iteration,
			})
			continue
		}

		step, _ := s.catalogue.Step(next)
		if s.config.ParallelEvidence && step.Category() == domain.CategoryEvidence {
			for _, name := range s.dispatchCohort(ctx, st, dispatched) {
				dispatched[name] = true
			}
		} else {
			dispatched[next] = true
			s.dispatch(ctx, st, step)
		}
	}
}

// pending lists the catalogue steps not yet attempted
func (s *Supervisor) pending(st *state.ResearchState) []domain.StepName {
	var pending []domain.StepName
	for _, step := range s.catalogue.steps {
		if !st.Status(step.Name()).Attempted() {
			pending = append(pending, step.Name())
		}
	}
	return pending
}

// dispatch runs one step and records its outcome
func (s *Supervisor) dispatch(ctx context.Context, st *state.ResearchState, step Step) {
	outcome := s.runStep(ctx, st, step)
	if err := st.Record(step.Name(), outcome); err != nil {
		s.logger.Error(ctx, "Failed to record step outcome", err, map[string]interface{}{
			"step": step.Name(),
		})
	}
}

// dispatchCohort runs every not attempted evidence step concurrently and
// waits for all of them. Evidence steps write disjoint outputs.
func (s *Supervisor) dispatchCohort(ctx context.Context, st *state.ResearchState, dispatched map[domain.StepName]bool) []domain.StepName {
	var cohort []Step
	var names []domain.StepName
	for _, step := range s.catalogue.steps {
		if step.Category() != domain.CategoryEvidence || st.Status(step.Name()).Attempted() || dispatched[step.Name()] {
			continue
		}
		cohort = append(cohort, step)
		names = append(names, step.Name())
	}

	s.logger.Debug(ctx, "Dispatching evidence cohort", map[string]interface{}{
		"size": len(cohort),
	})

	var g errgroup.Group
	for _, step := range cohort {
		g.Go(func() error {
			s.dispatch(ctx, st, step)
			return nil
		})
	}
	_ = g.Wait()
	return names
}

// runStep applies the step timeout and instrumentation around safeRun
func (s *Supervisor) runStep(ctx context.Context, st *state.ResearchState, step Step) state.Outcome {
	if s.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.StepTimeout)
		defer cancel()
	}

	var outcome state.Outcome
	s.telemetry.InstrumentStep(ctx, string(step.Name()), step.Category().String(), func(ctx context.Context) string {
		view, release := st.AttemptView(step.Name())
		outcome = safeRun(ctx, step, view, s.logger)
		release()
		return string(outcome.Status())
	})

	if !outcome.OK() {
		s.logger.Warn(ctx, "Step failed", map[string]interface{}{
			"step":   step.Name(),
			"reason": outcome.Reason(),
		})
	}
	return outcome
}

func markerSnapshot(st *state.ResearchState) map[string]string {
	markers := make(map[string]string)
	for _, name := range st.Steps() {
		markers[string(name)] = st.Status(name).String()
	}
	return markers
}
