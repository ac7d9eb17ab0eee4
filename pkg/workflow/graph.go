package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/state"
)

// ResearchGraph runs research requests end to end: it builds the state,
// lets the supervisor drive the catalogue and archives the projection.
type ResearchGraph struct {
	config    *Config
	deps      Dependencies
	store     domain.ReportStore
	telemetry *observability.Telemetry
	logger    *observability.StructuredLogger
}

// Config holds the configuration for the workflow
type Config struct {
	MaxIterations    int
	PlanVariants     int
	StepTimeout      time.Duration
	Timeout          time.Duration
	ParallelEvidence bool
	CircuitBreaker   config.CircuitBreakerConfig
}

// ConfigFromSettings converts the file configuration
func ConfigFromSettings(research config.ResearchConfig, breaker config.CircuitBreakerConfig) *Config {
	return &Config{
		MaxIterations:    research.MaxIterations,
		PlanVariants:     research.PlanVariants,
		StepTimeout:      config.MustDuration(research.StepTimeout),
		Timeout:          config.MustDuration(research.Timeout),
		ParallelEvidence: research.ParallelEvidence,
		CircuitBreaker:   breaker,
	}
}

// NewResearchGraph creates a research graph. A nil store keeps reports in
// memory.
func NewResearchGraph(cfg *Config, deps Dependencies, store domain.ReportStore) (*ResearchGraph, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations must be non-negative, got %d", cfg.MaxIterations)
	}

	deps.Telemetry = ensureTelemetry(deps.Telemetry)
	if cfg.CircuitBreaker.Enabled {
		guarded, err := GuardRegistry(deps.Providers, cfg.CircuitBreaker, deps.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("failed to guard providers: %w", err)
		}
		deps.Providers = guarded
	}

	// Fail fast on a catalogue that can never be built
	if _, err := DefaultCatalogue(deps, CatalogueOptions{PlanVariants: cfg.PlanVariants}); err != nil {
		return nil, fmt.Errorf("invalid catalogue: %w", err)
	}

	if store == nil {
		store = state.NewMemoryStore()
	}

	return &ResearchGraph{
		config:    cfg,
		deps:      deps,
		store:     store,
		telemetry: deps.Telemetry,
		logger:    observability.NewStructuredLogger("research_graph"),
	}, nil
}

// Supervisor returns the supervisor that would run a request asking for
// planVariants plans (0 selects the configured count).
func (rg *ResearchGraph) Supervisor(planVariants int) (*Supervisor, error) {
	if planVariants == 0 {
		planVariants = rg.config.PlanVariants
	}
	catalogue, err := DefaultCatalogue(rg.deps, CatalogueOptions{PlanVariants: planVariants})
	if err != nil {
		return nil, err
	}
	return NewSupervisor(catalogue, SupervisorConfig{
		MaxIterations:    rg.config.MaxIterations,
		StepTimeout:      rg.config.StepTimeout,
		ParallelEvidence: rg.config.ParallelEvidence,
	}, rg.telemetry), nil
}

// Execute runs the research workflow. When the run stops early the partial
// projection is returned together with the error.
func (rg *ResearchGraph) Execute(ctx context.Context, request *domain.ResearchRequest) (*domain.ResearchReport, error) {
	if request == nil {
		return nil, fmt.Errorf("request is required")
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	supervisor, err := rg.Supervisor(request.PlanVariants)
	if err != nil {
		return nil, err
	}
	st := supervisor.NewState(*request)
	req := st.Request()

	started := time.Now()
	ctx, span := rg.telemetry.StartResearchRequest(ctx, req.ID, req.Target.Name, planCount(supervisor.Catalogue()))

	runCtx := ctx
	if rg.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, rg.config.Timeout)
		defer cancel()
	}

	rg.logger.Info(ctx, "Research started", map[string]interface{}{
		"request_id": req.ID,
		"company":    req.Target.Name,
		"steps":      supervisor.Catalogue().Len(),
		"budget":     supervisor.Budget(),
	})
	st.AppendProgress("", fmt.Sprintf("Starting research on %s", req.Target.Name))

	runErr := supervisor.Run(runCtx, st)
	report := rg.project(st, supervisor.Catalogue())

	status := runStatus(runErr)
	rg.telemetry.EndResearchRequest(ctx, span, started, st.Iterations(), status, runErr)

	if runErr != nil {
		rg.logger.Error(ctx, "Research stopped early", runErr, map[string]interface{}{
			"request_id": req.ID,
			"status":     status,
			"iterations": st.Iterations(),
		})
		return report, fmt.Errorf("research %s: %w", req.ID, runErr)
	}

	st.AppendProgress("", "Research complete")
	report.Progress = st.Progress()

	if err := rg.store.Save(context.WithoutCancel(ctx), report); err != nil {
		rg.logger.Error(ctx, "Failed to archive report", err, map[string]interface{}{
			"report_id": report.ID,
		})
	}

	rg.logger.Info(ctx, "Research completed", map[string]interface{}{
		"request_id":   req.ID,
		"report_id":    report.ID,
		"iterations":   report.Iterations,
		"failed_steps": report.FailedSteps(),
		"plans":        len(report.Plans),
		"duration_ms":  time.Since(started).Milliseconds(),
	})
	return report, nil
}

// project builds the final report and annotates step categories
func (rg *ResearchGraph) project(st *state.ResearchState, catalogue *Catalogue) *domain.ResearchReport {
	report := st.Projection()
	for i, rec := range report.Steps {
		if step, ok := catalogue.Step(rec.Name); ok {
			report.Steps[i].Category = step.Category()
		}
	}
	return report
}

func planCount(catalogue *Catalogue) int {
	n := 0
	for _, step := range catalogue.steps {
		if step.Category() == domain.CategoryOutput {
			n++
		}
	}
	return n
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrNotConverged):
		return "not_converged"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// Report returns an archived report
func (rg *ResearchGraph) Report(ctx context.Context, id string) (*domain.ResearchReport, error) {
	return rg.store.Load(ctx, id)
}

// Reports lists archived reports, newest first
func (rg *ResearchGraph) Reports(ctx context.Context, opts domain.ListOptions) ([]domain.ReportSummary, error) {
	return rg.store.List(ctx, opts)
}

func ensureTelemetry(t *observability.Telemetry) *observability.Telemetry {
	if t == nil {
		return observability.NewNoopTelemetry()
	}
	return t
}
