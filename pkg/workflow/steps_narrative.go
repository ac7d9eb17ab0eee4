package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/llm"
	"github.com/ncolesummers/company-research-agent/pkg/prompts"
	"github.com/ncolesummers/company-research-agent/pkg/state"
)

// VerificationStep reconciles the evidence gathered so far. It runs even
// when every evidence step failed.
type VerificationStep struct {
	detector domain.ConflictDetector
}

// NewVerificationStep creates the reconciliation step
func NewVerificationStep(detector domain.ConflictDetector) *VerificationStep {
	return &VerificationStep{detector: detector}
}

func (s *VerificationStep) Name() domain.StepName         { return domain.StepVerification }
func (s *VerificationStep) Category() domain.StepCategory { return domain.CategoryReconciliation }

// Run detects conflicts between the available sources
func (s *VerificationStep) Run(ctx context.Context, view state.View) state.Outcome {
	conflicts, err := s.detector.Detect(ctx, view.Target(), view.Evidence())
	if err != nil {
		view.Progressf("Conflict check failed: %s", failureReason(ctx, err))
		return state.Failed(failureReason(ctx, err), nil)
	}
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}

	if len(conflicts) > 0 {
		view.Progressf("Found %d potential conflicts", len(conflicts))
	} else {
		view.Progressf("No major conflicts detected")
	}
	return state.Succeeded(conflicts)
}

// SynthesisStep consolidates evidence and conflicts into one narrative
type SynthesisStep struct {
	generator domain.NarrativeGenerator
	prompts   *prompts.Builder
}

// NewSynthesisStep creates the aggregation step
func NewSynthesisStep(generator domain.NarrativeGenerator, builder *prompts.Builder) *SynthesisStep {
	return &SynthesisStep{generator: generator, prompts: builder}
}

func (s *SynthesisStep) Name() domain.StepName         { return domain.StepSynthesis }
func (s *SynthesisStep) Category() domain.StepCategory { return domain.CategoryAggregation }

// Sentinel is stored as the synthesis output whenever the step fails
func (s *SynthesisStep) Sentinel(reason string) any {
	return domain.UnavailableNarrative(reason)
}

// Run generates the synthesis narrative
func (s *SynthesisStep) Run(ctx context.Context, view state.View) state.Outcome {
	prompt := s.prompts.Synthesis(view.Target(), view.Evidence(), view.Conflicts())

	text, err := generate(ctx, s.generator, prompt)
	if err != nil {
		reason := failureReason(ctx, err)
		view.Progressf("Synthesis failed: %s", reason)
		return state.Failed(reason, s.Sentinel(reason))
	}

	view.Progressf("Synthesis complete")
	return state.Succeeded(domain.Narrative{Text: text})
}

// planSteps maps each plan variant to its catalogue entry
var planSteps = map[domain.PlanVariant]domain.StepName{
	domain.PlanPersonalized: domain.StepPersonalizedPlan,
	domain.PlanGeneric:      domain.StepGenericPlan,
}

// PlanStep generates one plan document from the synthesis
type PlanStep struct {
	variant   domain.PlanVariant
	generator domain.NarrativeGenerator
	prompts   *prompts.Builder
	now       func() time.Time
}

// NewPlanStep creates the output step for variant
func NewPlanStep(variant domain.PlanVariant, generator domain.NarrativeGenerator, builder *prompts.Builder) (*PlanStep, error) {
	if _, ok := planSteps[variant]; !ok {
		return nil, fmt.Errorf("unknown plan variant %q", variant)
	}
	return &PlanStep{variant: variant, generator: generator, prompts: builder, now: time.Now}, nil
}

func (s *PlanStep) Name() domain.StepName         { return planSteps[s.variant] }
func (s *PlanStep) Category() domain.StepCategory { return domain.CategoryOutput }

// Sentinel is stored as the plan output whenever the step fails
func (s *PlanStep) Sentinel(reason string) any {
	plan := s.plan("")
	plan.Content = domain.NoPlanGenerated
	plan.Error = reason
	return plan
}

func (s *PlanStep) plan(content string) domain.Plan {
	return domain.Plan{
		ID:           uuid.NewString(),
		Variant:      s.variant,
		Content:      content,
		Personalized: s.variant == domain.PlanPersonalized,
		Sections:     append([]string(nil), prompts.PlanSections[s.variant]...),
		GeneratedAt:  s.now(),
	}
}

// Run generates the plan. A failed synthesis is replaced by the
// "no synthesis available" text rather than blocking the plan.
func (s *PlanStep) Run(ctx context.Context, view state.View) state.Outcome {
	synthesis, _ := view.Synthesis()
	target := view.Target()
	prompt := s.prompts.Plan(s.variant, target, view.Requester(), synthesis, view.Evidence(), view.Conflicts())

	text, err := generate(ctx, s.generator, prompt)
	if err != nil {
		reason := failureReason(ctx, err)
		view.Progressf("%s plan failed: %s", s.variant, reason)
		sentinel := s.Sentinel(reason).(domain.Plan)
		sentinel.Target = target.Name
		return state.Failed(reason, sentinel)
	}

	plan := s.plan(text)
	plan.Target = target.Name
	view.Progressf("%s plan generated", s.variant)
	return state.Succeeded(plan)
}

// generate calls the generator and turns an empty reply into
// llm.ErrEmptyResponse.
func generate(ctx context.Context, generator domain.NarrativeGenerator, prompt string) (string, error) {
	text, err := generator.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return "", llm.ErrEmptyResponse
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return strings.TrimSpace(text), nil
}
