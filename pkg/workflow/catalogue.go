package workflow

import (
	"fmt"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/evidence"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/prompts"
)

// Catalogue is the fixed, totally ordered list of steps a run executes
type Catalogue struct {
	steps []Step
	index map[domain.StepName]int
}

// NewCatalogue validates and freezes the step order. Names must be unique
// and categories may never decrease, so a step only ever reads outputs of
// steps placed before it.
func NewCatalogue(steps ...Step) (*Catalogue, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("catalogue needs at least one step")
	}

	c := &Catalogue{
		steps: make([]Step, 0, len(steps)),
		index: make(map[domain.StepName]int, len(steps)),
	}
	for i, step := range steps {
		if step == nil {
			return nil, fmt.Errorf("step %d is nil", i)
		}
		name := step.Name()
		if name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("step %s registered twice", name)
		}
		if i > 0 && step.Category() < steps[i-1].Category() {
			return nil, fmt.Errorf("step %s (%s) cannot follow %s (%s)",
				name, step.Category(), steps[i-1].Name(), steps[i-1].Category())
		}
		c.index[name] = i
		c.steps = append(c.steps, step)
	}
	return c, nil
}

// Len returns the number of steps
func (c *Catalogue) Len() int {
	return len(c.steps)
}

// Steps returns the steps in catalogue order
func (c *Catalogue) Steps() []Step {
	return append([]Step(nil), c.steps...)
}

// Names returns the step names in catalogue order
func (c *Catalogue) Names() []domain.StepName {
	names := make([]domain.StepName, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name()
	}
	return names
}

// Step looks a step up by name
func (c *Catalogue) Step(name domain.StepName) (Step, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.steps[i], true
}

// Dependencies are the collaborators of the reference catalogue
type Dependencies struct {
	Providers *evidence.Registry
	Detector  domain.ConflictDetector
	Generator domain.NarrativeGenerator
	Prompts   *prompts.Builder
	Telemetry *observability.Telemetry
}

func (d Dependencies) validate() error {
	switch {
	case d.Providers == nil:
		return fmt.Errorf("evidence providers are required")
	case d.Detector == nil:
		return fmt.Errorf("conflict detector is required")
	case d.Generator == nil:
		return fmt.Errorf("narrative generator is required")
	}
	return nil
}

// CatalogueOptions selects optional catalogue entries
type CatalogueOptions struct {
	// PlanVariants is 1 (personalized only) or 2 (personalized and generic)
	PlanVariants int
}

// DefaultCatalogue builds the reference catalogue: four evidence steps,
// verification, synthesis, then one or two plans.
func DefaultCatalogue(deps Dependencies, opts CatalogueOptions) (*Catalogue, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	builder := deps.Prompts
	if builder == nil {
		builder = prompts.NewBuilder(nil)
	}

	variants := []domain.PlanVariant{domain.PlanPersonalized}
	switch opts.PlanVariants {
	case 0, 1:
	case 2:
		variants = append(variants, domain.PlanGeneric)
	default:
		return nil, fmt.Errorf("plan variants must be 1 or 2, got %d", opts.PlanVariants)
	}

	var steps []Step
	for _, kind := range []domain.EvidenceKind{
		domain.EvidenceWeb,
		domain.EvidenceFinancial,
		domain.EvidenceEncyclopedia,
		domain.EvidenceNews,
	} {
		provider, err := deps.Providers.Get(kind)
		if err != nil {
			return nil, err
		}
		step, err := NewEvidenceStep(provider, deps.Telemetry)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	steps = append(steps,
		NewVerificationStep(deps.Detector),
		NewSynthesisStep(deps.Generator, builder),
	)
	for _, variant := range variants {
		step, err := NewPlanStep(variant, deps.Generator, builder)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return NewCatalogue(steps...)
}
