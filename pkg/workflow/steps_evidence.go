package workflow

import (
	"context"
	"fmt"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/state"
)

// evidenceSteps maps each evidence kind to its catalogue entry
var evidenceSteps = map[domain.EvidenceKind]domain.StepName{
	domain.EvidenceWeb:          domain.StepWebSearch,
	domain.EvidenceFinancial:    domain.StepFinancial,
	domain.EvidenceEncyclopedia: domain.StepEncyclopedia,
	domain.EvidenceNews:         domain.StepNews,
}

// EvidenceStep gathers one kind of evidence from a provider. A provider
// error fails the step; an empty payload succeeds.
type EvidenceStep struct {
	name      domain.StepName
	provider  domain.EvidenceProvider
	telemetry *observability.Telemetry
}

// NewEvidenceStep creates the step for the provider's evidence kind
func NewEvidenceStep(provider domain.EvidenceProvider, telemetry *observability.Telemetry) (*EvidenceStep, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	name, ok := evidenceSteps[provider.Kind()]
	if !ok {
		return nil, fmt.Errorf("unknown evidence kind %q", provider.Kind())
	}
	return &EvidenceStep{name: name, provider: provider, telemetry: ensureTelemetry(telemetry)}, nil
}

func (s *EvidenceStep) Name() domain.StepName         { return s.name }
func (s *EvidenceStep) Category() domain.StepCategory { return domain.CategoryEvidence }

// Run fetches evidence about the target
func (s *EvidenceStep) Run(ctx context.Context, view state.View) state.Outcome {
	var evidence domain.Evidence
	err := s.telemetry.InstrumentProviderFetch(ctx, s.provider.Name(), func(ctx context.Context) error {
		var err error
		evidence, err = s.provider.Fetch(ctx, view.Target())
		return err
	})
	if err != nil {
		view.Progressf("%s unavailable: %s", s.provider.Name(), failureReason(ctx, err))
		return state.Failed(failureReason(ctx, err), nil)
	}
	if evidence == nil {
		view.Progressf("%s returned nothing", s.provider.Name())
		return state.Failed(fmt.Sprintf("%s returned no evidence", s.provider.Name()), nil)
	}

	view.Progressf("%s", describeEvidence(evidence))
	return state.Succeeded(evidence)
}

func describeEvidence(e domain.Evidence) string {
	switch v := e.(type) {
	case *domain.WebResults:
		return fmt.Sprintf("Found %d web results", len(v.Hits))
	case *domain.FinancialMetrics:
		if v.Empty() {
			return "Financial data limited"
		}
		return fmt.Sprintf("Retrieved financial data for %s", v.Ticker)
	case *domain.EncyclopediaSummary:
		if v.Empty() {
			return "No encyclopedia article found"
		}
		return fmt.Sprintf("Encyclopedia article retrieved: %s", v.Title)
	case *domain.NewsFeed:
		return fmt.Sprintf("Found %d news articles", len(v.Items))
	}
	return "Evidence retrieved"
}
