package workflow

import "github.com/ncolesummers/company-research-agent/pkg/domain"

// HealthStatus reports whether the evidence sources are reachable
type HealthStatus struct {
	Healthy    bool             `json:"healthy"`
	ActiveRuns int64            `json:"active_runs"`
	Providers  []ProviderHealth `json:"providers"`
}

// ProviderHealth is the circuit state of one evidence source. Circuit is
// empty when breakers are disabled.
type ProviderHealth struct {
	Name    string              `json:"name"`
	Kind    domain.EvidenceKind `json:"kind"`
	Circuit CircuitBreakerState `json:"circuit,omitempty"`
}

// Health returns the current health status. The graph is unhealthy while
// any provider's circuit is open; a half-open circuit is still probing.
func (rg *ResearchGraph) Health() HealthStatus {
	status := HealthStatus{
		Healthy:    true,
		ActiveRuns: rg.telemetry.Metrics().ActiveResearchCount(),
	}
	for _, p := range rg.deps.Providers.List() {
		ph := ProviderHealth{Name: p.Name(), Kind: p.Kind()}
		if g, ok := p.(*GuardedProvider); ok {
			ph.Circuit = g.Breaker().State()
			if ph.Circuit == CircuitOpen {
				status.Healthy = false
			}
		}
		status.Providers = append(status.Providers, ph)
	}
	return status
}
