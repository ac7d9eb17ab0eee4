package evidence

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

// kindOrder is the order providers are listed in
var kindOrder = []domain.EvidenceKind{
	domain.EvidenceWeb,
	domain.EvidenceFinancial,
	domain.EvidenceEncyclopedia,
	domain.EvidenceNews,
}

// Registry holds at most one provider per evidence kind
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.EvidenceKind]domain.EvidenceProvider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[domain.EvidenceKind]domain.EvidenceProvider),
	}
}

// Register adds a provider for its evidence kind
func (r *Registry) Register(provider domain.EvidenceProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	if provider.Name() == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	kind := provider.Kind()
	if existing, exists := r.providers[kind]; exists {
		return fmt.Errorf("%s evidence already provided by %s", kind, existing.Name())
	}

	r.providers[kind] = provider
	return nil
}

// Get retrieves the provider for kind
func (r *Registry) Get(kind domain.EvidenceKind) (domain.EvidenceProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[kind]
	if !exists {
		return nil, fmt.Errorf("no provider registered for %s evidence", kind)
	}
	return provider, nil
}

// List returns the registered providers in catalogue order
func (r *Registry) List() []domain.EvidenceProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]domain.EvidenceProvider, 0, len(r.providers))
	for _, kind := range kindOrder {
		if p, ok := r.providers[kind]; ok {
			providers = append(providers, p)
		}
	}
	return providers
}

// NewRegistryFromConfig builds the four reference providers. The resolver
// is used by the financial provider to look up tickers.
func NewRegistryFromConfig(cfg config.ProvidersConfig, resolver TickerResolver, client *http.Client) (*Registry, error) {
	var searcher Searcher
	switch cfg.WebSearch.Provider {
	case "", "duckduckgo":
		searcher = NewDuckDuckGo(cfg.WebSearch.BaseURL, client)
	case "tavily":
		searcher = NewTavily(cfg.WebSearch.APIKey, cfg.WebSearch.BaseURL, client)
	default:
		return nil, fmt.Errorf("unsupported web search provider: %s", cfg.WebSearch.Provider)
	}

	switch cfg.Financial.Provider {
	case "", "alphavantage":
	default:
		return nil, fmt.Errorf("unsupported financial provider: %s", cfg.Financial.Provider)
	}

	registry := NewRegistry()
	for _, p := range []domain.EvidenceProvider{
		NewWebSearchProvider(searcher, cfg.WebSearch.MaxResults),
		NewAlphaVantageProvider(cfg.Financial.APIKey, cfg.Financial.BaseURL, resolver, client),
		NewWikipediaProvider(cfg.Encyclopedia.BaseURL, cfg.Encyclopedia.Language, cfg.Encyclopedia.Sentences, client),
		NewGoogleNewsProvider(cfg.News.FeedURL, cfg.News.MaxItems, cfg.News.Language, cfg.News.Region, client),
	} {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
