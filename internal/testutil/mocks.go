package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

// MockLLMClient is a mock implementation of LLMClient for testing
type MockLLMClient struct {
	mu           sync.Mutex
	Responses    map[string]string
	CallCount    int
	LastMessages []domain.Message
	ShouldError  bool
	ErrorMessage string
	// ChatFunc allows custom chat behavior for tests
	ChatFunc func(ctx context.Context, messages []domain.Message, options domain.ChatOptions) (*domain.ChatResponse, error)
}

// NewMockLLMClient creates a new mock LLM client
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Responses: make(map[string]string),
	}
}

// Chat implements domain.LLMClient
func (m *MockLLMClient) Chat(ctx context.Context, messages []domain.Message, options domain.ChatOptions) (*domain.ChatResponse, error) {
	if m.ChatFunc != nil {
		m.mu.Lock()
		m.CallCount++
		m.LastMessages = messages
		m.mu.Unlock()
		return m.ChatFunc(ctx, messages, options)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastMessages = messages

	if m.ShouldError {
		return nil, fmt.Errorf("%s", m.ErrorMessage)
	}

	var content string
	if len(messages) > 0 {
		lastMsg := messages[len(messages)-1]
		if resp, ok := m.Responses[lastMsg.Content]; ok {
			content = resp
		} else if resp, ok := m.Responses["default"]; ok {
			content = resp
		} else {
			content = "Mock response"
		}
	}

	return &domain.ChatResponse{
		Content: content,
		Usage: domain.TokenUsage{
			PromptTokens:     50,
			CompletionTokens: 50,
			TotalTokens:      100,
		},
		FinishReason: "stop",
	}, nil
}

// GetCallCount returns the number of Chat calls made
func (m *MockLLMClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MockGenerator is a mock NarrativeGenerator that records prompts
type MockGenerator struct {
	mu      sync.Mutex
	Prompts []string
	// Text is returned when GenerateFunc is nil
	Text string
	Err  error
	// GenerateFunc allows prompt dependent behavior
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

// Generate implements domain.NarrativeGenerator
func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.Prompts = append(g.Prompts, prompt)
	g.mu.Unlock()

	if g.GenerateFunc != nil {
		return g.GenerateFunc(ctx, prompt)
	}
	if g.Err != nil {
		return "", g.Err
	}
	if g.Text == "" {
		return "Mock narrative", nil
	}
	return g.Text, nil
}

// PromptCount returns the number of prompts received
func (g *MockGenerator) PromptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Prompts)
}

// PromptAt returns the i-th prompt received
func (g *MockGenerator) PromptAt(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Prompts[i]
}

// MockProvider is a configurable EvidenceProvider
type MockProvider struct {
	ProviderName string
	EvidenceKind domain.EvidenceKind
	Evidence     domain.Evidence
	Err          error
	// Delay blocks Fetch until it elapses or the context ends
	Delay time.Duration
	// PanicWith makes Fetch panic with this value when non-nil
	PanicWith interface{}
	calls     int32
}

// Name implements domain.EvidenceProvider
func (p *MockProvider) Name() string {
	if p.ProviderName == "" {
		return "mock-" + string(p.EvidenceKind)
	}
	return p.ProviderName
}

// Kind implements domain.EvidenceProvider
func (p *MockProvider) Kind() domain.EvidenceKind {
	return p.EvidenceKind
}

// Fetch implements domain.EvidenceProvider
func (p *MockProvider) Fetch(ctx context.Context, entity domain.Entity) (domain.Evidence, error) {
	atomic.AddInt32(&p.calls, 1)

	if p.PanicWith != nil {
		panic(p.PanicWith)
	}
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Evidence, nil
}

// Calls returns the number of Fetch invocations
func (p *MockProvider) Calls() int {
	return int(atomic.LoadInt32(&p.calls))
}

// MockDetector is a configurable ConflictDetector
type MockDetector struct {
	mu         sync.Mutex
	Conflicts  []domain.Conflict
	Err        error
	Calls      int
	LastBundle domain.EvidenceBundle
}

// Detect implements domain.ConflictDetector
func (d *MockDetector) Detect(ctx context.Context, target domain.Entity, bundle domain.EvidenceBundle) ([]domain.Conflict, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Calls++
	d.LastBundle = bundle
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conflicts, nil
}

// SampleEvidence returns non-empty evidence for every provider kind
func SampleEvidence() map[domain.EvidenceKind]domain.Evidence {
	published := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return map[domain.EvidenceKind]domain.Evidence{
		domain.EvidenceWeb: &domain.WebResults{
			Provider:   "duckduckgo",
			Query:      "Acme Corp company",
			Confidence: 0.7,
			Hits: []domain.SearchHit{
				{Title: "Acme Corp", Snippet: "Acme makes anvils.", URL: "https://acme.test"},
			},
		},
		domain.EvidenceFinancial: &domain.FinancialMetrics{
			Provider:   "alphavantage",
			Ticker:     "ACME",
			Revenue:    1.5e9,
			MarketCap:  2.0e10,
			PERatio:    18.2,
			Sector:     "Industrials",
			Industry:   "Tools",
			Confidence: 0.95,
		},
		domain.EvidenceEncyclopedia: &domain.EncyclopediaSummary{
			Title:      "Acme Corporation",
			Summary:    "Acme Corporation is a fictional company.",
			URL:        "https://en.wikipedia.org/wiki/Acme_Corporation",
			Confidence: 0.85,
		},
		domain.EvidenceNews: &domain.NewsFeed{
			Confidence: 0.75,
			Items: []domain.NewsItem{
				{Title: "Acme opens new plant", Link: "https://news.test/acme", SourceName: "Daily Planet", PublishedAt: &published},
			},
		},
	}
}

// SampleProviders returns succeeding mock providers for every evidence kind
func SampleProviders() map[domain.EvidenceKind]*MockProvider {
	providers := make(map[domain.EvidenceKind]*MockProvider)
	for kind, ev := range SampleEvidence() {
		providers[kind] = &MockProvider{EvidenceKind: kind, Evidence: ev}
	}
	return providers
}
