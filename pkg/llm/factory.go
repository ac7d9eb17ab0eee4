package llm

import (
	"context"
	"fmt"

	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
)

// NewClient builds the configured backend and wraps it with telemetry when
// telemetry is non-nil
func NewClient(ctx context.Context, cfg config.LLMConfig, telemetry *observability.Telemetry) (domain.LLMClient, error) {
	options := &Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
		Timeout:     config.MustDuration(cfg.Timeout),
	}

	var (
		client domain.LLMClient
		err    error
	)
	switch cfg.Provider {
	case "ollama", "":
		client = NewOllamaClient(cfg.BaseURL, cfg.Model, options)
	case "gemini":
		client, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, options)
	case "anthropic":
		client, err = NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL, options)
	case "openai":
		client, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, options)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if telemetry == nil {
		return client, nil
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "ollama"
	}
	return NewInstrumentedLLMClient(client, telemetry, provider, cfg.Model)
}
