package llm

import (
	"context"
	"fmt"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
)

// InstrumentedLLMClient wraps an LLM client with tracing and token metrics
type InstrumentedLLMClient struct {
	client    domain.LLMClient
	telemetry *observability.Telemetry
	provider  string
	model     string
}

// NewInstrumentedLLMClient creates a new instrumented LLM client
func NewInstrumentedLLMClient(client domain.LLMClient, telemetry *observability.Telemetry, provider, model string) (*InstrumentedLLMClient, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if telemetry == nil {
		return nil, fmt.Errorf("telemetry is required")
	}

	return &InstrumentedLLMClient{
		client:    client,
		telemetry: telemetry,
		provider:  provider,
		model:     model,
	}, nil
}

// Chat performs an instrumented chat completion
func (c *InstrumentedLLMClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	var response *domain.ChatResponse
	err := c.telemetry.InstrumentLLMCall(ctx, c.provider, c.model, func(ctx context.Context) (int, int, error) {
		var err error
		response, err = c.client.Chat(ctx, messages, opts)
		if err != nil {
			return 0, 0, err
		}
		return response.Usage.PromptTokens, response.Usage.CompletionTokens, nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}
