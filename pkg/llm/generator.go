package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

// ErrEmptyResponse is returned when the model produced no usable text
var ErrEmptyResponse = errors.New("empty response from LLM")

// ChatGenerator adapts an LLMClient to the single prompt
// NarrativeGenerator contract used by the pipeline steps
type ChatGenerator struct {
	client       domain.LLMClient
	systemPrompt string
	options      domain.ChatOptions
}

// GeneratorOption configures a ChatGenerator
type GeneratorOption func(*ChatGenerator)

// WithSystemPrompt prepends a system message to every prompt
func WithSystemPrompt(prompt string) GeneratorOption {
	return func(g *ChatGenerator) {
		g.systemPrompt = prompt
	}
}

// WithChatOptions sets per call chat options
func WithChatOptions(opts domain.ChatOptions) GeneratorOption {
	return func(g *ChatGenerator) {
		g.options = opts
	}
}

// NewChatGenerator creates a generator over client
func NewChatGenerator(client domain.LLMClient, opts ...GeneratorOption) *ChatGenerator {
	g := &ChatGenerator{client: client}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends prompt as a single user turn. Whitespace-only output is
// reported as ErrEmptyResponse.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	messages := make([]domain.Message, 0, 2)
	if g.systemPrompt != "" {
		messages = append(messages, domain.Message{Role: "system", Content: g.systemPrompt})
	}
	messages = append(messages, domain.Message{Role: "user", Content: prompt})

	resp, err := g.client.Chat(ctx, messages, g.options)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
