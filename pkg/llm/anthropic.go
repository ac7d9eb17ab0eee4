package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

// AnthropicClient implements LLMClient on the Anthropic Messages API
type AnthropicClient struct {
	client  anthropic.Client
	model   string
	options Options
}

// NewAnthropicClient creates an Anthropic client
func NewAnthropicClient(apiKey, model, baseURL string, options *Options) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if options == nil {
		options = DefaultOptions()
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if options.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(options.Timeout))
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(reqOpts...),
		model:   model,
		options: *options,
	}, nil
}

// Chat sends the conversation through Messages.New
func (c *AnthropicClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := c.options.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := c.options.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	var system []string
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(system) == 0 && c.options.SystemPrompt != "" {
		system = append(system, c.options.SystemPrompt)
	}

	request := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    params,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
	}
	if len(system) > 0 {
		request.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if len(opts.Stop) > 0 {
		request.StopSequences = opts.Stop
	}

	resp, err := c.client.Messages.New(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages request failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response from anthropic")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return &domain.ChatResponse{
		Content: text.String(),
		Usage: domain.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		FinishReason: string(resp.StopReason),
	}, nil
}
