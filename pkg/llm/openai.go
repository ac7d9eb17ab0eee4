package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient implements LLMClient on the OpenAI Responses API
type OpenAIClient struct {
	client  openai.Client
	model   string
	options Options
}

// NewOpenAIClient creates an OpenAI client
func NewOpenAIClient(apiKey, model, baseURL string, options *Options) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
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

	return &OpenAIClient{
		client:  openai.NewClient(reqOpts...),
		model:   model,
		options: *options,
	}, nil
}

// Chat flattens the conversation into a single input and system
// instructions, which is all the pipeline prompts need
func (o *OpenAIClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := o.options.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	var system []string
	var input strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			fmt.Fprintf(&input, "Assistant: %s\n\n", msg.Content)
		default:
			input.WriteString(msg.Content)
		}
	}
	if len(system) == 0 && o.options.SystemPrompt != "" {
		system = append(system, o.options.SystemPrompt)
	}

	params := responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}
	if len(system) > 0 {
		params.Instructions = openai.String(strings.Join(system, "\n\n"))
	}
	if temperature := opts.Temperature; temperature > 0 {
		params.Temperature = openai.Float(temperature)
	} else if o.options.Temperature > 0 {
		params.Temperature = openai.Float(o.options.Temperature)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses request failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response from openai")
	}

	return &domain.ChatResponse{
		Content: resp.OutputText(),
		Usage: domain.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: string(resp.Status),
	}, nil
}
