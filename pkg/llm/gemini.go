package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"google.golang.org/genai"
)

// GeminiClient implements LLMClient on the Gemini API
type GeminiClient struct {
	client  *genai.Client
	model   string
	options Options
}

// NewGeminiClient creates a Gemini client. baseURL is optional and only
// needed to point at a proxy or test server.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, options *Options) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if options == nil {
		options = DefaultOptions()
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model, options: *options}, nil
}

// Chat performs a single generateContent call
func (g *GeminiClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}

	contents, system := toGeminiContents(messages)
	if system == "" {
		system = g.options.SystemPrompt
	}

	temperature := g.options.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := g.options.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
		StopSequences:   opts.Stop,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("empty response from gemini")
	}

	response := &domain.ChatResponse{
		Content:      result.Text(),
		FinishReason: "stop",
	}
	if len(result.Candidates) > 0 && result.Candidates[0].FinishReason != "" {
		response.FinishReason = strings.ToLower(string(result.Candidates[0].FinishReason))
	}
	if usage := result.UsageMetadata; usage != nil {
		response.Usage = domain.TokenUsage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.PromptTokenCount + usage.CandidatesTokenCount),
		}
	}

	return response, nil
}

// toGeminiContents splits out system messages and maps assistant turns to
// the "model" role
func toGeminiContents(messages []domain.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	return contents, strings.Join(system, "\n\n")
}
