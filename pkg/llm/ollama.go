package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

// OllamaClient implements the LLMClient interface for a local Ollama server
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	options    Options
}

// Options carries generation defaults shared by every backend.
// Per call ChatOptions take precedence when set.
type Options struct {
	Temperature  float64
	MaxTokens    int
	TopP         float64
	TopK         int
	SystemPrompt string
	Timeout      time.Duration
}

// DefaultOptions returns the generation defaults used when none are given
func DefaultOptions() *Options {
	return &Options{
		Temperature: 0.3,
		MaxTokens:   2048,
		TopP:        0.9,
		Timeout:     2 * time.Minute,
	}
}

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Stream   bool                   `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(baseURL, model string, options *Options) *OllamaClient {
	if options == nil {
		options = DefaultOptions()
	}

	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: options.Timeout,
		},
		options: *options,
	}
}

// Chat performs a non-streaming chat completion against /api/chat
func (c *OllamaClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}

	req := ollamaRequest{
		Model:    model,
		Messages: c.convertMessages(messages),
		Options:  c.buildOptions(opts),
		Stream:   false,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	finish := ollamaResp.DoneReason
	if finish == "" {
		finish = "stop"
	}

	return &domain.ChatResponse{
		Content: ollamaResp.Message.Content,
		Usage: domain.TokenUsage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
		FinishReason: finish,
	}, nil
}

func (c *OllamaClient) convertMessages(messages []domain.Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages)+1)
	if c.options.SystemPrompt != "" && (len(messages) == 0 || messages[0].Role != "system") {
		out = append(out, ollamaMessage{Role: "system", Content: c.options.SystemPrompt})
	}
	for _, msg := range messages {
		out = append(out, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func (c *OllamaClient) buildOptions(opts domain.ChatOptions) map[string]interface{} {
	options := make(map[string]interface{})

	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	} else {
		options["temperature"] = c.options.Temperature
	}

	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	} else {
		options["num_predict"] = c.options.MaxTokens
	}

	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	} else if c.options.TopP > 0 {
		options["top_p"] = c.options.TopP
	}

	if opts.TopK > 0 {
		options["top_k"] = opts.TopK
	} else if c.options.TopK > 0 {
		options["top_k"] = c.options.TopK
	}

	if len(opts.Stop) > 0 {
		options["stop"] = opts.Stop
	}

	return options
}

// CheckHealth verifies the Ollama service is accessible
func (c *OllamaClient) CheckHealth(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
