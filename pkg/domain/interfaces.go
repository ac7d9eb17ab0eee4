package domain

import (
	"context"
	"errors"
)

var (
	// ErrEmptyTarget is returned when a request names no company
	ErrEmptyTarget = errors.New("research target is required")
	// ErrReportNotFound is returned by report stores for unknown IDs
	ErrReportNotFound = errors.New("report not found")
)

// ResearchService runs research requests and serves archived reports
type ResearchService interface {
	// Execute performs a complete research run
	Execute(ctx context.Context, request *ResearchRequest) (*ResearchReport, error)

	// Report returns a previously stored report
	Report(ctx context.Context, id string) (*ResearchReport, error)

	// Reports lists stored reports, newest first
	Reports(ctx context.Context, opts ListOptions) ([]ReportSummary, error)
}

// LLMClient defines the interface for language model interactions
type LLMClient interface {
	// Chat performs a chat completion
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)
}

// NarrativeGenerator turns a prompt into text. Implementations may return an
// empty string; callers convert that into an explicit failure.
type NarrativeGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EvidenceProvider produces evidence about an entity from one external source
type EvidenceProvider interface {
	Name() string
	Kind() EvidenceKind
	Fetch(ctx context.Context, entity Entity) (Evidence, error)
}

// ConflictDetector finds contradictions within an evidence bundle
type ConflictDetector interface {
	Detect(ctx context.Context, target Entity, bundle EvidenceBundle) ([]Conflict, error)
}

// ReportStore archives finished research projections
type ReportStore interface {
	Save(ctx context.Context, report *ResearchReport) error
	Load(ctx context.Context, id string) (*ResearchReport, error)
	List(ctx context.Context, opts ListOptions) ([]ReportSummary, error)
	Delete(ctx context.Context, id string) error
}

// ListOptions provides paging for report listings
type ListOptions struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Window applies offset and limit to a slice length
func (o ListOptions) Window(n int) (start, end int) {
	start = o.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end = n
	if o.Limit > 0 && start+o.Limit < n {
		end = start + o.Limit
	}
	return start, end
}

// ChatOptions provides options for chat completions
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	Content      string     `json:"content"`
	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
