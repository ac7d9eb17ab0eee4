package conflicts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/llm"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/prompts"
)

// LLMDetector asks a language model to fact check the evidence bundle
type LLMDetector struct {
	generator domain.NarrativeGenerator
	prompts   *prompts.Builder
	logger    *observability.StructuredLogger
}

// NewLLMDetector creates a detector backed by generator
func NewLLMDetector(generator domain.NarrativeGenerator, builder *prompts.Builder) *LLMDetector {
	if builder == nil {
		builder = prompts.NewBuilder(nil)
	}
	return &LLMDetector{
		generator: generator,
		prompts:   builder,
		logger:    observability.NewStructuredLogger("conflict-detector"),
	}
}

// Detect returns the conflicts found in bundle. With fewer than two
// available sources there is nothing to compare and the model is not
// called.
func (d *LLMDetector) Detect(ctx context.Context, target domain.Entity, bundle domain.EvidenceBundle) ([]domain.Conflict, error) {
	available := bundle.Available()
	if len(available) < 2 {
		d.logger.Debug(ctx, "Skipping conflict detection", map[string]interface{}{
			"available_sources": len(available),
		})
		return []domain.Conflict{}, nil
	}

	reply, err := d.generator.Generate(ctx, d.prompts.Conflicts(target, bundle))
	if errors.Is(err, llm.ErrEmptyResponse) || (err == nil && reply == "") {
		return nil, llm.ErrEmptyResponse
	}
	if err != nil {
		return nil, fmt.Errorf("conflict detection failed: %w", err)
	}

	conflicts := Parse(reply)
	d.logger.Debug(ctx, "Parsed conflict reply", map[string]interface{}{
		"conflicts":   len(conflicts),
		"reply_bytes": len(reply),
	})
	return conflicts, nil
}
