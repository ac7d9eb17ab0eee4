package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenBudget counts prompt tokens and trims sections that would push a
// prompt past its limit. Every backend is approximated with the GPT-4
// encoding.
type TokenBudget struct {
	codec tokenizer.Codec
	limit int
}

// NewTokenBudget creates a budget of limit tokens. A limit of zero or less
// disables trimming.
func NewTokenBudget(limit int) (*TokenBudget, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenBudget{codec: codec, limit: limit}, nil
}

// Limit returns the configured token limit
func (b *TokenBudget) Limit() int {
	return b.limit
}

// Count returns the number of tokens in text
func (b *TokenBudget) Count(text string) int {
	if b == nil || b.codec == nil {
		// 4 chars per token is the usual rule of thumb
		return len(text) / 4
	}
	count, err := b.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// Fits reports whether text is within the limit
func (b *TokenBudget) Fits(text string) bool {
	return b == nil || b.limit <= 0 || b.Count(text) <= b.limit
}

// Truncate cuts text down to at most limit tokens, on a word boundary
// where possible
func (b *TokenBudget) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	current := b.Count(text)
	if current <= limit {
		return text
	}

	ratio := float64(limit) / float64(current)
	cut := int(float64(len(text)) * ratio * 0.9)
	if cut <= 0 {
		return ""
	}
	if cut >= len(text) {
		return text
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return ""
	}
	if i := strings.LastIndexAny(text[:cut], " \n\t"); i > cut/2 {
		cut = i
	}
	return strings.TrimSpace(text[:cut]) + " [truncated]"
}

// Allocate trims each section so that fixed plus all sections fit the
// limit. Sections are trimmed proportionally to their size, and the fixed
// part is never modified.
func (b *TokenBudget) Allocate(fixed string, sections []string) []string {
	out := make([]string, len(sections))
	copy(out, sections)
	if b == nil || b.limit <= 0 {
		return out
	}

	available := b.limit - b.Count(fixed)
	counts := make([]int, len(sections))
	total := 0
	for i, s := range sections {
		counts[i] = b.Count(s)
		total += counts[i]
	}
	if total <= available {
		return out
	}

	for i, s := range sections {
		if counts[i] == 0 {
			continue
		}
		share := 0
		if available > 0 {
			share = available * counts[i] / total
		}
		out[i] = b.Truncate(s, share)
	}
	return out
}
