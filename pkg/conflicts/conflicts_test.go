package conflicts_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ncolesummers/company-research-agent/internal/testutil"
	"github.com/ncolesummers/company-research-agent/pkg/conflicts"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/llm"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []domain.Conflict
	}{
		{
			name: "two conflicts",
			reply: `CONFLICTS: YES
- Founding year differs | Sources: Wikipedia vs Web | Confidence: HIGH
- Employee count differs | Sources: Alpha Vantage vs Wikipedia | Confidence: low`,
			want: []domain.Conflict{
				{Description: "Founding year differs", Sources: []string{"Wikipedia", "Web"}, Confidence: domain.ConfidenceHigh},
				{Description: "Employee count differs", Sources: []string{"Alpha Vantage", "Wikipedia"}, Confidence: domain.ConfidenceLow},
			},
		},
		{
			name:  "missing confidence defaults to medium",
			reply: "CONFLICTS: YES\n- HQ city differs | Sources: News vs Wikipedia",
			want: []domain.Conflict{
				{Description: "HQ city differs", Sources: []string{"News", "Wikipedia"}, Confidence: domain.ConfidenceMedium},
			},
		},
		{
			name:  "unknown confidence defaults to medium",
			reply: "- CEO name differs | Sources: Web vs News | Confidence: certain",
			want: []domain.Conflict{
				{Description: "CEO name differs", Sources: []string{"Web", "News"}, Confidence: domain.ConfidenceMedium},
			},
		},
		{
			name:  "unlabelled sources",
			reply: "* Revenue differs | Alpha Vantage, Web | Confidence: MEDIUM",
			want: []domain.Conflict{
				{Description: "Revenue differs", Sources: []string{"Alpha Vantage", "Web"}, Confidence: domain.ConfidenceMedium},
			},
		},
		{
			name:  "explicit no",
			reply: "CONFLICTS: NO\n- No significant conflicts detected",
			want:  []domain.Conflict{},
		},
		{
			name:  "no verdict and no pipes",
			reply: "Everything looks consistent to me.",
			want:  []domain.Conflict{},
		},
		{
			name:  "malformed lines are skipped",
			reply: "CONFLICTS: YES\n- | Sources: a vs b\n- only description\n- Real one | Sources: a vs b",
			want: []domain.Conflict{
				{Description: "Real one", Sources: []string{"a", "b"}, Confidence: domain.ConfidenceMedium},
			},
		},
		{
			name:  "confidence only field has no sources",
			reply: "- Something odd | Confidence: HIGH",
			want:  []domain.Conflict{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conflicts.Parse(tt.reply))
		})
	}
}

func fullBundle() domain.EvidenceBundle {
	var bundle domain.EvidenceBundle
	for _, ev := range testutil.SampleEvidence() {
		bundle.Add(ev)
	}
	return bundle
}

func TestLLMDetector_Detect(t *testing.T) {
	observability.SetLogOutput(io.Discard)
	target := domain.Entity{Name: "Acme Corp"}

	t.Run("parses reply", func(t *testing.T) {
		gen := &testutil.MockGenerator{Text: "CONFLICTS: YES\n- HQ differs | Sources: Web vs Wikipedia | Confidence: LOW"}
		detector := conflicts.NewLLMDetector(gen, nil)

		got, err := detector.Detect(context.Background(), target, fullBundle())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.ConfidenceLow, got[0].Confidence)
		assert.Contains(t, gen.PromptAt(0), "Target Company: Acme Corp")
	})

	t.Run("single source skips the model", func(t *testing.T) {
		gen := &testutil.MockGenerator{}
		detector := conflicts.NewLLMDetector(gen, nil)

		got, err := detector.Detect(context.Background(), target, domain.EvidenceBundle{News: &domain.NewsFeed{}})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.Zero(t, gen.PromptCount())
	})

	t.Run("empty bundle", func(t *testing.T) {
		detector := conflicts.NewLLMDetector(&testutil.MockGenerator{}, nil)
		got, err := detector.Detect(context.Background(), target, domain.EvidenceBundle{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty reply", func(t *testing.T) {
		gen := &testutil.MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", nil
		}}
		_, err := conflicts.NewLLMDetector(gen, nil).Detect(context.Background(), target, fullBundle())
		assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	})

	t.Run("generator error", func(t *testing.T) {
		gen := &testutil.MockGenerator{Err: errors.New("quota exceeded")}
		_, err := conflicts.NewLLMDetector(gen, nil).Detect(context.Background(), target, fullBundle())
		assert.ErrorContains(t, err, "quota exceeded")
	})
}
