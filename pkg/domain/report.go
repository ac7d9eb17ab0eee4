package domain

import (
	"fmt"
	"strings"
)

// Markdown renders the report as a markdown document
func (r *ResearchReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Company Research: %s\n\n", r.Target.Name)
	if !r.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "_Generated %s in %d iterations_\n\n", r.CompletedAt.Format("2006-01-02 15:04 MST"), r.Iterations)
	}

	b.WriteString("## Synthesis\n\n")
	b.WriteString(r.Synthesis.Usable())
	b.WriteString("\n\n")

	if len(r.Conflicts) > 0 {
		b.WriteString("## Data Conflicts\n\n")
		for _, c := range r.Conflicts {
			fmt.Fprintf(&b, "- **%s** %s (%s)\n", c.Confidence, c.Description, strings.Join(c.Sources, " vs "))
		}
		b.WriteString("\n")
	}

	for _, p := range r.Plans {
		title := "Generic Plan"
		if p.Personalized {
			title = "Personalized Plan"
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title, p.Content)
	}

	if failed := r.FailedSteps(); len(failed) > 0 {
		b.WriteString("## Unavailable Sources\n\n")
		for _, name := range failed {
			rec, _ := r.Step(name)
			fmt.Fprintf(&b, "- %s: %s\n", name, rec.Reason)
		}
		b.WriteString("\n")
	}

	if len(r.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for _, s := range r.Sources {
			fmt.Fprintf(&b, "- [%s](%s)", s.Title, s.URL)
			if s.Provider != "" {
				fmt.Fprintf(&b, " _%s_", s.Provider)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
