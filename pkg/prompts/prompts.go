// Package prompts renders the language model prompts used by the research
// pipeline. Evidence that did not succeed is always rendered as
// "not available" so the model never sees a value for a failed source.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/llm"
)

// NotAvailable marks evidence that failed or was never gathered
const NotAvailable = "not available"

// PlanSections lists the sections each plan variant is asked to cover
var PlanSections = map[domain.PlanVariant][]string{
	domain.PlanPersonalized: {
		"Company Overview",
		"Why They Need Your Solution",
		"Key Stakeholders",
		"Conversation Starters",
		"Objection Handling",
		"Recommended Next Steps",
	},
	domain.PlanGeneric: {
		"Company Overview",
		"Leadership Team",
		"Financial Snapshot",
		"SWOT Analysis",
		"Market Opportunities",
		"Risks & Challenges",
		"Recent News & Developments",
		"Strategic Recommendations",
		"Data Quality Notes",
	},
}

// Builder renders prompts within a token budget. A nil budget disables
// trimming.
type Builder struct {
	budget *llm.TokenBudget
}

// NewBuilder creates a prompt builder
func NewBuilder(budget *llm.TokenBudget) *Builder {
	return &Builder{budget: budget}
}

// evidenceSections renders one block per evidence kind in a fixed order
func evidenceSections(bundle domain.EvidenceBundle, webLimit, newsLimit int) []string {
	return []string{
		encyclopediaSection(bundle.Encyclopedia),
		financialSection(bundle.Financial),
		webSection(bundle.Web, webLimit),
		newsSection(bundle.News, newsLimit),
	}
}

func encyclopediaSection(e *domain.EncyclopediaSummary) string {
	var b strings.Builder
	b.WriteString("## Encyclopedia Overview\n")
	switch {
	case e == nil:
		b.WriteString(NotAvailable)
	case e.Empty():
		b.WriteString("No encyclopedia article found.")
	default:
		b.WriteString(e.Summary)
	}
	return b.String()
}

func financialSection(f *domain.FinancialMetrics) string {
	var b strings.Builder
	b.WriteString("## Financial Information\n")
	if f == nil {
		b.WriteString(NotAvailable)
		return b.String()
	}
	if f.Empty() {
		b.WriteString("No financial data found.")
		return b.String()
	}
	fmt.Fprintf(&b, "- Ticker: %s\n", orNA(f.Ticker))
	fmt.Fprintf(&b, "- Revenue: %s\n", money(f.Revenue))
	fmt.Fprintf(&b, "- Market Cap: %s\n", money(f.MarketCap))
	if f.PERatio != 0 {
		fmt.Fprintf(&b, "- P/E Ratio: %.2f\n", f.PERatio)
	}
	if f.Employees != 0 {
		fmt.Fprintf(&b, "- Employees: %d\n", f.Employees)
	}
	fmt.Fprintf(&b, "- Sector: %s\n", orNA(f.Sector))
	fmt.Fprintf(&b, "- Industry: %s\n", orNA(f.Industry))
	if f.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", f.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func webSection(w *domain.WebResults, limit int) string {
	var b strings.Builder
	b.WriteString("## Web Research\n")
	switch {
	case w == nil:
		b.WriteString(NotAvailable)
	case w.Empty():
		b.WriteString("No web results found.")
	default:
		for i, hit := range w.Hits {
			if i >= limit {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, hit.Title, hit.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func newsSection(n *domain.NewsFeed, limit int) string {
	var b strings.Builder
	b.WriteString("## Recent News\n")
	switch {
	case n == nil:
		b.WriteString(NotAvailable)
	case n.Empty():
		b.WriteString("No recent news articles found.")
	default:
		for i, item := range n.Items {
			if i >= limit {
				break
			}
			line := item.Title
			if item.SourceName != "" {
				line += " (" + item.SourceName + ")"
			}
			if item.PublishedAt != nil {
				line += " - " + item.PublishedAt.Format("2006-01-02")
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func conflictSection(conflicts []domain.Conflict) string {
	var b strings.Builder
	b.WriteString("## Data Conflicts Detected\n")
	if len(conflicts) == 0 {
		b.WriteString("None detected")
		return b.String()
	}
	for _, c := range conflicts {
		fmt.Fprintf(&b, "- %s | Sources: %s | Confidence: %s\n", c.Description, strings.Join(c.Sources, " vs "), c.Confidence)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func money(v float64) string {
	switch {
	case v == 0:
		return "N/A"
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func (b *Builder) assemble(header string, sections []string, footer string) string {
	sections = b.budget.Allocate(header+footer, sections)
	parts := make([]string, 0, len(sections)+2)
	parts = append(parts, header)
	for _, s := range sections {
		if s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, footer)
	return strings.Join(parts, "\n\n")
}

// Conflicts renders the fact checking prompt. The reply grammar is parsed
// by the conflicts package.
func (b *Builder) Conflicts(target domain.Entity, bundle domain.EvidenceBundle) string {
	header := fmt.Sprintf(`You are a fact-checking agent. Review the following research data about a company and identify any CONFLICTS or CONTRADICTIONS between sources.

Target Company: %s`, target.Name)

	footer := `TASK: Identify ONLY significant conflicts or contradictions. For example:
- Different founding years
- Conflicting revenue figures
- Contradictory information about headquarters location
- Different CEO names

Sources marked "not available" must be ignored.

Return your response in this EXACT format:
CONFLICTS: [YES or NO]

If YES, list each conflict like:
- [Brief description of conflict] | Sources: [source1] vs [source2] | Confidence: [HIGH/MEDIUM/LOW]

Be strict - only report actual conflicts, not minor differences or updates.`

	return b.assemble(header, evidenceSections(bundle, 3, 3), footer)
}

// Synthesis renders the consolidation prompt
func (b *Builder) Synthesis(target domain.Entity, bundle domain.EvidenceBundle, conflicts []domain.Conflict) string {
	header := fmt.Sprintf("You are a research synthesis agent. Combine the following research data about %s into a comprehensive, accurate summary.", target.Name)

	footer := `Create a synthesis with these sections:

## Company Overview
## Business Model
## Market Position
## Recent Developments
## Key Metrics
## Target Customer Profile

Only use facts present above. Never state figures for a source marked "not available"; say the data is unavailable instead. Be factual and concise, and note confidence levels when uncertain.`

	sections := append(evidenceSections(bundle, 5, 3), conflictSection(conflicts))
	return b.assemble(header, sections, footer)
}

// Plan renders the prompt for one plan variant. Requester details are only
// included for the personalized variant.
func (b *Builder) Plan(variant domain.PlanVariant, target domain.Entity, requester domain.RequesterContext, synthesis domain.Narrative, bundle domain.EvidenceBundle, conflicts []domain.Conflict) string {
	var header string
	if variant == domain.PlanPersonalized {
		header = fmt.Sprintf("You are a sales strategist preparing %s for a conversation with %s.\n\n%s",
			requesterName(requester), target.Name, requesterSection(requester))
	} else {
		header = fmt.Sprintf("You are a business analyst creating a comprehensive account plan ABOUT %s.", target.Name)
	}

	var footer strings.Builder
	fmt.Fprintf(&footer, "Create a %s account plan for %s with these sections:\n\n", variant, target.Name)
	for _, s := range PlanSections[variant] {
		fmt.Fprintf(&footer, "## %s\n", s)
	}
	if len(conflicts) > 0 {
		fmt.Fprintf(&footer, "\nNote: %d data conflicts were found and may need verification.\n", len(conflicts))
	}
	footer.WriteString("\nBe specific to the company and cite data points from the research. Do not invent figures for unavailable sources.")

	sections := []string{
		"## Research Synthesis\n" + synthesis.Usable(),
		financialSection(bundle.Financial),
		newsSection(bundle.News, 5),
		conflictSection(conflicts),
	}
	return b.assemble(header, sections, footer.String())
}

func requesterName(r domain.RequesterContext) string {
	switch {
	case r.Name != "" && r.Company != "":
		return fmt.Sprintf("%s from %s", r.Name, r.Company)
	case r.Name != "":
		return r.Name
	default:
		return "a seller"
	}
}

func requesterSection(r domain.RequesterContext) string {
	if r.IsZero() {
		return "## Seller Context\n" + NotAvailable
	}
	var b strings.Builder
	b.WriteString("## Seller Context\n")
	fmt.Fprintf(&b, "- Name: %s\n", orNA(r.Name))
	fmt.Fprintf(&b, "- Role: %s\n", orNA(r.Role))
	fmt.Fprintf(&b, "- Company: %s\n", orNA(r.Company))
	if r.Industry != "" {
		fmt.Fprintf(&b, "- Industry: %s\n", r.Industry)
	}
	fmt.Fprintf(&b, "- Product/Service: %s\n", orNA(r.ProductService))
	fmt.Fprintf(&b, "- Research Purpose: %s\n", orNA(r.ResearchPurpose))
	if len(r.FocusAreas) > 0 {
		fmt.Fprintf(&b, "- Focus Areas: %s\n", strings.Join(r.FocusAreas, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Ticker renders the ticker resolution prompt
func Ticker(company string) string {
	return fmt.Sprintf(`What is the stock ticker symbol for %s?
Reply with ONLY the ticker symbol (e.g. AAPL). If the company is not publicly traded, reply with NONE.`, company)
}
