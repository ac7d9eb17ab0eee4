package domain

import (
	"fmt"
	"time"
)

// EvidenceKind names the source category of an evidence payload
type EvidenceKind string

const (
	EvidenceWeb          EvidenceKind = "web"
	EvidenceFinancial    EvidenceKind = "financial"
	EvidenceEncyclopedia EvidenceKind = "encyclopedia"
	EvidenceNews         EvidenceKind = "news"
)

// Evidence is the success payload of an evidence provider. An empty payload
// is a legitimate result and is distinct from a failed fetch.
type Evidence interface {
	Kind() EvidenceKind
	Empty() bool
	Sources() []Source
}

// SearchHit is one web search result
type SearchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// WebResults holds web search evidence
type WebResults struct {
	Provider   string      `json:"provider"`
	Query      string      `json:"query"`
	Hits       []SearchHit `json:"hits"`
	Confidence float64     `json:"confidence"`
}

func (w *WebResults) Kind() EvidenceKind { return EvidenceWeb }
func (w *WebResults) Empty() bool        { return w == nil || len(w.Hits) == 0 }

func (w *WebResults) Sources() []Source {
	if w == nil {
		return nil
	}
	sources := make([]Source, 0, len(w.Hits))
	for _, h := range w.Hits {
		sources = append(sources, Source{Title: h.Title, URL: h.URL, Provider: w.Provider})
	}
	return sources
}

// FinancialMetrics holds market data about a listed company
type FinancialMetrics struct {
	Provider    string  `json:"provider"`
	Ticker      string  `json:"ticker"`
	Name        string  `json:"name,omitempty"`
	Revenue     float64 `json:"revenue,omitempty"`
	MarketCap   float64 `json:"market_cap,omitempty"`
	PERatio     float64 `json:"pe_ratio,omitempty"`
	Employees   int     `json:"employees,omitempty"`
	Sector      string  `json:"sector,omitempty"`
	Industry    string  `json:"industry,omitempty"`
	Website     string  `json:"website,omitempty"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

func (f *FinancialMetrics) Kind() EvidenceKind { return EvidenceFinancial }

func (f *FinancialMetrics) Empty() bool {
	return f == nil || (f.Revenue == 0 && f.MarketCap == 0 && f.Sector == "" && f.Description == "")
}

func (f *FinancialMetrics) Sources() []Source {
	if f == nil || f.Ticker == "" {
		return nil
	}
	return []Source{{
		Title:    fmt.Sprintf("%s company overview", f.Ticker),
		URL:      "https://finance.yahoo.com/quote/" + f.Ticker,
		Provider: f.Provider,
	}}
}

// EncyclopediaSummary holds an encyclopedia article summary
type EncyclopediaSummary struct {
	Title      string  `json:"title"`
	Summary    string  `json:"summary"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
}

func (e *EncyclopediaSummary) Kind() EvidenceKind { return EvidenceEncyclopedia }
func (e *EncyclopediaSummary) Empty() bool        { return e == nil || e.Summary == "" }

func (e *EncyclopediaSummary) Sources() []Source {
	if e == nil || e.URL == "" {
		return nil
	}
	return []Source{{Title: e.Title, URL: e.URL, Provider: "wikipedia"}}
}

// NewsItem is one article from a news feed
type NewsItem struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	SourceName  string     `json:"source"`
}

// NewsFeed holds recent news evidence
type NewsFeed struct {
	Items      []NewsItem `json:"items"`
	Confidence float64    `json:"confidence"`
}

func (n *NewsFeed) Kind() EvidenceKind { return EvidenceNews }
func (n *NewsFeed) Empty() bool        { return n == nil || len(n.Items) == 0 }

func (n *NewsFeed) Sources() []Source {
	if n == nil {
		return nil
	}
	sources := make([]Source, 0, len(n.Items))
	for _, item := range n.Items {
		sources = append(sources, Source{Title: item.Title, URL: item.Link, Provider: item.SourceName})
	}
	return sources
}

// EvidenceBundle is the union of whatever evidence succeeded. A nil field
// means the source is not available for this run.
type EvidenceBundle struct {
	Web          *WebResults          `json:"web,omitempty"`
	Financial    *FinancialMetrics    `json:"financial,omitempty"`
	Encyclopedia *EncyclopediaSummary `json:"encyclopedia,omitempty"`
	News         *NewsFeed            `json:"news,omitempty"`
}

// Add stores an evidence payload in the matching slot
func (b *EvidenceBundle) Add(e Evidence) {
	switch v := e.(type) {
	case *WebResults:
		b.Web = v
	case *FinancialMetrics:
		b.Financial = v
	case *EncyclopediaSummary:
		b.Encyclopedia = v
	case *NewsFeed:
		b.News = v
	}
}

// Available lists the kinds present in the bundle in catalogue order
func (b EvidenceBundle) Available() []EvidenceKind {
	var kinds []EvidenceKind
	if b.Web != nil {
		kinds = append(kinds, EvidenceWeb)
	}
	if b.Financial != nil {
		kinds = append(kinds, EvidenceFinancial)
	}
	if b.Encyclopedia != nil {
		kinds = append(kinds, EvidenceEncyclopedia)
	}
	if b.News != nil {
		kinds = append(kinds, EvidenceNews)
	}
	return kinds
}

// IsEmpty reports whether no evidence source succeeded
func (b EvidenceBundle) IsEmpty() bool {
	return len(b.Available()) == 0
}

// Sources collects citations from every available source, skipping
// duplicate URLs.
func (b EvidenceBundle) Sources() []Source {
	seen := make(map[string]bool)
	var out []Source
	for _, e := range []Evidence{b.Encyclopedia, b.Financial, b.Web, b.News} {
		if isNilEvidence(e) {
			continue
		}
		for _, s := range e.Sources() {
			if s.URL == "" || seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			out = append(out, s)
		}
	}
	return out
}

func isNilEvidence(e Evidence) bool {
	switch v := e.(type) {
	case *WebResults:
		return v == nil
	case *FinancialMetrics:
		return v == nil
	case *EncyclopediaSummary:
		return v == nil
	case *NewsFeed:
		return v == nil
	}
	return e == nil
}
