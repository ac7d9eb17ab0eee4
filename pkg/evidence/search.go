package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

const (
	defaultDuckDuckGoURL = "https://lite.duckduckgo.com/lite/"
	defaultTavilyURL     = "https://api.tavily.com/search"

	webConfidence = 0.7
)

// Searcher runs one web search query
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]domain.SearchHit, error)
}

// WebSearchProvider gathers general web results about a company
type WebSearchProvider struct {
	searcher   Searcher
	maxResults int
}

// NewWebSearchProvider wraps a searcher as an evidence provider
func NewWebSearchProvider(searcher Searcher, maxResults int) *WebSearchProvider {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &WebSearchProvider{searcher: searcher, maxResults: maxResults}
}

func (p *WebSearchProvider) Name() string              { return p.searcher.Name() }
func (p *WebSearchProvider) Kind() domain.EvidenceKind { return domain.EvidenceWeb }

// Fetch searches for the company's overview, products and services
func (p *WebSearchProvider) Fetch(ctx context.Context, entity domain.Entity) (domain.Evidence, error) {
	query := fmt.Sprintf("%s company overview products services", entity.Name)

	hits, err := p.searcher.Search(ctx, query, p.maxResults)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}

	return &domain.WebResults{
		Provider:   p.searcher.Name(),
		Query:      query,
		Hits:       hits,
		Confidence: webConfidence,
	}, nil
}

// ddgRateLimit keeps DuckDuckGo queries at most one per second process wide
var ddgRateLimit struct {
	mu   sync.Mutex
	last time.Time
}

// DuckDuckGo scrapes the DuckDuckGo lite HTML interface
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo searcher. An empty endpoint selects
// the public lite page.
func NewDuckDuckGo(endpoint string, client *http.Client) *DuckDuckGo {
	if endpoint == "" {
		endpoint = defaultDuckDuckGoURL
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &DuckDuckGo{endpoint: endpoint, client: client}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search posts the query to the lite page and scrapes result links
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("duckduckgo: query is empty")
	}

	ddgRateLimit.mu.Lock()
	wait := time.Until(ddgRateLimit.last.Add(time.Second))
	ddgRateLimit.last = time.Now().Add(max(wait, 0))
	ddgRateLimit.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	form := url.Values{}
	form.Set("q", query)

	resp, err := do(ctx, d.client, d.Name(), func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: failed to read response: %w", err)
	}
	return parseLiteResults(string(body), maxResults), nil
}

var (
	resultLinkPattern = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*>`)
	hrefPattern       = regexp.MustCompile(`href=['"]([^'"]+)['"]`)
	anchorTextPattern = regexp.MustCompile(`(?s)^(.*?)</a>`)
	snippetPattern    = regexp.MustCompile(`(?s)<td[^>]*class=['"]result-snippet['"][^>]*>(.*?)</td>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
)

// parseLiteResults pairs result links with snippets in page order
func parseLiteResults(page string, limit int) []domain.SearchHit {
	hits := []domain.SearchHit{}

	snippets := snippetPattern.FindAllStringSubmatch(page, -1)
	links := resultLinkPattern.FindAllStringIndex(page, -1)

	for i, loc := range links {
		tag := page[loc[0]:loc[1]]
		href := hrefPattern.FindStringSubmatch(tag)
		text := anchorTextPattern.FindStringSubmatch(page[loc[1]:])
		if href == nil || text == nil {
			continue
		}

		hit := domain.SearchHit{
			Title: cleanHTML(text[1]),
			URL:   resolveRedirect(html.UnescapeString(href[1])),
		}
		if i < len(snippets) {
			hit.Snippet = cleanHTML(snippets[i][1])
		}
		if hit.Title == "" || hit.URL == "" {
			continue
		}

		hits = append(hits, hit)
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links
func resolveRedirect(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if strings.HasPrefix(link, "//") {
		return "https:" + link
	}
	return link
}

func cleanHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tavily calls the Tavily search API
type Tavily struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewTavily creates a Tavily searcher. An empty endpoint selects the public API.
func NewTavily(apiKey, endpoint string, client *http.Client) *Tavily {
	if endpoint == "" {
		endpoint = defaultTavilyURL
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &Tavily{apiKey: apiKey, endpoint: endpoint, client: client}
}

func (t *Tavily) Name() string { return "tavily" }

// Search posts a query to Tavily
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchHit, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, fmt.Errorf("tavily: %w", ErrMissingAPIKey)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"query":        query,
		"api_key":      t.apiKey,
		"search_depth": "basic",
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, err
	}

	resp, err := do(ctx, t.client, t.Name(), func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: failed to decode response: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(response.Results))
	for _, r := range response.Results {
		hits = append(hits, domain.SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if maxResults > 0 && len(hits) >= maxResults {
			break
		}
	}
	return hits, nil
}
