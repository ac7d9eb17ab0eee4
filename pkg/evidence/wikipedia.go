package evidence

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

const (
	encyclopediaConfidence = 0.85
	maxSummaryChars        = 1000
)

// WikipediaProvider looks the company up on Wikipedia and returns the lead
// section summary.
type WikipediaProvider struct {
	baseURL   string
	sentences int
	client    *http.Client
}

// NewWikipediaProvider creates the encyclopedia provider. An empty baseURL
// selects the Wikipedia edition for language.
func NewWikipediaProvider(baseURL, language string, sentences int, client *http.Client) *WikipediaProvider {
	if language == "" {
		language = "en"
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.wikipedia.org", language)
	}
	if sentences <= 0 {
		sentences = 5
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &WikipediaProvider{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		sentences: sentences,
		client:    client,
	}
}

func (p *WikipediaProvider) Name() string              { return "wikipedia" }
func (p *WikipediaProvider) Kind() domain.EvidenceKind { return domain.EvidenceEncyclopedia }

// Fetch searches for the best matching article and loads its summary
func (p *WikipediaProvider) Fetch(ctx context.Context, entity domain.Entity) (domain.Evidence, error) {
	title, err := p.search(ctx, entity.Name)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return &domain.EncyclopediaSummary{Confidence: encyclopediaConfidence}, nil
	}

	var page struct {
		Title       string `json:"title"`
		Extract     string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	endpoint := p.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	if err := getJSON(ctx, p.client, p.Name(), endpoint, &page); err != nil {
		return nil, err
	}

	pageURL := page.ContentURLs.Desktop.Page
	if pageURL == "" {
		pageURL = p.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	}
	if page.Title == "" {
		page.Title = title
	}

	return &domain.EncyclopediaSummary{
		Title:      page.Title,
		Summary:    clip(firstSentences(page.Extract, p.sentences), maxSummaryChars),
		URL:        pageURL,
		Confidence: encyclopediaConfidence,
	}, nil
}

// search returns the title of the first opensearch hit, "" when none
func (p *WikipediaProvider) search(ctx context.Context, company string) (string, error) {
	query := url.Values{}
	query.Set("action", "opensearch")
	query.Set("search", company)
	query.Set("limit", "1")
	query.Set("namespace", "0")
	query.Set("format", "json")

	// [query, [titles], [descriptions], [urls]]
	var result []interface{}
	if err := getJSON(ctx, p.client, p.Name(), p.baseURL+"/w/api.php?"+query.Encode(), &result); err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", nil
	}
	titles, ok := result[1].([]interface{})
	if !ok || len(titles) == 0 {
		return "", nil
	}
	title, _ := titles[0].(string)
	return title, nil
}

func firstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	count := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '.' && text[i] != '!' && text[i] != '?' {
			continue
		}
		if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
			count++
			if count == n {
				return text[:i+1]
			}
		}
	}
	return text
}

func clip(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
