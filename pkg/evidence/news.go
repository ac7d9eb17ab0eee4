package evidence

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed/rss"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

const (
	defaultNewsFeedURL = "https://news.google.com/rss/search"

	newsConfidence = 0.75
)

// GoogleNewsProvider reads the Google News RSS search feed
type GoogleNewsProvider struct {
	feedURL  string
	maxItems int
	language string
	region   string
	client   *http.Client
	parser   *rss.Parser
}

// NewGoogleNewsProvider creates the news provider
func NewGoogleNewsProvider(feedURL string, maxItems int, language, region string, client *http.Client) *GoogleNewsProvider {
	if feedURL == "" {
		feedURL = defaultNewsFeedURL
	}
	if maxItems <= 0 {
		maxItems = 5
	}
	if language == "" {
		language = "en-US"
	}
	if region == "" {
		region = "US"
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &GoogleNewsProvider{
		feedURL:  feedURL,
		maxItems: maxItems,
		language: language,
		region:   region,
		client:   client,
		parser:   &rss.Parser{},
	}
}

func (p *GoogleNewsProvider) Name() string              { return "google_news" }
func (p *GoogleNewsProvider) Kind() domain.EvidenceKind { return domain.EvidenceNews }

// Fetch returns the most recent articles mentioning the company. An empty
// feed is a successful empty result.
func (p *GoogleNewsProvider) Fetch(ctx context.Context, entity domain.Entity) (domain.Evidence, error) {
	resp, err := do(ctx, p.client, p.Name(), func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, p.searchURL(entity.Name), nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := p.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse feed: %w", p.Name(), err)
	}

	news := &domain.NewsFeed{Items: []domain.NewsItem{}, Confidence: newsConfidence}
	for _, item := range feed.Items {
		if len(news.Items) >= p.maxItems {
			break
		}
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}

		source := "Unknown"
		if item.Source != nil && item.Source.Title != "" {
			source = item.Source.Title
		}
		news.Items = append(news.Items, domain.NewsItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			PublishedAt: item.PubDateParsed,
			SourceName:  source,
		})
	}
	return news, nil
}

func (p *GoogleNewsProvider) searchURL(company string) string {
	lang := strings.SplitN(p.language, "-", 2)[0]

	query := url.Values{}
	query.Set("q", company)
	query.Set("hl", p.language)
	query.Set("gl", p.region)
	query.Set("ceid", p.region+":"+lang)

	sep := "?"
	if strings.Contains(p.feedURL, "?") {
		sep = "&"
	}
	return p.feedURL + sep + query.Encode()
}
