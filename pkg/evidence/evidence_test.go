package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ncolesummers/company-research-agent/internal/testutil"
	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acme = domain.Entity{Name: "Acme Corp"}

const liteHTML = `<html><body><table>
<tr><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Facme.test%2Fabout&amp;rut=x" class='result-link'>About <b>Acme</b> &amp; Co</a></td></tr>
<tr><td class='result-snippet'>Acme <b>makes</b> anvils.</td></tr>
<tr><td><a rel="nofollow" href="https://news.test/acme" class='result-link'>Acme in the news</a></td></tr>
<tr><td class='result-snippet'>Second snippet</td></tr>
</table></body></html>`

func TestDuckDuckGo_Search(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query = r.PostForm.Get("q")
		_, _ = w.Write([]byte(liteHTML))
	}))
	defer server.Close()

	provider := NewWebSearchProvider(NewDuckDuckGo(server.URL, server.Client()), 10)
	ev, err := provider.Fetch(testutil.NewTestContext(t), acme)
	require.NoError(t, err)

	web := ev.(*domain.WebResults)
	assert.Equal(t, "Acme Corp company overview products services", query)
	assert.Equal(t, "duckduckgo", web.Provider)
	require.Len(t, web.Hits, 2)
	assert.Equal(t, domain.SearchHit{Title: "About Acme & Co", Snippet: "Acme makes anvils.", URL: "https://acme.test/about"}, web.Hits[0])
	assert.Equal(t, "https://news.test/acme", web.Hits[1].URL)
	assert.Equal(t, 0.7, web.Confidence)
}

func TestParseLiteResults_Limit(t *testing.T) {
	assert.Len(t, parseLiteResults(liteHTML, 1), 1)
	assert.Empty(t, parseLiteResults("<html>no results</html>", 5))
}

func TestTavily_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "secret", body["api_key"])
		_, _ = w.Write([]byte(`{"results":[{"title":"Acme","url":"https://acme.test","content":"Anvils"},{"title":"B","url":"https://b.test","content":"b"}]}`))
	}))
	defer server.Close()

	hits, err := NewTavily("secret", server.URL, server.Client()).Search(context.Background(), "acme", 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.SearchHit{{Title: "Acme", URL: "https://acme.test", Snippet: "Anvils"}}, hits)
}

func TestTavily_MissingKey(t *testing.T) {
	_, err := NewTavily("", "http://unused.invalid", nil).Search(context.Background(), "acme", 5)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDo_RetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	hits, err := NewTavily("k", server.URL, server.Client()).Search(testutil.NewTestContext(t), "acme", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewWikipediaProvider(server.URL, "en", 3, server.Client()).Fetch(context.Background(), acme)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "wikipedia", statusErr.Provider)
}

type stubResolver struct {
	ticker string
	err    error
	calls  int
}

func (s *stubResolver) Resolve(ctx context.Context, company string) (string, error) {
	s.calls++
	return s.ticker, s.err
}

func alphaVantageServer(t *testing.T, body string) (*httptest.Server, *string) {
	t.Helper()
	var symbol string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		symbol = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &symbol
}

func TestAlphaVantage_Fetch(t *testing.T) {
	server, symbol := alphaVantageServer(t, `{
		"Symbol": "ACME", "Name": "Acme Corp", "Description": "Makes anvils.",
		"Sector": "INDUSTRIALS", "Industry": "MACHINE TOOLS",
		"MarketCapitalization": "20000000000", "RevenueTTM": "1500000000",
		"PERatio": "None", "FullTimeEmployees": "1200", "OfficialSite": "-"
	}`)
	resolver := &stubResolver{ticker: "ACME"}

	ev, err := NewAlphaVantageProvider("key", server.URL, resolver, server.Client()).Fetch(context.Background(), acme)
	require.NoError(t, err)

	fin := ev.(*domain.FinancialMetrics)
	assert.Equal(t, "ACME", *symbol)
	assert.Equal(t, 1, resolver.calls)
	assert.Equal(t, 1.5e9, fin.Revenue)
	assert.Equal(t, 2e10, fin.MarketCap)
	assert.Zero(t, fin.PERatio)
	assert.Equal(t, 1200, fin.Employees)
	assert.Equal(t, "Industrials", fin.Sector)
	assert.Equal(t, "Machine Tools", fin.Industry)
	assert.Empty(t, fin.Website)
	assert.Equal(t, 0.95, fin.Confidence)
}

func TestAlphaVantage_RequestTickerSkipsResolver(t *testing.T) {
	server, symbol := alphaVantageServer(t, `{"Symbol":"WID","RevenueTTM":"10"}`)
	resolver := &stubResolver{ticker: "WRONG"}

	_, err := NewAlphaVantageProvider("key", server.URL, resolver, server.Client()).
		Fetch(context.Background(), domain.Entity{Name: "Widgets", Ticker: "wid"})
	require.NoError(t, err)
	assert.Equal(t, "WID", *symbol)
	assert.Zero(t, resolver.calls)
}

func TestAlphaVantage_Failures(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewAlphaVantageProvider("", "", nil, nil).Fetch(context.Background(), acme)
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("rate limited", func(t *testing.T) {
		server, _ := alphaVantageServer(t, `{"Note":"Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
		_, err := NewAlphaVantageProvider("key", server.URL, &stubResolver{ticker: "ACME"}, server.Client()).Fetch(context.Background(), acme)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("resolver error", func(t *testing.T) {
		resolver := &stubResolver{err: errors.New("model offline")}
		_, err := NewAlphaVantageProvider("key", "http://unused.invalid", resolver, nil).Fetch(context.Background(), acme)
		assert.ErrorContains(t, err, "model offline")
	})
}

func TestAlphaVantage_PrivateCompanyIsEmpty(t *testing.T) {
	ev, err := NewAlphaVantageProvider("key", "http://unused.invalid", &stubResolver{}, nil).Fetch(context.Background(), acme)
	require.NoError(t, err)
	assert.True(t, ev.Empty())
}

func TestLLMTickerResolver(t *testing.T) {
	tests := []struct {
		reply string
		want  string
	}{
		{"ACME", "ACME"},
		{" msft\n", "MSFT"},
		{"BRK.B", "BRK.B"},
		{"**AAPL**", "AAPL"},
		{"NONE", ""},
		{"The ticker is probably ACME", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			gen := &testutil.MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
				return tt.reply, nil
			}}
			got, err := NewLLMTickerResolver(gen).Resolve(context.Background(), "Acme Corp")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, gen.PromptAt(0), "Acme Corp")
		})
	}
}

func TestWikipedia_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/w/api.php":
			assert.Equal(t, "Acme Corp", r.URL.Query().Get("search"))
			_, _ = w.Write([]byte(`["Acme Corp",["Acme Corporation"],[""],["https://en.wikipedia.org/wiki/Acme_Corporation"]]`))
		case strings.HasPrefix(r.URL.Path, "/api/rest_v1/page/summary/"):
			assert.Equal(t, "/api/rest_v1/page/summary/Acme_Corporation", r.URL.Path)
			_, _ = w.Write([]byte(`{"title":"Acme Corporation","extract":"One. Two. Three.","content_urls":{"desktop":{"page":"https://en.wikipedia.org/wiki/Acme_Corporation"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ev, err := NewWikipediaProvider(server.URL, "en", 2, server.Client()).Fetch(context.Background(), acme)
	require.NoError(t, err)

	summary := ev.(*domain.EncyclopediaSummary)
	assert.Equal(t, "Acme Corporation", summary.Title)
	assert.Equal(t, "One. Two.", summary.Summary)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Acme_Corporation", summary.URL)
}

func TestWikipedia_NoArticleIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["Acme Corp",[],[],[]]`))
	}))
	defer server.Close()

	ev, err := NewWikipediaProvider(server.URL, "en", 5, server.Client()).Fetch(context.Background(), acme)
	require.NoError(t, err)
	assert.True(t, ev.Empty())
}

func TestFirstSentences(t *testing.T) {
	assert.Equal(t, "Acme Inc. is big.", firstSentences("Acme Inc. is big. It sells anvils.", 2))
	assert.Equal(t, "No terminator", firstSentences("No terminator", 3))
	assert.Len(t, []rune(clip(strings.Repeat("é", 1200), maxSummaryChars)), maxSummaryChars)
}

const newsRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Acme - Google News</title>
<item><title>Acme opens plant</title><link>https://news.test/1</link><pubDate>Sat, 01 Mar 2025 12:00:00 GMT</pubDate><source url="https://planet.test">Daily Planet</source></item>
<item><title>Acme hires CEO</title><link>https://news.test/2</link></item>
<item><title>Acme third</title><link>https://news.test/3</link></item>
</channel></rss>`

func TestGoogleNews_Fetch(t *testing.T) {
	var rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(newsRSS))
	}))
	defer server.Close()

	ev, err := NewGoogleNewsProvider(server.URL, 2, "en-US", "US", server.Client()).Fetch(context.Background(), acme)
	require.NoError(t, err)

	feed := ev.(*domain.NewsFeed)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "Acme opens plant", feed.Items[0].Title)
	assert.Equal(t, "Daily Planet", feed.Items[0].SourceName)
	require.NotNil(t, feed.Items[0].PublishedAt)
	assert.Equal(t, 2025, feed.Items[0].PublishedAt.Year())
	assert.Equal(t, "Unknown", feed.Items[1].SourceName)
	assert.Contains(t, rawQuery, "q=Acme+Corp")
	assert.Contains(t, rawQuery, "ceid=US%3Aen")
}

func TestGoogleNews_EmptyFeedIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>none</title></channel></rss>`))
	}))
	defer server.Close()

	ev, err := NewGoogleNewsProvider(server.URL, 5, "", "", server.Client()).Fetch(context.Background(), acme)
	require.NoError(t, err)
	assert.True(t, ev.Empty())
	assert.NotNil(t, ev.(*domain.NewsFeed).Items)
}

func TestGoogleNews_MalformedFeedFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not xml at all`))
	}))
	defer server.Close()

	_, err := NewGoogleNewsProvider(server.URL, 5, "", "", server.Client()).Fetch(context.Background(), acme)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	web := &testutil.MockProvider{EvidenceKind: domain.EvidenceWeb}
	news := &testutil.MockProvider{EvidenceKind: domain.EvidenceNews}

	require.NoError(t, registry.Register(news))
	require.NoError(t, registry.Register(web))
	assert.Error(t, registry.Register(nil))
	assert.ErrorContains(t, registry.Register(&testutil.MockProvider{EvidenceKind: domain.EvidenceWeb, ProviderName: "other"}), "already provided")

	got, err := registry.Get(domain.EvidenceNews)
	require.NoError(t, err)
	assert.Same(t, news, got)

	_, err = registry.Get(domain.EvidenceFinancial)
	assert.Error(t, err)

	list := registry.List()
	require.Len(t, list, 2)
	assert.Same(t, web, list[0])
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.Default().Providers

	registry, err := NewRegistryFromConfig(cfg, &stubResolver{}, nil)
	require.NoError(t, err)
	assert.Len(t, registry.List(), 4)

	web, err := registry.Get(domain.EvidenceWeb)
	require.NoError(t, err)
	assert.Equal(t, "duckduckgo", web.Name())

	cfg.WebSearch.Provider = "tavily"
	registry, err = NewRegistryFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	web, _ = registry.Get(domain.EvidenceWeb)
	assert.Equal(t, "tavily", web.Name())

	cfg.WebSearch.Provider = "bing"
	_, err = NewRegistryFromConfig(cfg, nil, nil)
	assert.Error(t, err)
}
