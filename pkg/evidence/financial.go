package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/prompts"
)

const (
	defaultAlphaVantageURL = "https://www.alphavantage.co"

	financialConfidence = 0.95
)

// ErrRateLimited is returned when Alpha Vantage answers with a usage note
var ErrRateLimited = errors.New("alphavantage: rate limit reached")

// TickerResolver maps a company name to its stock ticker. An empty ticker
// with a nil error means the company is not publicly traded.
type TickerResolver interface {
	Resolve(ctx context.Context, company string) (string, error)
}

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,5}(?:[.\-][A-Z]{1,2})?$`)

// LLMTickerResolver asks a language model for the ticker symbol
type LLMTickerResolver struct {
	generator domain.NarrativeGenerator
}

// NewLLMTickerResolver creates a resolver backed by generator
func NewLLMTickerResolver(generator domain.NarrativeGenerator) *LLMTickerResolver {
	return &LLMTickerResolver{generator: generator}
}

// Resolve returns the ticker the model names, or "" for NONE or anything
// other than a single symbol.
func (r *LLMTickerResolver) Resolve(ctx context.Context, company string) (string, error) {
	reply, err := r.generator.Generate(ctx, prompts.Ticker(company))
	if err != nil {
		return "", fmt.Errorf("ticker resolution failed: %w", err)
	}
	return normalizeTicker(reply), nil
}

func normalizeTicker(reply string) string {
	fields := strings.Fields(strings.ToUpper(reply))
	if len(fields) != 1 {
		return ""
	}
	ticker := strings.Trim(fields[0], "$*`'\".,:;()")
	if ticker == "NONE" || !tickerPattern.MatchString(ticker) {
		return ""
	}
	return ticker
}

// companyOverview mirrors the OVERVIEW payload. Alpha Vantage sends every
// number as a string and uses "None" or "-" for missing values.
type companyOverview struct {
	Symbol               string  `mapstructure:"Symbol"`
	Name                 string  `mapstructure:"Name"`
	Description          string  `mapstructure:"Description"`
	Sector               string  `mapstructure:"Sector"`
	Industry             string  `mapstructure:"Industry"`
	OfficialSite         string  `mapstructure:"OfficialSite"`
	MarketCapitalization float64 `mapstructure:"MarketCapitalization"`
	RevenueTTM           float64 `mapstructure:"RevenueTTM"`
	PERatio              float64 `mapstructure:"PERatio"`
	FullTimeEmployees    int     `mapstructure:"FullTimeEmployees"`
}

// AlphaVantageProvider fetches company fundamentals from Alpha Vantage
type AlphaVantageProvider struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	resolver TickerResolver
}

// NewAlphaVantageProvider creates the financial provider. The resolver is
// consulted when the request carries no ticker.
func NewAlphaVantageProvider(apiKey, baseURL string, resolver TickerResolver, client *http.Client) *AlphaVantageProvider {
	if baseURL == "" {
		baseURL = defaultAlphaVantageURL
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &AlphaVantageProvider{
		apiKey:   apiKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   client,
		resolver: resolver,
	}
}

func (p *AlphaVantageProvider) Name() string              { return "alphavantage" }
func (p *AlphaVantageProvider) Kind() domain.EvidenceKind { return domain.EvidenceFinancial }

// Fetch resolves the ticker and loads the company overview. A private
// company yields empty metrics.
func (p *AlphaVantageProvider) Fetch(ctx context.Context, entity domain.Entity) (domain.Evidence, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("alphavantage: %w", ErrMissingAPIKey)
	}

	ticker := strings.ToUpper(strings.TrimSpace(entity.Ticker))
	if ticker == "" && p.resolver != nil {
		resolved, err := p.resolver.Resolve(ctx, entity.Name)
		if err != nil {
			return nil, err
		}
		ticker = resolved
	}
	if ticker == "" {
		return &domain.FinancialMetrics{Provider: p.Name(), Confidence: financialConfidence}, nil
	}

	query := url.Values{}
	query.Set("function", "OVERVIEW")
	query.Set("symbol", ticker)
	query.Set("apikey", p.apiKey)

	var raw map[string]interface{}
	if err := getJSON(ctx, p.client, p.Name(), p.baseURL+"/query?"+query.Encode(), &raw); err != nil {
		return nil, err
	}
	if msg, ok := firstString(raw, "Note", "Information"); ok {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	if msg, ok := firstString(raw, "Error Message"); ok {
		return nil, fmt.Errorf("alphavantage: %s", msg)
	}

	overview, err := decodeOverview(raw)
	if err != nil {
		return nil, err
	}

	return &domain.FinancialMetrics{
		Provider:    p.Name(),
		Ticker:      ticker,
		Name:        overview.Name,
		Revenue:     overview.RevenueTTM,
		MarketCap:   overview.MarketCapitalization,
		PERatio:     overview.PERatio,
		Employees:   overview.FullTimeEmployees,
		Sector:      titleCase(overview.Sector),
		Industry:    titleCase(overview.Industry),
		Website:     overview.OfficialSite,
		Description: overview.Description,
		Confidence:  financialConfidence,
	}, nil
}

func firstString(raw map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// missingNumberHook turns Alpha Vantage placeholders into zero before the
// weak string to number conversion runs.
func missingNumberHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int32, reflect.Int64:
		switch s := strings.TrimSpace(data.(string)); s {
		case "", "None", "-", "N/A":
			return "0", nil
		default:
			return s, nil
		}
	case reflect.String:
		if s := strings.TrimSpace(data.(string)); s == "None" || s == "-" {
			return "", nil
		}
	}
	return data, nil
}

func decodeOverview(raw map[string]interface{}) (*companyOverview, error) {
	var overview companyOverview
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(missingNumberHook),
		WeaklyTypedInput: true,
		Result:           &overview,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("alphavantage: failed to decode overview: %w", err)
	}
	return &overview, nil
}

// titleCase turns Alpha Vantage's upper case sector names into "Technology"
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
