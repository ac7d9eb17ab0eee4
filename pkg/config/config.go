package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Research      ResearchConfig      `yaml:"research"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig selects and tunes the language model backend
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "ollama", "gemini", "anthropic", "openai"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKey      string  `yaml:"-"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p,omitempty"`
	TopK        int     `yaml:"top_k,omitempty"`
	Timeout     string  `yaml:"timeout"`
}

// ResearchConfig contains research pipeline configuration
type ResearchConfig struct {
	// MaxIterations caps scheduler iterations; 0 means one per catalogue step
	MaxIterations    int    `yaml:"max_iterations"`
	PlanVariants     int    `yaml:"plan_variants"`
	StepTimeout      string `yaml:"step_timeout"`
	Timeout          string `yaml:"timeout"`
	ParallelEvidence bool   `yaml:"parallel_evidence"`
	MaxPromptTokens  int    `yaml:"max_prompt_tokens"`
}

// ProvidersConfig configures the evidence sources
type ProvidersConfig struct {
	WebSearch    WebSearchConfig    `yaml:"web_search"`
	Financial    FinancialConfig    `yaml:"financial"`
	Encyclopedia EncyclopediaConfig `yaml:"encyclopedia"`
	News         NewsConfig         `yaml:"news"`
	// CircuitBreaker guards every provider against repeated failures
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// WebSearchConfig contains web search provider configuration
type WebSearchConfig struct {
	Provider   string `yaml:"provider"` // "duckduckgo", "tavily"
	APIKey     string `yaml:"-"`
	BaseURL    string `yaml:"base_url,omitempty"`
	MaxResults int    `yaml:"max_results"`
}

// FinancialConfig contains financial data provider configuration
type FinancialConfig struct {
	Provider string `yaml:"provider"` // "alphavantage"
	APIKey   string `yaml:"-"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// EncyclopediaConfig contains encyclopedia provider configuration
type EncyclopediaConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	Language  string `yaml:"language"`
	Sentences int    `yaml:"sentences"`
}

// NewsConfig contains news feed configuration
type NewsConfig struct {
	FeedURL  string `yaml:"feed_url,omitempty"`
	MaxItems int    `yaml:"max_items"`
	Language string `yaml:"language"`
	Region   string `yaml:"region"`
}

// CircuitBreakerConfig tunes the provider circuit breaker
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold int    `yaml:"failure_threshold"`
	SuccessThreshold int    `yaml:"success_threshold"`
	OpenDuration     string `yaml:"open_duration"`
}

// StorageConfig contains report archive configuration
type StorageConfig struct {
	Type             string      `yaml:"type"` // "memory", "file", "database", "redis"
	Path             string      `yaml:"path,omitempty"`
	ConnectionString string      `yaml:"connection_string,omitempty"`
	TTL              string      `yaml:"ttl,omitempty"`
	Redis            RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// APIConfig contains API server configuration
type APIConfig struct {
	Port           int    `yaml:"port"`
	Host           string `yaml:"host"`
	RequestTimeout string `yaml:"request_timeout"`
	// MaxConcurrentRuns bounds research runs served at once; 0 means 4
	MaxConcurrentRuns int        `yaml:"max_concurrent_runs"`
	CORS              CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output   string `yaml:"output"` // "stdout", "stderr", "file"
	FilePath string `yaml:"file_path,omitempty"`
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.overrideFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file or returns default config.
// Environment overrides apply in both cases.
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		config = Default()
		config.overrideFromEnv()
	}
	return config
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "llama3.2",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.3,
			MaxTokens:   2048,
			Timeout:     "2m",
		},
		Research: ResearchConfig{
			MaxIterations:   0,
			PlanVariants:    1,
			StepTimeout:     "90s",
			Timeout:         "10m",
			MaxPromptTokens: 6000,
		},
		Providers: ProvidersConfig{
			WebSearch: WebSearchConfig{
				Provider:   "duckduckgo",
				MaxResults: 10,
			},
			Financial: FinancialConfig{
				Provider: "alphavantage",
			},
			Encyclopedia: EncyclopediaConfig{
				Language:  "en",
				Sentences: 5,
			},
			News: NewsConfig{
				MaxItems: 5,
				Language: "en-US",
				Region:   "US",
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 3,
				OpenDuration:     "30s",
			},
		},
		Storage: StorageConfig{
			Type:             "memory",
			Path:             "./data/reports",
			ConnectionString: "./data/reports.db",
			TTL:              "168h",
			Redis: RedisConfig{
				Address: "localhost:6379",
			},
		},
		API: APIConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			RequestTimeout:    "15m",
			MaxConcurrentRuns: 4,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type"},
			},
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      false,
				Endpoint:     "localhost:4318",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Output: "stderr",
			},
		},
	}
}

// applyDefaults applies default values to missing fields
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.LLM.Provider == "" {
		c.LLM.Provider = defaults.LLM.Provider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel(c.LLM.Provider)
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == "ollama" {
		c.LLM.BaseURL = defaults.LLM.BaseURL
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = defaults.LLM.Temperature
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = defaults.LLM.MaxTokens
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = defaults.LLM.Timeout
	}

	if c.Research.PlanVariants == 0 {
		c.Research.PlanVariants = defaults.Research.PlanVariants
	}
	if c.Research.StepTimeout == "" {
		c.Research.StepTimeout = defaults.Research.StepTimeout
	}
	if c.Research.Timeout == "" {
		c.Research.Timeout = defaults.Research.Timeout
	}
	if c.Research.MaxPromptTokens == 0 {
		c.Research.MaxPromptTokens = defaults.Research.MaxPromptTokens
	}

	if c.Providers.WebSearch.Provider == "" {
		c.Providers.WebSearch.Provider = defaults.Providers.WebSearch.Provider
	}
	if c.Providers.WebSearch.MaxResults == 0 {
		c.Providers.WebSearch.MaxResults = defaults.Providers.WebSearch.MaxResults
	}
	if c.Providers.Financial.Provider == "" {
		c.Providers.Financial.Provider = defaults.Providers.Financial.Provider
	}
	if c.Providers.Encyclopedia.Language == "" {
		c.Providers.Encyclopedia.Language = defaults.Providers.Encyclopedia.Language
	}
	if c.Providers.Encyclopedia.Sentences == 0 {
		c.Providers.Encyclopedia.Sentences = defaults.Providers.Encyclopedia.Sentences
	}
	if c.Providers.News.MaxItems == 0 {
		c.Providers.News.MaxItems = defaults.Providers.News.MaxItems
	}
	if c.Providers.News.Language == "" {
		c.Providers.News.Language = defaults.Providers.News.Language
	}
	if c.Providers.News.Region == "" {
		c.Providers.News.Region = defaults.Providers.News.Region
	}
	if c.Providers.CircuitBreaker.FailureThreshold == 0 {
		c.Providers.CircuitBreaker.FailureThreshold = defaults.Providers.CircuitBreaker.FailureThreshold
	}
	if c.Providers.CircuitBreaker.SuccessThreshold == 0 {
		c.Providers.CircuitBreaker.SuccessThreshold = defaults.Providers.CircuitBreaker.SuccessThreshold
	}
	if c.Providers.CircuitBreaker.OpenDuration == "" {
		c.Providers.CircuitBreaker.OpenDuration = defaults.Providers.CircuitBreaker.OpenDuration
	}

	if c.Storage.Type == "" {
		c.Storage.Type = defaults.Storage.Type
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaults.Storage.Path
	}
	if c.Storage.ConnectionString == "" {
		c.Storage.ConnectionString = defaults.Storage.ConnectionString
	}
	if c.Storage.Redis.Address == "" {
		c.Storage.Redis.Address = defaults.Storage.Redis.Address
	}

	if c.API.Port == 0 {
		c.API.Port = defaults.API.Port
	}
	if c.API.Host == "" {
		c.API.Host = defaults.API.Host
	}
	if c.API.RequestTimeout == "" {
		c.API.RequestTimeout = defaults.API.RequestTimeout
	}
	if c.API.MaxConcurrentRuns == 0 {
		c.API.MaxConcurrentRuns = defaults.API.MaxConcurrentRuns
	}

	if c.Observability.Tracing.SamplingRate == 0 {
		c.Observability.Tracing.SamplingRate = defaults.Observability.Tracing.SamplingRate
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaults.Observability.Logging.Level
	}
	if c.Observability.Logging.Output == "" {
		c.Observability.Logging.Output = defaults.Observability.Logging.Output
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "gemini":
		return "gemini-2.5-flash"
	case "anthropic":
		return "claude-sonnet-4-5"
	case "openai":
		return "gpt-4o-mini"
	default:
		return "llama3.2"
	}
}

// overrideFromEnv overrides configuration from environment variables.
// Secrets are only ever read from the environment.
func (c *Config) overrideFromEnv() {
	if provider := os.Getenv("CRA_LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
		c.LLM.Model = defaultModel(provider)
	}
	if model := os.Getenv("CRA_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	switch c.LLM.Provider {
	case "gemini":
		c.LLM.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	case "anthropic":
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	c.Providers.WebSearch.APIKey = os.Getenv("TAVILY_API_KEY")
	c.Providers.Financial.APIKey = firstEnv("ALPHA_VANTAGE_API_KEY", "ALPHAVANTAGE_API_KEY")
	c.Storage.Redis.Password = os.Getenv("REDIS_PASSWORD")

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Storage.Redis.Address = addr
	}

	if port := os.Getenv("API_PORT"); port != "" {
		_, err := fmt.Sscanf(port, "%d", &c.API.Port)
		if err != nil {
			log.Printf("Invalid API_PORT value: %s, using default: %d", port, c.API.Port)
		}
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Observability.Tracing.Endpoint = endpoint
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Observability.Logging.Level = level
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// validate validates the configuration
func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("llm base_url is required for ollama")
		}
	case "gemini", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	if c.Research.MaxIterations < 0 {
		return fmt.Errorf("research max_iterations must not be negative")
	}
	if c.Research.PlanVariants < 1 || c.Research.PlanVariants > 2 {
		return fmt.Errorf("research plan_variants must be 1 or 2")
	}

	switch c.Providers.WebSearch.Provider {
	case "duckduckgo", "tavily":
	default:
		return fmt.Errorf("unknown web search provider: %s", c.Providers.WebSearch.Provider)
	}

	switch c.Storage.Type {
	case "memory", "file", "database", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api port must be between 1 and 65535")
	}

	for name, value := range map[string]string{
		"llm timeout":                   c.LLM.Timeout,
		"research step_timeout":         c.Research.StepTimeout,
		"research timeout":              c.Research.Timeout,
		"api request_timeout":           c.API.RequestTimeout,
		"circuit_breaker open_duration": c.Providers.CircuitBreaker.OpenDuration,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	switch strings.ToLower(c.Observability.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Observability.Logging.Level)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDuration parses a duration string from config
func (c *Config) GetDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}

// MustDuration parses a duration that validate already checked
func MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := os.Getenv("ENVIRONMENT")
	return strings.ToLower(env) == "production" || strings.ToLower(env) == "prod"
}
