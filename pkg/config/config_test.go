package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: gemini
research:
  parallel_evidence: true
storage:
  type: redis
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.BaseURL, "base url only defaults for ollama")
	assert.True(t, cfg.Research.ParallelEvidence)
	assert.Equal(t, 0, cfg.Research.MaxIterations)
	assert.Equal(t, 1, cfg.Research.PlanVariants)
	assert.Equal(t, "90s", cfg.Research.StepTimeout)
	assert.Equal(t, "duckduckgo", cfg.Providers.WebSearch.Provider)
	assert.Equal(t, 5, cfg.Providers.News.MaxItems)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Address)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown llm provider", "llm:\n  provider: mistral\n"},
		{"too many plan variants", "research:\n  plan_variants: 3\n"},
		{"negative budget", "research:\n  max_iterations: -1\n"},
		{"bad step timeout", "research:\n  step_timeout: soon\n"},
		{"unknown search provider", "providers:\n  web_search:\n    provider: bing\n"},
		{"unknown storage", "storage:\n  type: s3\n"},
		{"bad port", "api:\n  port: 70000\n"},
		{"bad log level", "observability:\n  logging:\n    level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("CRA_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("TAVILY_API_KEY", "tv-test")
	t.Setenv("ALPHA_VANTAGE_API_KEY", "av-test")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "tv-test", cfg.Providers.WebSearch.APIKey)
	assert.Equal(t, "av-test", cfg.Providers.Financial.APIKey)
	assert.Equal(t, "hunter2", cfg.Storage.Redis.Password)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
}

func TestSave_OmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Storage.Redis.Password = "hunter2"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.NotContains(t, string(data), "hunter2")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Research, loaded.Research)
}

func TestMustDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, MustDuration("90s"))
	assert.Zero(t, MustDuration("later"))
}
