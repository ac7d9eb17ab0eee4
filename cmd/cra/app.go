package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/conflicts"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/evidence"
	"github.com/ncolesummers/company-research-agent/pkg/llm"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/prompts"
	"github.com/ncolesummers/company-research-agent/pkg/state"
	"github.com/ncolesummers/company-research-agent/pkg/workflow"
	"github.com/spf13/cobra"
)

// app holds the wired components shared by every command
type app struct {
	config    *config.Config
	telemetry *observability.Telemetry
	graph     *workflow.ResearchGraph
	logger    *observability.StructuredLogger
	closers   []io.Closer
}

// loadConfig reads the config file named by --config and applies
// command line overrides
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.LoadOrDefault(path)
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Observability.Logging.Level = level
	}
	return cfg
}

// newApp wires configuration, telemetry, the language model, evidence
// providers and the report store into a research graph
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{config: cfg}
	defer func() {
		if err != nil {
			a.Close(ctx)
		}
	}()
	if err := a.initLogging(); err != nil {
		return nil, err
	}
	a.logger = observability.NewStructuredLogger("cra")

	telemetry, err := observability.NewTelemetry(&observability.TelemetryConfig{
		ServiceName:    "company-research-agent",
		ServiceVersion: Version,
		Environment:    getEnvironment(),
		OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
		Insecure:       cfg.Observability.Tracing.Insecure,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableTracing:  cfg.Observability.Tracing.Enabled,
		EnableMetrics:  cfg.Observability.Metrics.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.telemetry = telemetry

	client, err := llm.NewClient(ctx, cfg.LLM, telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	generator := llm.NewChatGenerator(client, llm.WithChatOptions(llmChatOptions(cfg.LLM)))

	budget, err := llm.NewTokenBudget(cfg.Research.MaxPromptTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create token budget: %w", err)
	}
	builder := prompts.NewBuilder(budget)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	providers, err := evidence.NewRegistryFromConfig(cfg.Providers, evidence.NewLLMTickerResolver(generator), httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to configure evidence providers: %w", err)
	}

	store, closer, err := state.NewReportStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}
	a.closers = append(a.closers, closer)

	graph, err := workflow.NewResearchGraph(
		workflow.ConfigFromSettings(cfg.Research, cfg.Providers.CircuitBreaker),
		workflow.Dependencies{
			Providers: providers,
			Detector:  conflicts.NewLLMDetector(generator, builder),
			Generator: generator,
			Prompts:   builder,
			Telemetry: telemetry,
		},
		store,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build research graph: %w", err)
	}
	a.graph = graph

	a.logger.Debug(ctx, "Application initialized", map[string]interface{}{
		"llm_provider": cfg.LLM.Provider,
		"llm_model":    cfg.LLM.Model,
		"web_search":   cfg.Providers.WebSearch.Provider,
		"storage":      cfg.Storage.Type,
	})
	return a, nil
}

func llmChatOptions(cfg config.LLMConfig) domain.ChatOptions {
	return domain.ChatOptions{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
	}
}

func (a *app) initLogging() error {
	logging := a.config.Observability.Logging
	observability.SetLogLevel(observability.ParseLogLevel(logging.Level))

	switch logging.Output {
	case "stdout":
		observability.SetLogOutput(os.Stdout)
	case "file":
		f, err := os.OpenFile(logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		observability.SetLogOutput(f)
		a.closers = append(a.closers, f)
	default:
		observability.SetLogOutput(os.Stderr)
	}
	return nil
}

// Close flushes telemetry and releases the store
func (a *app) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down telemetry: %v\n", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing resource: %v\n", err)
		}
	}
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
