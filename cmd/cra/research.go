package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/workflow"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var researchCmd = &cobra.Command{
	Use:   "research <company>",
	Short: "Research a company and write account plans",
	Long: `Gathers web search, financial, encyclopedia and news evidence about a
company, checks it for conflicts, synthesizes a summary and writes one or two
account plans tailored to the requester described in --context-file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().String("ticker", "", "Stock ticker of the company, resolved automatically when empty")
	researchCmd.Flags().String("context-file", "", "YAML or JSON file describing the requester")
	researchCmd.Flags().Int("plans", 0, "Number of account plans to write (1 or 2)")
	researchCmd.Flags().Bool("parallel", false, "Gather evidence from all sources concurrently")
	researchCmd.Flags().Bool("json", false, "Print the report as JSON")
}

func runResearch(cmd *cobra.Command, args []string) error {
	ticker, _ := cmd.Flags().GetString("ticker")
	contextFile, _ := cmd.Flags().GetString("context-file")
	plans, _ := cmd.Flags().GetInt("plans")
	parallel, _ := cmd.Flags().GetBool("parallel")
	jsonOut, _ := cmd.Flags().GetBool("json")

	if plans < 0 || plans > 2 {
		return fmt.Errorf("--plans must be 1 or 2, got %d", plans)
	}

	requester, err := loadRequester(contextFile)
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd)
	if parallel {
		cfg.Research.ParallelEvidence = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	request := &domain.ResearchRequest{
		Target: domain.Entity{
			Name:   strings.TrimSpace(strings.Join(args, " ")),
			Ticker: strings.ToUpper(strings.TrimSpace(ticker)),
		},
		Requester:    requester,
		PlanVariants: plans,
	}

	report, runErr := a.graph.Execute(ctx, request)
	if report != nil && (runErr == nil || errors.Is(runErr, workflow.ErrNotConverged)) {
		if err := printReport(cmd.OutOrStdout(), report, jsonOut); err != nil {
			return err
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return errors.New("research interrupted")
		}
		return runErr
	}
	return nil
}

// loadRequester reads the requester context from a YAML or JSON file.
// An empty path yields an empty context.
func loadRequester(path string) (domain.RequesterContext, error) {
	var requester domain.RequesterContext
	if path == "" {
		return requester, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return requester, fmt.Errorf("failed to read context file: %w", err)
	}
	// JSON is a subset of YAML
	if err := yaml.Unmarshal(data, &requester); err != nil {
		return requester, fmt.Errorf("failed to parse context file %s: %w", path, err)
	}
	return requester, nil
}

func printReport(w io.Writer, report *domain.ResearchReport, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := fmt.Fprintln(w, renderMarkdown(report.Markdown(), isTerminal(w)))
	return err
}
