package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cra",
	Short: "Company research agent",
	Long: `cra researches a company from web search, financial data, encyclopedia
and news sources, reconciles what it finds and writes account plans.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs/default.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
