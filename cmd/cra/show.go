package main

import (
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived research report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		a, err := newApp(ctx, loadConfig(cmd))
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		report, err := a.graph.Report(ctx, args[0])
		if err != nil {
			return err
		}
		return printReport(cmd.OutOrStdout(), report, jsonOut)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Bool("json", false, "Print the report as JSON")
}
