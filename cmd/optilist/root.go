package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "optilist",
	Short: "Budget-governed listing optimization workflows",
	Long: `Optilist runs multi-agent analysis workflows over marketplace listings
under a hard daily spend ceiling.

Each workflow fans out to specialist agents (pricing, listing quality,
market research) running concurrently against a shared deadline. Their
confidence-scored results are combined into one consensus decision with
an approval classification. Every metered model call is authorized
against the budget before it is made; agents degrade to cheaper models
or rule-based analysis when the budget says no.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(versionCmd)
}
