package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optilist/optilist/internal/config"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show today's spend against the daily ceiling",
	Long: `Display today's committed spend from the budget ledger.

Spend is summed from accepted ledger rows since midnight in the
configured budget timezone. Rejected authorizations are listed but do
not count against the ceiling.`,
	RunE: runBudget,
}

func runBudget(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := openHistoryDB()
	if err != nil {
		return err
	}
	if db == nil {
		fmt.Printf("No ledger yet. Daily ceiling: $%.2f\n", cfg.Budget.DailyCeiling)
		return nil
	}
	defer db.Close()

	loc, err := time.LoadLocation(cfg.Budget.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	spend, err := db.AcceptedSpendSince(midnight)
	if err != nil {
		return err
	}

	remaining := cfg.Budget.DailyCeiling - spend
	if remaining < 0 {
		remaining = 0
	}
	pct := spend / cfg.Budget.DailyCeiling * 100

	fmt.Printf("Daily ceiling:  $%.2f\n", cfg.Budget.DailyCeiling)
	fmt.Printf("Spend today:    $%.4f (%.0f%%)\n", spend, pct)
	fmt.Printf("Remaining:      $%.4f\n", remaining)

	entries, err := db.LedgerEntries(10)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	fmt.Println("\nRecent ledger entries:")
	for _, e := range entries {
		if e.Accepted {
			actual := e.EstimatedCost
			if e.ActualCost != nil {
				actual = *e.ActualCost
			}
			fmt.Printf("  %s %s %-18s %-28s $%.4f (est $%.4f)\n",
				color.GreenString("✓"), e.Timestamp.In(loc).Format("15:04:05"),
				e.AgentID, e.Model, actual, e.EstimatedCost)
		} else {
			fmt.Printf("  %s %s %-18s rejected, est $%.4f\n",
				color.RedString("✗"), e.Timestamp.In(loc).Format("15:04:05"),
				e.AgentID, e.EstimatedCost)
		}
	}
	return nil
}
