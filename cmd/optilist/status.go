package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/internal/state"
	"github.com/optilist/optilist/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show recent workflows from history",
	Long: `Display persisted workflow history.

With no arguments, lists the most recent workflows. With a workflow id,
prints that workflow's full results and decision.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatusCmd,
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	db, err := openHistoryDB()
	if err != nil {
		return err
	}
	if db == nil {
		fmt.Println("No workflow history yet. Run 'optilist submit <workflow-type>' to start.")
		return nil
	}
	defer db.Close()

	if len(args) == 1 {
		w, err := db.GetWorkflow(args[0])
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("workflow %q not found in history", args[0])
		}
		printWorkflow(*w, workflowElapsed(*w))
		return nil
	}

	workflows, err := db.RecentWorkflows(10)
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		fmt.Println("No workflow history yet. Run 'optilist submit <workflow-type>' to start.")
		return nil
	}

	fmt.Println("Recent workflows:")
	for _, w := range workflows {
		conf := "-"
		if w.Decision != nil {
			conf = fmt.Sprintf("%.2f", w.Decision.OverallConfidence)
		}
		fmt.Printf("  %s  %-22s %-10s confidence=%s (%s ago)\n",
			color.CyanString(w.ID), w.Type, statusLabel(w.Status), conf,
			formatDuration(time.Since(w.StartedAt)))
	}
	return nil
}

// openHistoryDB opens the configured history database, returning nil when no
// database file exists yet.
func openHistoryDB() (*state.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dbPath := cfg.State.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil
	}
	return state.Open(dbPath)
}

func workflowElapsed(w models.Workflow) time.Duration {
	if w.EndedAt == nil {
		return 0
	}
	return w.EndedAt.Sub(w.StartedAt)
}

func statusLabel(s models.WorkflowStatus) string {
	switch s {
	case models.StatusCompleted:
		return color.GreenString(string(s))
	case models.StatusFailed:
		return color.RedString(string(s))
	case models.StatusCancelled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
