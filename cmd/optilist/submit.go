package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/pkg/models"
)

var (
	submitTitle       string
	submitDescription string
	submitCategory    string
	submitCondition   string
)

var submitCmd = &cobra.Command{
	Use:   "submit <workflow-type>",
	Short: "Run one workflow and print its consensus decision",
	Long: `Run a single workflow to completion and print the consensus decision.

Workflow types:
  pricing                competitive price recommendation
  listing-optimization   title/description quality analysis
  market-research        category demand survey

Listing details are passed with flags and narrowed per agent.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "Listing title")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "Listing description")
	submitCmd.Flags().StringVar(&submitCategory, "category", "", "Marketplace category")
	submitCmd.Flags().StringVar(&submitCondition, "condition", "", "Item condition")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// Drain history writes in the background for the life of the command.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		st.writer.Run(writerCtx)
		close(writerDone)
	}()
	defer func() {
		stopWriter()
		<-writerDone
	}()

	listing := map[string]any{}
	if submitTitle != "" {
		listing["title"] = submitTitle
	}
	if submitDescription != "" {
		listing["description"] = submitDescription
	}
	if submitCategory != "" {
		listing["category"] = submitCategory
	}
	if submitCondition != "" {
		listing["condition"] = submitCondition
	}

	start := time.Now()
	id, err := st.orch.Submit(args[0], listing)
	if err != nil {
		return err
	}

	fmt.Printf("Workflow %s (%s) submitted\n", color.CyanString(id), args[0])

	w, err := waitForWorkflow(st, id, cfg.Orchestrator.Deadline+5*time.Second)
	if err != nil {
		return err
	}

	printWorkflow(w, time.Since(start))

	if w.Status == models.StatusFailed {
		return fmt.Errorf("workflow failed: %s", w.Error)
	}
	return nil
}

// waitForWorkflow polls until the workflow reaches a terminal state.
func waitForWorkflow(st *stack, id string, within time.Duration) (models.Workflow, error) {
	deadline := time.Now().Add(within)
	for {
		w, err := st.orch.GetStatus(id)
		if err != nil {
			return models.Workflow{}, err
		}
		if w.Status.Terminal() {
			return w, nil
		}
		if time.Now().After(deadline) {
			return models.Workflow{}, fmt.Errorf("workflow %s still %s after %s", id, w.Status, within)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// printWorkflow renders one terminal workflow for the terminal.
func printWorkflow(w models.Workflow, elapsed time.Duration) {
	fmt.Println()
	switch w.Status {
	case models.StatusCompleted:
		fmt.Printf("%s in %s\n", color.GreenString("Completed"), formatDuration(elapsed))
	case models.StatusCancelled:
		fmt.Printf("%s after %s\n", color.YellowString("Cancelled"), formatDuration(elapsed))
	default:
		fmt.Printf("%s after %s: %s\n", color.RedString("Failed"), formatDuration(elapsed), w.Error)
	}

	ids := make([]string, 0, len(w.Results))
	for id := range w.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var totalCost float64
	fmt.Println("\nAgents:")
	for _, id := range ids {
		r := w.Results[id]
		totalCost += r.Cost
		switch {
		case r.TimedOut:
			fmt.Printf("  %s %s: timed out\n", color.RedString("✗"), id)
		case r.Error != "":
			fmt.Printf("  %s %s: %s\n", color.RedString("✗"), id, r.Error)
		default:
			fmt.Printf("  %s %s: confidence %.2f cost $%.4f\n", color.GreenString("✓"), id, r.Confidence, r.Cost)
		}
	}
	fmt.Printf("Total metered cost: $%.4f\n", totalCost)

	if w.Decision == nil {
		return
	}
	d := w.Decision

	fmt.Printf("\nConsensus: %.2f → %s\n", d.OverallConfidence, approvalLabel(d.Approval))
	if len(d.RiskFactors) > 0 {
		fmt.Println("Risk factors:")
		for _, rf := range d.RiskFactors {
			fmt.Printf("  %s %s\n", color.YellowString("⚠"), rf)
		}
	}
}

func approvalLabel(a models.ApprovalLevel) string {
	switch a {
	case models.ApprovalAutoEligible:
		return color.GreenString(string(a))
	case models.ApprovalReviewRequired:
		return color.YellowString(string(a))
	case models.ApprovalCautionAdvised:
		return color.YellowString(string(a))
	default:
		return color.RedString(string(a))
	}
}
