package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/completion"
	"github.com/optilist/optilist/pkg/models"
)

// ListingOptimizer assesses listing title, description, and keyword quality.
// With budget it asks the completion service for concrete rewrites; without
// it falls back to a rule-based checklist.
type ListingOptimizer struct {
	caller *meteredCaller
}

// NewListingOptimizer creates the listing optimization worker.
func NewListingOptimizer(svc completion.Service, prices *completion.PriceTable, settings CompletionSettings) *ListingOptimizer {
	return &ListingOptimizer{
		caller: &meteredCaller{
			svc:             svc,
			prices:          prices,
			primaryModel:    settings.PrimaryModel,
			fallbackModel:   settings.FallbackModel,
			maxOutputTokens: settings.MaxOutputTokens,
		},
	}
}

// ID returns the agent identifier.
func (a *ListingOptimizer) ID() string { return "listing-optimizer" }

// Execute scores the listing copy and suggests improvements.
func (a *ListingOptimizer) Execute(ctx context.Context, task models.AgentTask, gov *budget.Governor) models.AgentResult {
	if err := ctx.Err(); err != nil {
		return models.ErrorResult(a.ID(), err)
	}

	title := payloadString(task.Payload, "title")
	if title == "" {
		return models.ErrorResult(a.ID(), fmt.Errorf("task payload has no title"))
	}
	description := payloadString(task.Payload, "description")

	score, issues := checklistScore(title, description)

	result := models.AgentResult{
		AgentID:     a.ID(),
		RiskFactors: issues,
		Payload: map[string]any{
			"checklist_score": score,
			"title_length":    len(title),
		},
	}

	prompt := fmt.Sprintf("Title: %s\nDescription: %s\nChecklist issues: %s",
		title, description, strings.Join(issues, "; "))
	outcome, callErr := a.caller.call(ctx, gov, a.ID(), listingSystemPrompt, prompt)
	if callErr != nil {
		if callErr != errBudgetRejected {
			log.Printf("[agent] %s: metered analysis failed, using checklist fallback: %v", a.ID(), callErr)
		}
		result.Confidence = 0.45 + 0.20*score
		result.Reasoning = fmt.Sprintf("Rule-based checklist score %.2f with %d issues.", score, len(issues))
		return result
	}

	result.Confidence = 0.80
	result.Reasoning = strings.TrimSpace(outcome.Text)
	result.Cost = outcome.Cost
	result.Payload["model"] = outcome.Model
	return result
}

const listingSystemPrompt = "You are a marketplace listing copy editor. " +
	"Suggest a stronger title and the three highest-impact description improvements, in under 150 words."

// checklistScore evaluates listing copy against fixed heuristics, returning
// a score in [0,1] and the list of issues found.
func checklistScore(title, description string) (float64, []string) {
	var issues []string
	score := 1.0

	switch {
	case len(title) < 20:
		issues = append(issues, "title shorter than 20 characters")
		score -= 0.3
	case len(title) > 80:
		issues = append(issues, "title longer than 80 characters")
		score -= 0.2
	}

	if strings.ToUpper(title) == title && len(title) > 5 {
		issues = append(issues, "title is all caps")
		score -= 0.2
	}

	switch {
	case description == "":
		issues = append(issues, "description missing")
		score -= 0.4
	case len(description) < 80:
		issues = append(issues, "description shorter than 80 characters")
		score -= 0.2
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}
