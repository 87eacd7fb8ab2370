// Package consensus combines agents' partial results into a single scored
// decision.
package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/optilist/optilist/pkg/models"
)

// ErrNoResults is returned when aggregation is invoked with an empty result
// list. The orchestrator only aggregates workflows with at least one result,
// so hitting this is an internal invariant violation that fails the workflow.
var ErrNoResults = errors.New("aggregation invoked with no results")

// Aggregate combines per-agent results into one consensus decision.
//
// Overall confidence is the weighted mean of per-agent confidences with
// weights fixed per workflow type. Timed-out and errored agents contribute
// confidence 0 at full weight: an outage in a high-weight agent visibly
// depresses the consensus instead of silently vanishing from it. Risk
// factors are unioned and de-duplicated by exact string match, in first
// appearance order.
func Aggregate(workflowID string, results []models.AgentResult, weights map[string]float64) (models.ConsensusDecision, error) {
	if len(results) == 0 {
		return models.ConsensusDecision{}, ErrNoResults
	}

	var weightedSum, totalWeight float64
	breakdown := make([]models.AgentContribution, 0, len(results))
	var risks []string
	seen := make(map[string]bool)

	for _, r := range results {
		weight, ok := weights[r.AgentID]
		if !ok {
			weight = 1.0
		}

		confidence := r.Confidence
		if !r.Usable() {
			confidence = 0
		}

		weightedSum += confidence * weight
		totalWeight += weight

		breakdown = append(breakdown, models.AgentContribution{
			AgentID:    r.AgentID,
			Confidence: confidence,
			Weight:     weight,
			Reasoning:  r.Reasoning,
			Usable:     r.Usable(),
		})

		for _, risk := range r.RiskFactors {
			if !seen[risk] {
				seen[risk] = true
				risks = append(risks, risk)
			}
		}
	}

	if totalWeight <= 0 {
		return models.ConsensusDecision{}, fmt.Errorf("total agent weight is %v for workflow %s", totalWeight, workflowID)
	}

	overall := weightedSum / totalWeight
	approval := models.ClassifyConfidence(overall)

	return models.ConsensusDecision{
		WorkflowID:           workflowID,
		OverallConfidence:    overall,
		Approval:             approval,
		AutoApprovalEligible: approval == models.ApprovalAutoEligible,
		Breakdown:            breakdown,
		RiskFactors:          risks,
		CreatedAt:            time.Now(),
	}, nil
}
