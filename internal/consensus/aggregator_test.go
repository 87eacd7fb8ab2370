package consensus

import (
	"math"
	"testing"

	"github.com/optilist/optilist/pkg/models"
)

func TestAggregate_WeightedMean(t *testing.T) {
	results := []models.AgentResult{
		{AgentID: "pricing-analyst", Confidence: 0.9},
		{AgentID: "market-research", Confidence: 0.6},
	}
	weights := map[string]float64{
		"pricing-analyst": 0.6,
		"market-research": 0.4,
	}

	decision, err := Aggregate("wf-1", results, weights)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	want := (0.9*0.6 + 0.6*0.4) / 1.0
	if math.Abs(decision.OverallConfidence-want) > 1e-9 {
		t.Errorf("OverallConfidence = %v, want %v", decision.OverallConfidence, want)
	}
	if decision.Approval != models.ApprovalReviewRequired {
		t.Errorf("Approval = %q, want review_required", decision.Approval)
	}
	if decision.AutoApprovalEligible {
		t.Error("expected not auto-approval eligible")
	}
	if len(decision.Breakdown) != 2 {
		t.Errorf("expected 2 breakdown entries, got %d", len(decision.Breakdown))
	}
}

func TestAggregate_SingleAgentCarriesDecision(t *testing.T) {
	// One agent with confidence 0.9 and weight 1.0, all others weight 0:
	// the overall confidence is exactly 0.9.
	results := []models.AgentResult{
		{AgentID: "pricing-analyst", Confidence: 0.9},
		{AgentID: "listing-optimizer", Confidence: 0.3},
	}
	weights := map[string]float64{
		"pricing-analyst":   1.0,
		"listing-optimizer": 0.0,
	}

	decision, err := Aggregate("wf-1", results, weights)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if math.Abs(decision.OverallConfidence-0.9) > 1e-9 {
		t.Errorf("OverallConfidence = %v, want 0.9", decision.OverallConfidence)
	}
	if decision.Approval != models.ApprovalAutoEligible {
		t.Errorf("Approval = %q, want auto_approval_eligible", decision.Approval)
	}
}

func TestAggregate_UnusableResultsDilute(t *testing.T) {
	// A timed-out high-weight agent must depress the consensus, not vanish.
	results := []models.AgentResult{
		{AgentID: "pricing-analyst", Confidence: 1.0},
		models.TimeoutResult("market-research"),
	}
	weights := map[string]float64{
		"pricing-analyst": 0.5,
		"market-research": 0.5,
	}

	decision, err := Aggregate("wf-1", results, weights)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if math.Abs(decision.OverallConfidence-0.5) > 1e-9 {
		t.Errorf("OverallConfidence = %v, want 0.5", decision.OverallConfidence)
	}

	for _, c := range decision.Breakdown {
		if c.AgentID == "market-research" {
			if c.Usable {
				t.Error("timed-out contribution must be marked unusable")
			}
			if c.Confidence != 0 {
				t.Errorf("timed-out confidence = %v, want 0", c.Confidence)
			}
			if c.Weight != 0.5 {
				t.Errorf("timed-out weight = %v, want full 0.5", c.Weight)
			}
		}
	}
}

func TestAggregate_RiskFactorUnion(t *testing.T) {
	results := []models.AgentResult{
		{AgentID: "a", Confidence: 0.8, RiskFactors: []string{"high price variance among comparables", "few comparable listings"}},
		{AgentID: "b", Confidence: 0.8, RiskFactors: []string{"few comparable listings", "low demand category"}},
	}

	decision, err := Aggregate("wf-1", results, map[string]float64{"a": 1, "b": 1})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	want := []string{
		"high price variance among comparables",
		"few comparable listings",
		"low demand category",
	}
	if len(decision.RiskFactors) != len(want) {
		t.Fatalf("RiskFactors = %v, want %v", decision.RiskFactors, want)
	}
	for i := range want {
		if decision.RiskFactors[i] != want[i] {
			t.Errorf("RiskFactors[%d] = %q, want %q", i, decision.RiskFactors[i], want[i])
		}
	}
}

func TestAggregate_ClassificationBoundary(t *testing.T) {
	run := func(confidence float64) models.ApprovalLevel {
		t.Helper()
		decision, err := Aggregate("wf-1",
			[]models.AgentResult{{AgentID: "a", Confidence: confidence}},
			map[string]float64{"a": 1})
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		return decision.Approval
	}

	if got := run(0.85); got != models.ApprovalAutoEligible {
		t.Errorf("0.85 classified as %q, want auto_approval_eligible", got)
	}
	if got := run(0.84999); got != models.ApprovalReviewRequired {
		t.Errorf("0.84999 classified as %q, want review_required", got)
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	if _, err := Aggregate("wf-1", nil, nil); err != ErrNoResults {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}

func TestAggregate_MissingWeightDefaultsToOne(t *testing.T) {
	results := []models.AgentResult{{AgentID: "unlisted", Confidence: 0.7}}

	decision, err := Aggregate("wf-1", results, map[string]float64{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if math.Abs(decision.OverallConfidence-0.7) > 1e-9 {
		t.Errorf("OverallConfidence = %v, want 0.7", decision.OverallConfidence)
	}
}

func TestAggregate_ZeroTotalWeight(t *testing.T) {
	results := []models.AgentResult{{AgentID: "a", Confidence: 0.9}}
	if _, err := Aggregate("wf-1", results, map[string]float64{"a": 0}); err == nil {
		t.Error("expected error for zero total weight")
	}
}
