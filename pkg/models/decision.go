package models

import "time"

// ApprovalLevel classifies a consensus decision by overall confidence.
type ApprovalLevel string

const (
	// ApprovalAutoEligible means confidence >= 0.85.
	ApprovalAutoEligible ApprovalLevel = "auto_approval_eligible"
	// ApprovalReviewRequired means confidence in [0.65, 0.85).
	ApprovalReviewRequired ApprovalLevel = "review_required"
	// ApprovalCautionAdvised means confidence in [0.40, 0.65).
	ApprovalCautionAdvised ApprovalLevel = "caution_advised"
	// ApprovalRejectionRecommended means confidence < 0.40.
	ApprovalRejectionRecommended ApprovalLevel = "rejection_recommended"
)

// Classification thresholds. These are fixed design constants, not
// per-workflow configuration, so behavior is predictable across types.
const (
	AutoApprovalThreshold = 0.85
	ReviewThreshold       = 0.65
	CautionThreshold      = 0.40
)

// ClassifyConfidence maps an overall confidence score to its approval level.
// Boundaries are half-open: exactly 0.85 is auto-approval eligible.
func ClassifyConfidence(confidence float64) ApprovalLevel {
	switch {
	case confidence >= AutoApprovalThreshold:
		return ApprovalAutoEligible
	case confidence >= ReviewThreshold:
		return ApprovalReviewRequired
	case confidence >= CautionThreshold:
		return ApprovalCautionAdvised
	default:
		return ApprovalRejectionRecommended
	}
}

// AgentContribution summarizes one agent's input to a consensus decision.
type AgentContribution struct {
	// AgentID identifies the contributing agent.
	AgentID string `json:"agent_id"`
	// Confidence is the confidence that entered the weighted mean
	// (0 for timeouts and errors).
	Confidence float64 `json:"confidence"`
	// Weight is the agent's fixed weight for the workflow type.
	Weight float64 `json:"weight"`
	// Reasoning is the agent's explanation, empty for unusable results.
	Reasoning string `json:"reasoning,omitempty"`
	// Usable is false if the agent timed out or errored.
	Usable bool `json:"usable"`
}

// ConsensusDecision is the aggregated output of a workflow. It is owned by
// the workflow once computed and immutable after creation.
type ConsensusDecision struct {
	// WorkflowID is the id of the workflow this decision belongs to.
	WorkflowID string `json:"workflow_id"`
	// OverallConfidence is the weighted mean of per-agent confidences.
	OverallConfidence float64 `json:"overall_confidence"`
	// Approval is the stepped classification of OverallConfidence.
	Approval ApprovalLevel `json:"approval"`
	// AutoApprovalEligible is true when Approval is ApprovalAutoEligible.
	AutoApprovalEligible bool `json:"auto_approval_eligible"`
	// Breakdown lists each contributing agent in dispatch order.
	Breakdown []AgentContribution `json:"breakdown"`
	// RiskFactors is the de-duplicated union of all agents' risk factors.
	RiskFactors []string `json:"risk_factors,omitempty"`
	// CreatedAt is when the decision was computed.
	CreatedAt time.Time `json:"created_at"`
}
