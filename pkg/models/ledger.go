package models

import "time"

// LedgerEntry records one metered-call cost decision. The ledger is
// append-only; entries are never updated after Record finalizes them.
type LedgerEntry struct {
	// Timestamp is when the authorization decision was made.
	Timestamp time.Time `json:"timestamp"`
	// AgentID identifies the agent that requested the call.
	AgentID string `json:"agent_id"`
	// Model is the model or resource class the call targeted.
	Model string `json:"model,omitempty"`
	// EstimatedCost is the pre-flight cost estimate.
	EstimatedCost float64 `json:"estimated_cost"`
	// ActualCost is the reported cost after completion. Nil if the call
	// was rejected pre-flight and never made.
	ActualCost *float64 `json:"actual_cost,omitempty"`
	// Accepted is true if the authorization was granted.
	Accepted bool `json:"accepted"`
}
