// Package models defines the core data types shared across Optilist.
package models

import "time"

// WorkflowType identifies the kind of analysis a workflow performs.
type WorkflowType string

const (
	// WorkflowTypePricing analyzes competitive pricing for a listing.
	WorkflowTypePricing WorkflowType = "pricing"
	// WorkflowTypeListingOptimization improves listing title, description, and keywords.
	WorkflowTypeListingOptimization WorkflowType = "listing-optimization"
	// WorkflowTypeMarketResearch surveys category demand and competition.
	WorkflowTypeMarketResearch WorkflowType = "market-research"
)

// Valid returns true if the workflow type is a known value.
func (t WorkflowType) Valid() bool {
	switch t {
	case WorkflowTypePricing, WorkflowTypeListingOptimization, WorkflowTypeMarketResearch:
		return true
	default:
		return false
	}
}

// WorkflowStatus represents the current state of a workflow.
type WorkflowStatus string

const (
	// StatusPending indicates the workflow has been created but not dispatched.
	StatusPending WorkflowStatus = "pending"
	// StatusInProgress indicates agent tasks are running.
	StatusInProgress WorkflowStatus = "in_progress"
	// StatusCompleted indicates a consensus decision was produced.
	StatusCompleted WorkflowStatus = "completed"
	// StatusFailed indicates every agent failed or aggregation raised.
	StatusFailed WorkflowStatus = "failed"
	// StatusCancelled indicates the workflow was cancelled by the caller.
	StatusCancelled WorkflowStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition may leave this status.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Workflow is one end-to-end unit of orchestrated work spanning multiple agents.
type Workflow struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id"`
	// Type is the workflow type tag.
	Type WorkflowType `json:"type"`
	// Agents is the ordered set of participating agent identifiers.
	Agents []string `json:"agents"`
	// Status is the current state of the workflow.
	Status WorkflowStatus `json:"status"`
	// Context holds the immutable input parameters supplied at submission.
	Context map[string]any `json:"context,omitempty"`
	// Results maps agent id to that agent's result. Only agents listed in
	// Agents may appear here.
	Results map[string]AgentResult `json:"results,omitempty"`
	// Decision is the aggregated consensus decision, set when completed.
	Decision *ConsensusDecision `json:"decision,omitempty"`
	// StartedAt is when the workflow was created.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the workflow reached a terminal state, nil otherwise.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error contains the aggregated failure reason if the workflow failed.
	Error string `json:"error,omitempty"`
}

// Snapshot returns a deep copy safe to hand to callers while the workflow
// is still being mutated by its owning goroutine.
func (w *Workflow) Snapshot() Workflow {
	cp := *w

	cp.Agents = append([]string(nil), w.Agents...)

	if w.Context != nil {
		cp.Context = make(map[string]any, len(w.Context))
		for k, v := range w.Context {
			cp.Context[k] = v
		}
	}

	if w.Results != nil {
		cp.Results = make(map[string]AgentResult, len(w.Results))
		for k, v := range w.Results {
			cp.Results[k] = v
		}
	}

	if w.EndedAt != nil {
		t := *w.EndedAt
		cp.EndedAt = &t
	}

	if w.Decision != nil {
		d := *w.Decision
		d.Breakdown = append([]AgentContribution(nil), w.Decision.Breakdown...)
		d.RiskFactors = append([]string(nil), w.Decision.RiskFactors...)
		cp.Decision = &d
	}

	return cp
}
