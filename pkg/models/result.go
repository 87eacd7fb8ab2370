package models

import "time"

// AgentTask is the unit of work dispatched to a single agent worker.
// It is created at dispatch and discarded once its result is merged or
// the workflow deadline abandons it.
type AgentTask struct {
	// WorkflowID is the id of the parent workflow.
	WorkflowID string `json:"workflow_id"`
	// WorkflowType is the type of the parent workflow.
	WorkflowType WorkflowType `json:"workflow_type"`
	// AgentID identifies the agent this task is addressed to.
	AgentID string `json:"agent_id"`
	// Payload is the workflow context narrowed to what the agent needs.
	Payload map[string]any `json:"payload,omitempty"`
	// Deadline is the shared wall-clock deadline for the whole fan-out.
	Deadline time.Time `json:"deadline"`
}

// AgentResult is the output of one agent worker. Ownership transfers to the
// workflow's results map as soon as the worker returns; workers must not
// retain or mutate a result after returning it.
type AgentResult struct {
	// AgentID identifies the agent that produced this result.
	AgentID string `json:"agent_id"`
	// Confidence is the agent's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning is a human-readable explanation of the result.
	Reasoning string `json:"reasoning,omitempty"`
	// RiskFactors lists risks the agent identified.
	RiskFactors []string `json:"risk_factors,omitempty"`
	// Payload is the agent's domain-specific structured output.
	Payload map[string]any `json:"payload,omitempty"`
	// Cost is the actual metered cost incurred, zero if no metered call was made.
	Cost float64 `json:"cost"`
	// TimedOut is true if the agent failed to return before the deadline.
	TimedOut bool `json:"timed_out,omitempty"`
	// Error holds the captured failure reason if the agent errored.
	Error string `json:"error,omitempty"`
}

// Usable returns true if the result carries a real analysis, i.e. the agent
// neither timed out nor errored. Unusable results still participate in
// aggregation with confidence 0.
func (r AgentResult) Usable() bool {
	return !r.TimedOut && r.Error == ""
}

// TimeoutResult builds the zero-confidence result recorded for an agent that
// did not return before the workflow deadline.
func TimeoutResult(agentID string) AgentResult {
	return AgentResult{
		AgentID:  agentID,
		Error:    "deadline exceeded",
		TimedOut: true,
	}
}

// ErrorResult builds the zero-confidence result recorded for an agent whose
// execution failed outright.
func ErrorResult(agentID string, err error) AgentResult {
	return AgentResult{
		AgentID: agentID,
		Error:   err.Error(),
	}
}
