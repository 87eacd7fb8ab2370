package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/optilist/optilist/internal/consensus"
	"github.com/optilist/optilist/pkg/models"
)

// payloadKeys narrows the workflow context to what each agent consumes, so
// a worker never depends on context keys it was not designed for.
var payloadKeys = map[string][]string{
	"pricing-analyst":   {"title", "category", "condition"},
	"listing-optimizer": {"title", "description"},
	"market-research":   {"category"},
}

// run drives one workflow from dispatch to its terminal state. It is the
// only goroutine that mutates the workflow record.
func (o *Orchestrator) run(wfCtx context.Context, ws *workflowState) {
	ws.mu.Lock()
	ws.w.Status = models.StatusInProgress
	id := ws.w.ID
	typ := ws.w.Type
	agents := append([]string(nil), ws.w.Agents...)
	ws.mu.Unlock()

	o.emitter.Emit(Event{
		Type:       EventWorkflowStarted,
		WorkflowID: id,
		Message:    fmt.Sprintf("dispatching %d agents", len(agents)),
		Timestamp:  time.Now(),
	})

	// All agents share one wall-clock deadline derived from dispatch time.
	dctx, cancel := context.WithTimeout(wfCtx, o.cfg.Deadline)
	defer cancel()
	deadline, _ := dctx.Deadline()

	resultsCh := make(chan models.AgentResult, len(agents))
	for _, agentID := range agents {
		task := models.AgentTask{
			WorkflowID:   id,
			WorkflowType: typ,
			AgentID:      agentID,
			Payload:      o.buildPayload(agentID, ws),
			Deadline:     deadline,
		}
		go o.runAgent(dctx, task, resultsCh)
	}

	// Merge results as they arrive. When the deadline or a cancellation
	// fires, stop waiting; stragglers are abandoned and recorded as
	// timeouts. The channel is buffered to the agent count so abandoned
	// goroutines can still send and exit.
	received := make(map[string]bool, len(agents))
	for len(received) < len(agents) {
		select {
		case r := <-resultsCh:
			received[r.AgentID] = true
			ws.mu.Lock()
			ws.w.Results[r.AgentID] = r
			ws.mu.Unlock()
			o.emitter.Emit(Event{
				Type:       EventAgentResult,
				WorkflowID: id,
				AgentID:    r.AgentID,
				Message:    r.Error,
				Confidence: r.Confidence,
				Cost:       r.Cost,
				Timestamp:  time.Now(),
			})
		case <-dctx.Done():
			ws.mu.Lock()
			for _, agentID := range agents {
				if !received[agentID] {
					ws.w.Results[agentID] = models.TimeoutResult(agentID)
				}
			}
			ws.mu.Unlock()
			o.finalize(wfCtx, ws, agents)
			return
		}
	}

	o.finalize(wfCtx, ws, agents)
}

// runAgent executes one agent task, converting panics and missing workers
// into error results so a single bad agent never takes down the workflow.
func (o *Orchestrator) runAgent(ctx context.Context, task models.AgentTask, out chan<- models.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[orchestrator] agent %s panicked in workflow %s: %v", task.AgentID, task.WorkflowID, r)
			out <- models.ErrorResult(task.AgentID, fmt.Errorf("agent panicked: %v", r))
		}
	}()

	worker, ok := o.cfg.Agents.Get(task.AgentID)
	if !ok {
		out <- models.ErrorResult(task.AgentID, fmt.Errorf("agent %q not registered", task.AgentID))
		return
	}

	result := worker.Execute(ctx, task, o.cfg.Governor)
	// The merge is keyed by the dispatched id. A worker cannot relabel its
	// result and leak an out-of-set key into the workflow's results map.
	result.AgentID = task.AgentID
	out <- result
}

// buildPayload narrows the workflow context for one agent. Unknown agents
// receive the full context.
func (o *Orchestrator) buildPayload(agentID string, ws *workflowState) map[string]any {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	keys, ok := payloadKeys[agentID]
	if !ok {
		payload := make(map[string]any, len(ws.w.Context))
		for k, v := range ws.w.Context {
			payload[k] = v
		}
		return payload
	}

	payload := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := ws.w.Context[k]; ok {
			payload[k] = v
		}
	}
	return payload
}

// finalize aggregates whatever results exist and moves the workflow to its
// terminal state exactly once.
func (o *Orchestrator) finalize(wfCtx context.Context, ws *workflowState, agents []string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.w.Status.Terminal() {
		return
	}

	id := ws.w.ID

	// Explicit cancellation beats the deadline: a cancelled workflow stays
	// cancelled even when its deadline expired during teardown.
	if wfCtx.Err() == context.Canceled {
		o.endLocked(ws, models.StatusCancelled, "cancelled by caller")
		o.emitter.Emit(Event{
			Type:       EventWorkflowCancelled,
			WorkflowID: id,
			Message:    "cancelled by caller",
			Timestamp:  time.Now(),
		})
		return
	}

	// Aggregation input in dispatch order, for a deterministic breakdown.
	results := make([]models.AgentResult, 0, len(agents))
	usable := 0
	for _, agentID := range agents {
		r, ok := ws.w.Results[agentID]
		if !ok {
			r = models.TimeoutResult(agentID)
			ws.w.Results[agentID] = r
		}
		if r.Usable() {
			usable++
		}
		results = append(results, r)
	}

	if usable == 0 {
		reason := failureSummary(results)
		o.endLocked(ws, models.StatusFailed, reason)
		o.emitter.Emit(Event{
			Type:       EventWorkflowFailed,
			WorkflowID: id,
			Message:    reason,
			Timestamp:  time.Now(),
		})
		return
	}

	decision, err := consensus.Aggregate(id, results, o.cfg.Registry.WeightsFor(ws.w.Type))
	if err != nil {
		reason := fmt.Sprintf("aggregation failed: %v", err)
		o.endLocked(ws, models.StatusFailed, reason)
		o.emitter.Emit(Event{
			Type:       EventWorkflowFailed,
			WorkflowID: id,
			Message:    reason,
			Timestamp:  time.Now(),
		})
		return
	}

	ws.w.Decision = &decision
	o.endLocked(ws, models.StatusCompleted, "")
	o.emitter.Emit(Event{
		Type:       EventWorkflowCompleted,
		WorkflowID: id,
		Message:    string(decision.Approval),
		Confidence: decision.OverallConfidence,
		Timestamp:  time.Now(),
	})
}

// endLocked records the terminal transition and hands the final record to
// the persister. Caller holds ws.mu.
func (o *Orchestrator) endLocked(ws *workflowState, status models.WorkflowStatus, reason string) {
	now := time.Now()
	ws.w.Status = status
	ws.w.EndedAt = &now
	ws.w.Error = reason

	log.Printf("[orchestrator] workflow %s %s (%s)", ws.w.ID, status, ws.w.Type)

	if o.cfg.Persister != nil {
		o.cfg.Persister.EnqueueWorkflow(ws.w.Snapshot())
	}
}

// failureSummary builds the per-agent reason list recorded when no agent
// produced a usable result.
func failureSummary(results []models.AgentResult) string {
	reasons := make([]string, 0, len(results))
	for _, r := range results {
		reasons = append(reasons, fmt.Sprintf("%s: %s", r.AgentID, r.Error))
	}
	sort.Strings(reasons)
	return "no usable agent results: " + strings.Join(reasons, "; ")
}
