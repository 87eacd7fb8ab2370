package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/optilist/optilist/internal/agent"
	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/pkg/models"
)

// stubWorker returns a canned result after an optional delay, observing ctx.
type stubWorker struct {
	id     string
	delay  time.Duration
	result models.AgentResult
}

func (s *stubWorker) ID() string { return s.id }

func (s *stubWorker) Execute(ctx context.Context, task models.AgentTask, gov *budget.Governor) models.AgentResult {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return models.ErrorResult(s.id, ctx.Err())
		}
	}
	r := s.result
	r.AgentID = s.id
	return r
}

// capturePersister records terminal workflow records handed to it.
type capturePersister struct {
	mu   sync.Mutex
	seen []models.Workflow
}

func (p *capturePersister) EnqueueWorkflow(w models.Workflow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, w)
}

func (p *capturePersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func testGovernor() *budget.Governor {
	return budget.NewGovernor(config.BudgetConfig{
		DailyCeiling:   10.00,
		PerCallCeiling: 0.25,
		Timezone:       "UTC",
	})
}

func testRegistry(agents ...config.AgentWeight) *config.Registry {
	return config.NewRegistry(map[models.WorkflowType][]config.AgentWeight{
		models.WorkflowTypePricing: agents,
	})
}

func newTestOrchestrator(t *testing.T, deadline time.Duration, reg *config.Registry, workers ...agent.Worker) (*Orchestrator, *capturePersister) {
	t.Helper()
	p := &capturePersister{}
	o := New(Config{
		Registry:  reg,
		Agents:    agent.NewRegistry(workers...),
		Governor:  testGovernor(),
		Deadline:  deadline,
		Persister: p,
	})
	t.Cleanup(o.Shutdown)
	return o, p
}

// waitTerminal polls until the workflow reaches a terminal state.
func waitTerminal(t *testing.T, o *Orchestrator, id string, within time.Duration) models.Workflow {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		w, err := o.GetStatus(id)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if w.Status.Terminal() {
			return w
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("workflow %s did not reach a terminal state within %v", id, within)
	return models.Workflow{}
}

func TestSubmit_UnknownType(t *testing.T) {
	o, _ := newTestOrchestrator(t, time.Second, testRegistry(config.AgentWeight{ID: "a", Weight: 1}))

	_, err := o.Submit("garage-sale", nil)
	if !errors.Is(err, ErrUnknownWorkflowType) {
		t.Fatalf("err = %v, want ErrUnknownWorkflowType", err)
	}
}

func TestGetStatus_NotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, time.Second, testRegistry(config.AgentWeight{ID: "a", Weight: 1}))

	if _, err := o.GetStatus("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := o.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel err = %v, want ErrNotFound", err)
	}
}

func TestRun_DispatchesEveryRegisteredAgent(t *testing.T) {
	reg := testRegistry(
		config.AgentWeight{ID: "a", Weight: 0.5},
		config.AgentWeight{ID: "b", Weight: 0.3},
		config.AgentWeight{ID: "c", Weight: 0.2},
	)
	o, _ := newTestOrchestrator(t, time.Second, reg,
		&stubWorker{id: "a", result: models.AgentResult{Confidence: 0.9}},
		&stubWorker{id: "b", result: models.AgentResult{Confidence: 0.8}},
		&stubWorker{id: "c", result: models.AgentResult{Confidence: 0.7}},
	)

	id, err := o.Submit("pricing", map[string]any{"title": "vintage camera"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := waitTerminal(t, o, id, 2*time.Second)
	if w.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed (error: %s)", w.Status, w.Error)
	}
	if len(w.Results) != 3 {
		t.Fatalf("got %d results, want one per registered agent", len(w.Results))
	}
	for _, agentID := range []string{"a", "b", "c"} {
		if _, ok := w.Results[agentID]; !ok {
			t.Errorf("missing result for agent %q", agentID)
		}
	}
	if w.Decision == nil {
		t.Fatal("completed workflow must carry a decision")
	}
	want := 0.9*0.5 + 0.8*0.3 + 0.7*0.2
	if diff := w.Decision.OverallConfidence - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("overall = %v, want %v", w.Decision.OverallConfidence, want)
	}
	if w.EndedAt == nil {
		t.Error("terminal workflow must have EndedAt set")
	}
}

func TestRun_DeadlineMarksSlowAgentTimedOut(t *testing.T) {
	reg := testRegistry(
		config.AgentWeight{ID: "fast", Weight: 0.5},
		config.AgentWeight{ID: "slow", Weight: 0.5},
	)
	o, _ := newTestOrchestrator(t, 150*time.Millisecond, reg,
		&stubWorker{id: "fast", result: models.AgentResult{Confidence: 1.0}},
		&stubWorker{id: "slow", delay: 2 * time.Second, result: models.AgentResult{Confidence: 1.0}},
	)

	start := time.Now()
	id, err := o.Submit("pricing", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := waitTerminal(t, o, id, 2*time.Second)
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("terminal after %v, want roughly the 150ms deadline", elapsed)
	}
	if w.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed (error: %s)", w.Status, w.Error)
	}

	slow, ok := w.Results["slow"]
	if !ok || !slow.TimedOut {
		t.Fatalf("slow agent result = %+v, want timed out", slow)
	}
	if slow.Usable() {
		t.Error("timed-out result must not be usable")
	}

	// Timed-out agent contributes zero confidence at full weight.
	want := 1.0 * 0.5
	if diff := w.Decision.OverallConfidence - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("overall = %v, want %v", w.Decision.OverallConfidence, want)
	}
}

func TestRun_AllAgentsTimedOutFailsWorkflow(t *testing.T) {
	reg := testRegistry(
		config.AgentWeight{ID: "a", Weight: 0.5},
		config.AgentWeight{ID: "b", Weight: 0.5},
	)
	o, p := newTestOrchestrator(t, 50*time.Millisecond, reg,
		&stubWorker{id: "a", delay: 2 * time.Second},
		&stubWorker{id: "b", delay: 2 * time.Second},
	)

	id, err := o.Submit("pricing", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := waitTerminal(t, o, id, 2*time.Second)
	if w.Status != models.StatusFailed {
		t.Fatalf("status = %q, want failed", w.Status)
	}
	if w.Error == "" {
		t.Error("failed workflow must carry per-agent reasons")
	}
	if w.Decision != nil {
		t.Error("failed workflow must not carry a decision")
	}
	if p.count() != 1 {
		t.Errorf("persisted %d records, want 1", p.count())
	}
}

func TestRun_MissingWorkerBecomesErrorResult(t *testing.T) {
	reg := testRegistry(
		config.AgentWeight{ID: "real", Weight: 0.5},
		config.AgentWeight{ID: "ghost", Weight: 0.5},
	)
	o, _ := newTestOrchestrator(t, time.Second, reg,
		&stubWorker{id: "real", result: models.AgentResult{Confidence: 0.8}},
	)

	id, err := o.Submit("pricing", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := waitTerminal(t, o, id, 2*time.Second)
	if w.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed (error: %s)", w.Status, w.Error)
	}
	ghost := w.Results["ghost"]
	if ghost.Error == "" || ghost.Usable() {
		t.Fatalf("ghost result = %+v, want unusable error result", ghost)
	}
}

// mislabelingWorker stamps its result with a foreign agent id.
type mislabelingWorker struct {
	id      string
	reports string
}

func (w *mislabelingWorker) ID() string { return w.id }

func (w *mislabelingWorker) Execute(ctx context.Context, task models.AgentTask, gov *budget.Governor) models.AgentResult {
	return models.AgentResult{AgentID: w.reports, Confidence: 0.9}
}

func TestRun_ResultsKeyedByDispatchedID(t *testing.T) {
	reg := testRegistry(config.AgentWeight{ID: "a", Weight: 1})
	o, _ := newTestOrchestrator(t, time.Second, reg,
		&mislabelingWorker{id: "a", reports: "impostor"},
	)

	id, err := o.Submit("pricing", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := waitTerminal(t, o, id, 2*time.Second)
	if w.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed (error: %s)", w.Status, w.Error)
	}

	// Results may only contain entries for participating agents.
	if _, ok := w.Results["impostor"]; ok {
		t.Error("foreign agent id must not appear in the results map")
	}
	r, ok := w.Results["a"]
	if !ok {
		t.Fatal("dispatched agent missing from results")
	}
	if r.AgentID != "a" {
		t.Errorf("result AgentID = %q, want the dispatched id", r.AgentID)
	}
	if r.TimedOut || r.Confidence != 0.9 {
		t.Errorf("result = %+v, want the worker's successful result under the dispatched id", r)
	}
}

func TestCancel_IsIdempotent(t *testing.T) {
	reg := testRegistry(config.AgentWeight{ID: "slow", Weight: 1})
	o, p := newTestOrchestrator(t, 5*time.Second, reg,
		&stubWorker{id: "slow", delay: 10 * time.Second},
	)

	id, err := o.Submit("pricing", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	w := waitTerminal(t, o, id, 2*time.Second)
	if w.Status != models.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", w.Status)
	}

	// A second cancel of a terminal workflow is a no-op.
	if err := o.Cancel(id); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	again, _ := o.GetStatus(id)
	if again.Status != models.StatusCancelled {
		t.Errorf("status after double cancel = %q", again.Status)
	}
	if !again.EndedAt.Equal(*w.EndedAt) {
		t.Error("double cancel must not move EndedAt")
	}
	if p.count() != 1 {
		t.Errorf("persisted %d records, want exactly 1", p.count())
	}
}

func TestRun_PayloadNarrowedPerAgent(t *testing.T) {
	reg := testRegistry(config.AgentWeight{ID: "market-research", Weight: 1})

	var gotPayload map[string]any
	var mu sync.Mutex
	worker := &payloadCaptureWorker{id: "market-research", mu: &mu, payload: &gotPayload}
	o, _ := newTestOrchestrator(t, time.Second, reg, worker)

	id, err := o.Submit("pricing", map[string]any{
		"title":    "vintage camera",
		"category": "cameras",
		"secret":   "should not propagate",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, o, id, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if _, ok := gotPayload["category"]; !ok {
		t.Error("market-research payload must include category")
	}
	if _, ok := gotPayload["title"]; ok {
		t.Error("market-research payload must not include title")
	}
	if _, ok := gotPayload["secret"]; ok {
		t.Error("unknown context keys must not reach the agent")
	}
}

type payloadCaptureWorker struct {
	id      string
	mu      *sync.Mutex
	payload *map[string]any
}

func (w *payloadCaptureWorker) ID() string { return w.id }

func (w *payloadCaptureWorker) Execute(ctx context.Context, task models.AgentTask, gov *budget.Governor) models.AgentResult {
	w.mu.Lock()
	*w.payload = task.Payload
	w.mu.Unlock()
	return models.AgentResult{AgentID: w.id, Confidence: 0.9}
}

func TestEvents_TerminalEventEmitted(t *testing.T) {
	reg := testRegistry(config.AgentWeight{ID: "a", Weight: 1})
	o, _ := newTestOrchestrator(t, time.Second, reg,
		&stubWorker{id: "a", result: models.AgentResult{Confidence: 0.9}},
	)

	id, err := o.Submit("pricing", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, o, id, 2*time.Second)

	var types []EventType
	timeout := time.After(time.Second)
	for len(types) < 4 {
		select {
		case ev := <-o.Events():
			types = append(types, ev.Type)
		case <-timeout:
			t.Fatalf("got events %v before timing out", types)
		}
	}

	want := []EventType{EventWorkflowSubmitted, EventWorkflowStarted, EventAgentResult, EventWorkflowCompleted}
	for i, typ := range want {
		if types[i] != typ {
			t.Fatalf("event[%d] = %s, want %s (all: %v)", i, types[i], typ, types)
		}
	}
}
