package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optilist/optilist/internal/agent"
	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/pkg/models"
)

// ErrUnknownWorkflowType is returned by Submit for unregistered types.
// It is a caller error, surfaced immediately and never retried.
var ErrUnknownWorkflowType = errors.New("unknown workflow type")

// ErrNotFound is returned when a workflow id does not exist.
var ErrNotFound = errors.New("workflow not found")

// DefaultDeadline is the shared wall-clock deadline for a workflow's fan-out
// when none is configured.
const DefaultDeadline = 10 * time.Second

// Persister receives terminal workflow records for asynchronous history
// writes. The orchestrator never blocks on it.
type Persister interface {
	EnqueueWorkflow(w models.Workflow)
}

// Config contains the collaborators and settings for an Orchestrator.
type Config struct {
	// Registry maps workflow types to agent sets and weights. Required.
	Registry *config.Registry
	// Agents resolves agent ids to workers. Required.
	Agents *agent.Registry
	// Governor is the shared cost governor handed to workers. Required.
	Governor *budget.Governor
	// Deadline is the per-workflow fan-out deadline. Zero uses DefaultDeadline.
	Deadline time.Duration
	// EventBuffer is the event channel capacity. Zero uses the default.
	EventBuffer int
	// Persister receives terminal workflow records. Optional.
	Persister Persister
}

// workflowState pairs a workflow record with its cancellation handle.
// The record is mutated only by the workflow's own run goroutine; the mutex
// makes snapshots and terminal transitions safe against readers.
type workflowState struct {
	mu     sync.Mutex
	w      *models.Workflow
	cancel context.CancelFunc
}

// Orchestrator owns workflow lifecycles: it validates submissions, fans
// tasks out to agent workers, enforces the shared deadline, aggregates
// results, and hands terminal records to the persister.
type Orchestrator struct {
	cfg     Config
	emitter *EventEmitter

	// ctx is the root context all workflows descend from.
	ctx      context.Context
	cancelFn context.CancelFunc

	mu        sync.RWMutex
	workflows map[string]*workflowState

	// wg tracks running workflow goroutines.
	wg sync.WaitGroup
}

// New creates an Orchestrator. The registry, agent registry, and governor
// must be non-nil.
func New(cfg Config) *Orchestrator {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		cfg:       cfg,
		emitter:   NewEventEmitter(cfg.EventBuffer),
		ctx:       ctx,
		cancelFn:  cancel,
		workflows: make(map[string]*workflowState),
	}
}

// Events returns the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Submit validates the workflow type, creates the workflow record, and
// starts the concurrent fan-out. It returns the new workflow id.
func (o *Orchestrator) Submit(workflowType string, ctxMap map[string]any) (string, error) {
	typ := models.WorkflowType(workflowType)

	agents, ok := o.cfg.Registry.AgentsFor(typ)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownWorkflowType, workflowType)
	}

	id := uuid.New().String()[:8]

	agentIDs := make([]string, len(agents))
	for i, aw := range agents {
		agentIDs[i] = aw.ID
	}

	context_ := make(map[string]any, len(ctxMap))
	for k, v := range ctxMap {
		context_[k] = v
	}

	wfCtx, cancel := context.WithCancel(o.ctx)
	ws := &workflowState{
		w: &models.Workflow{
			ID:        id,
			Type:      typ,
			Agents:    agentIDs,
			Status:    models.StatusPending,
			Context:   context_,
			Results:   make(map[string]models.AgentResult, len(agentIDs)),
			StartedAt: time.Now(),
		},
		cancel: cancel,
	}

	o.mu.Lock()
	o.workflows[id] = ws
	o.mu.Unlock()

	o.emitter.Emit(Event{
		Type:       EventWorkflowSubmitted,
		WorkflowID: id,
		Message:    string(typ),
		Timestamp:  time.Now(),
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(wfCtx, ws)
	}()

	return id, nil
}

// GetStatus returns a snapshot of the workflow, including results so far and
// the final decision when terminal.
func (o *Orchestrator) GetStatus(id string) (models.Workflow, error) {
	o.mu.RLock()
	ws, ok := o.workflows[id]
	o.mu.RUnlock()

	if !ok {
		return models.Workflow{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.w.Snapshot(), nil
}

// Cancel requests cooperative cancellation of a workflow. It is idempotent
// and a no-op on workflows that already reached a terminal state.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.RLock()
	ws, ok := o.workflows[id]
	o.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	ws.mu.Lock()
	terminal := ws.w.Status.Terminal()
	ws.mu.Unlock()

	if terminal {
		return nil
	}

	// Propagates to every in-flight agent task via the shared context.
	ws.cancel()
	return nil
}

// Shutdown cancels all running workflows and waits for their goroutines to
// finish transitioning them to a terminal state.
func (o *Orchestrator) Shutdown() {
	o.cancelFn()
	o.wg.Wait()
}
