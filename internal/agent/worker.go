// Package agent provides the worker contract and the concrete analysis
// agents dispatched by the orchestrator.
package agent

import (
	"context"
	"sort"

	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/pkg/models"
)

// Worker is one unit of domain logic producing a confidence-scored partial
// result. Implementations must observe ctx cancellation and return promptly,
// must call gov.Authorize before any metered completion call, and must settle
// every authorized hold with gov.Record even when the provider fails.
type Worker interface {
	// ID returns the stable agent identifier used in workflow registries.
	ID() string
	// Execute runs the agent against one task. It never panics its way out;
	// failures are captured in the returned result's Error field.
	Execute(ctx context.Context, task models.AgentTask, gov *budget.Governor) models.AgentResult
}

// Registry resolves agent identifiers to workers. It is built once at
// startup; dispatch stays open for new agent types without inheritance.
type Registry struct {
	workers map[string]Worker
}

// NewRegistry builds a registry from the given workers.
// Later duplicates of the same id replace earlier ones.
func NewRegistry(workers ...Worker) *Registry {
	m := make(map[string]Worker, len(workers))
	for _, w := range workers {
		m[w.ID()] = w
	}
	return &Registry{workers: m}
}

// Get returns the worker registered under id.
func (r *Registry) Get(id string) (Worker, bool) {
	w, ok := r.workers[id]
	return w, ok
}

// IDs returns the registered agent identifiers in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
