package config

import (
	"fmt"
	"os"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/optilist/optilist/pkg/models"
)

// AgentWeight pairs an agent identifier with its fixed aggregation weight
// for one workflow type.
type AgentWeight struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

// Registry maps workflow types to their fixed, ordered agent sets and
// aggregation weights. It is built once at startup and immutable afterwards;
// the orchestrator receives it by reference rather than reading ambient
// global state.
type Registry struct {
	types map[models.WorkflowType][]AgentWeight
}

// registryFile is the on-disk YAML structure for a workflow-type registry.
type registryFile struct {
	Workflows []struct {
		Type   string        `yaml:"type"`
		Agents []AgentWeight `yaml:"agents"`
	} `yaml:"workflows"`
}

// DefaultRegistry returns the built-in workflow-type registry. Agents
// central to a workflow type weigh more than peripheral ones.
func DefaultRegistry() *Registry {
	return &Registry{
		types: map[models.WorkflowType][]AgentWeight{
			models.WorkflowTypePricing: {
				{ID: "pricing-analyst", Weight: 0.6},
				{ID: "market-research", Weight: 0.3},
				{ID: "listing-optimizer", Weight: 0.1},
			},
			models.WorkflowTypeListingOptimization: {
				{ID: "listing-optimizer", Weight: 0.6},
				{ID: "pricing-analyst", Weight: 0.2},
				{ID: "market-research", Weight: 0.2},
			},
			models.WorkflowTypeMarketResearch: {
				{ID: "market-research", Weight: 0.7},
				{ID: "pricing-analyst", Weight: 0.3},
			},
		},
	}
}

// NewRegistry builds a registry from an explicit mapping (for tests).
func NewRegistry(types map[models.WorkflowType][]AgentWeight) *Registry {
	cp := make(map[models.WorkflowType][]AgentWeight, len(types))
	for t, agents := range types {
		cp[t] = append([]AgentWeight(nil), agents...)
	}
	return &Registry{types: cp}
}

// LoadRegistry reads a workflow-type registry from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}

	types := make(map[models.WorkflowType][]AgentWeight, len(file.Workflows))
	for _, wf := range file.Workflows {
		typ := models.WorkflowType(wf.Type)
		if !typ.Valid() {
			return nil, fmt.Errorf("registry %s: unknown workflow type %q", path, wf.Type)
		}
		if len(wf.Agents) == 0 {
			return nil, fmt.Errorf("registry %s: workflow type %q has no agents", path, wf.Type)
		}
		seen := make(map[string]bool, len(wf.Agents))
		for _, aw := range wf.Agents {
			if aw.ID == "" {
				return nil, fmt.Errorf("registry %s: workflow type %q has an agent with no id", path, wf.Type)
			}
			if aw.Weight < 0 {
				return nil, fmt.Errorf("registry %s: agent %q has negative weight %v", path, aw.ID, aw.Weight)
			}
			if seen[aw.ID] {
				return nil, fmt.Errorf("registry %s: workflow type %q lists agent %q twice", path, wf.Type, aw.ID)
			}
			seen[aw.ID] = true
		}
		types[typ] = wf.Agents
	}

	if len(types) == 0 {
		return nil, fmt.Errorf("registry %s: no workflow types defined", path)
	}

	return &Registry{types: types}, nil
}

// AgentsFor returns the ordered agent set for a workflow type.
// The second return value is false for unregistered types.
func (r *Registry) AgentsFor(t models.WorkflowType) ([]AgentWeight, bool) {
	agents, ok := r.types[t]
	if !ok {
		return nil, false
	}
	return append([]AgentWeight(nil), agents...), true
}

// WeightsFor returns the agent id to weight mapping for a workflow type.
func (r *Registry) WeightsFor(t models.WorkflowType) map[string]float64 {
	agents, ok := r.types[t]
	if !ok {
		return nil
	}
	weights := make(map[string]float64, len(agents))
	for _, aw := range agents {
		weights[aw.ID] = aw.Weight
	}
	return weights
}

// Types returns the registered workflow types in sorted order.
func (r *Registry) Types() []models.WorkflowType {
	out := make([]models.WorkflowType, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
