package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/completion"
)

// errBudgetRejected signals that no model tier fit the remaining budget.
// It is consumed internally by the worker's fallback path and never surfaced
// to the orchestrator as an agent failure.
var errBudgetRejected = errors.New("budget rejected all model tiers")

// meteredCaller runs the authorize -> call -> record flow shared by workers
// that use the completion service. It tries the primary model first and
// degrades to the cheaper fallback model when the primary estimate is
// rejected.
type meteredCaller struct {
	svc             completion.Service
	prices          *completion.PriceTable
	primaryModel    string
	fallbackModel   string
	maxOutputTokens int
}

// meteredOutcome is the settled result of one metered call attempt.
type meteredOutcome struct {
	// Text is the model output.
	Text string
	// Model is the model that was actually called.
	Model string
	// Cost is the actual cost committed to the ledger.
	Cost float64
}

// call performs at most one metered completion call. Every authorized hold
// is recorded, including on provider error or timeout, where the actual cost
// defaults to the estimate since no usage was reported.
//
// Returns errBudgetRejected when neither model tier was authorized; the
// caller then degrades to its rule-based path.
func (m *meteredCaller) call(ctx context.Context, gov *budget.Governor, agentID, system, prompt string) (*meteredOutcome, error) {
	inputTokens := completion.EstimateTokens(system + prompt)

	for _, model := range []string{m.primaryModel, m.fallbackModel} {
		if model == "" {
			continue
		}

		estimate := m.prices.Estimate(model, inputTokens, int64(m.maxOutputTokens))
		hold, ok := gov.Authorize(estimate, agentID)
		if !ok {
			log.Printf("[agent] %s: budget rejected %s (estimate $%.4f), trying cheaper tier", agentID, model, estimate)
			continue
		}

		resp, err := m.svc.Complete(ctx, completion.Request{
			Model:     model,
			System:    system,
			Prompt:    prompt,
			MaxTokens: m.maxOutputTokens,
		})
		if err != nil {
			// No usage reported; the ledger keeps the estimate.
			gov.Record(hold, estimate, model)
			return nil, fmt.Errorf("provider error on %s: %w", model, err)
		}

		actual := m.prices.Cost(model, resp.InputTokens, resp.OutputTokens)
		gov.Record(hold, actual, model)

		return &meteredOutcome{
			Text:  resp.Text,
			Model: model,
			Cost:  actual,
		}, nil
	}

	return nil, errBudgetRejected
}
