package agent

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/completion"
	"github.com/optilist/optilist/internal/market"
	"github.com/optilist/optilist/pkg/models"
)

// CompletionSettings carries the model tiering shared by metered workers.
type CompletionSettings struct {
	// PrimaryModel is tried first for metered calls.
	PrimaryModel string
	// FallbackModel is the cheaper tier tried when the primary estimate is
	// rejected by the budget.
	FallbackModel string
	// MaxOutputTokens caps completion output length.
	MaxOutputTokens int
}

// PricingAnalyst recommends a listing price from marketplace comparables,
// with a metered narrative analysis when budget allows and a rule-based
// quartile heuristic otherwise.
type PricingAnalyst struct {
	source market.DataSource
	caller *meteredCaller
}

// NewPricingAnalyst creates the pricing analysis worker.
func NewPricingAnalyst(svc completion.Service, prices *completion.PriceTable, settings CompletionSettings, source market.DataSource) *PricingAnalyst {
	return &PricingAnalyst{
		source: source,
		caller: &meteredCaller{
			svc:             svc,
			prices:          prices,
			primaryModel:    settings.PrimaryModel,
			fallbackModel:   settings.FallbackModel,
			maxOutputTokens: settings.MaxOutputTokens,
		},
	}
}

// ID returns the agent identifier.
func (a *PricingAnalyst) ID() string { return "pricing-analyst" }

// Execute analyzes comparable listings and recommends a price.
func (a *PricingAnalyst) Execute(ctx context.Context, task models.AgentTask, gov *budget.Governor) models.AgentResult {
	if err := ctx.Err(); err != nil {
		return models.ErrorResult(a.ID(), err)
	}

	query := payloadString(task.Payload, "title")
	if query == "" {
		return models.ErrorResult(a.ID(), fmt.Errorf("task payload has no title"))
	}

	comps, err := a.source.Comparables(ctx, query)
	if err != nil {
		return models.ErrorResult(a.ID(), err)
	}

	prices := soldPrices(comps)
	if len(prices) == 0 {
		prices = allPrices(comps)
	}
	if len(prices) == 0 {
		return models.ErrorResult(a.ID(), fmt.Errorf("no comparable listings for %q", query))
	}

	suggested := median(prices)
	low, high := quartiles(prices)

	var risks []string
	if len(comps) < 3 {
		risks = append(risks, "few comparable listings")
	}
	if low > 0 && high/low > 3 {
		risks = append(risks, "high price variance among comparables")
	}

	result := models.AgentResult{
		AgentID:     a.ID(),
		RiskFactors: risks,
		Payload: map[string]any{
			"suggested_price":  suggested,
			"price_low":        low,
			"price_high":       high,
			"comparable_count": len(comps),
		},
	}

	prompt := pricingPrompt(query, suggested, low, high, comps)
	outcome, callErr := a.caller.call(ctx, gov, a.ID(), pricingSystemPrompt, prompt)
	if callErr != nil {
		if callErr != errBudgetRejected {
			log.Printf("[agent] %s: metered analysis failed, using rule-based fallback: %v", a.ID(), callErr)
		}
		// Degraded path: the quartile heuristic alone, lower confidence.
		result.Confidence = 0.55
		result.Reasoning = fmt.Sprintf(
			"Rule-based quartile pricing from %d comparables: suggested $%.2f (range $%.2f-$%.2f).",
			len(comps), suggested, low, high)
		return result
	}

	result.Confidence = 0.85
	result.Reasoning = strings.TrimSpace(outcome.Text)
	result.Cost = outcome.Cost
	result.Payload["model"] = outcome.Model
	return result
}

const pricingSystemPrompt = "You are a marketplace pricing analyst. " +
	"Given comparable listings, justify a recommended price in under 120 words."

// pricingPrompt renders the comparables summary sent to the model.
func pricingPrompt(query string, suggested, low, high float64, comps []market.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item: %s\nHeuristic suggestion: $%.2f (quartile range $%.2f-$%.2f)\nComparables:\n",
		query, suggested, low, high)
	for i, c := range comps {
		if i >= 10 {
			break
		}
		status := "active"
		if c.Sold {
			status = "sold"
		}
		fmt.Fprintf(&b, "- %s: $%.2f (%s)\n", c.Title, c.Price, status)
	}
	return b.String()
}

// soldPrices extracts prices of sold comparables.
func soldPrices(comps []market.Listing) []float64 {
	var out []float64
	for _, c := range comps {
		if c.Sold {
			out = append(out, c.Price)
		}
	}
	return out
}

// allPrices extracts prices of all comparables.
func allPrices(comps []market.Listing) []float64 {
	out := make([]float64, 0, len(comps))
	for _, c := range comps {
		out = append(out, c.Price)
	}
	return out
}

// median returns the middle value of the prices.
func median(prices []float64) float64 {
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// quartiles returns the 25th and 75th percentile prices.
func quartiles(prices []float64) (low, high float64) {
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	n := len(sorted)
	low = sorted[n/4]
	high = sorted[(n*3)/4]
	if high < low {
		high = low
	}
	return low, high
}

// payloadString reads a string field from a task payload.
func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
