package agent

import (
	"context"
	"fmt"

	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/market"
	"github.com/optilist/optilist/pkg/models"
)

// MarketResearcher reads demand signals for the listing's category. It never
// makes metered calls, so its cost is always zero.
type MarketResearcher struct {
	source market.DataSource
}

// NewMarketResearcher creates the market research worker.
func NewMarketResearcher(source market.DataSource) *MarketResearcher {
	return &MarketResearcher{source: source}
}

// ID returns the agent identifier.
func (a *MarketResearcher) ID() string { return "market-research" }

// Execute summarizes category demand.
func (a *MarketResearcher) Execute(ctx context.Context, task models.AgentTask, _ *budget.Governor) models.AgentResult {
	if err := ctx.Err(); err != nil {
		return models.ErrorResult(a.ID(), err)
	}

	category := payloadString(task.Payload, "category")
	if category == "" {
		return models.ErrorResult(a.ID(), fmt.Errorf("task payload has no category"))
	}

	stats, err := a.source.CategoryStats(ctx, category)
	if err != nil {
		return models.ErrorResult(a.ID(), err)
	}

	total := stats.ActiveListings + stats.SoldLastMonth
	demand := 0.0
	if total > 0 {
		demand = float64(stats.SoldLastMonth) / float64(total)
	}

	var risks []string
	if demand < 0.2 {
		risks = append(risks, "low demand category")
	}
	if total < 20 {
		risks = append(risks, "thin marketplace data for category")
	}

	// Confidence grows with sample size: thin data caps how much the
	// demand signal should sway the consensus.
	confidence := 0.9
	if total < 20 {
		confidence = 0.5
	} else if total < 100 {
		confidence = 0.7
	}

	return models.AgentResult{
		AgentID:    a.ID(),
		Confidence: confidence,
		Reasoning: fmt.Sprintf("Category %q: %d active, %d sold last month (sell-through %.0f%%), median $%.2f.",
			stats.Category, stats.ActiveListings, stats.SoldLastMonth, demand*100, stats.MedianPrice),
		RiskFactors: risks,
		Payload: map[string]any{
			"demand_ratio":    demand,
			"active_listings": stats.ActiveListings,
			"sold_last_month": stats.SoldLastMonth,
			"median_price":    stats.MedianPrice,
		},
	}
}
