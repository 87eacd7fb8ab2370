package completion

import "github.com/optilist/optilist/internal/config"

// defaultPricing contains prices per 1M tokens for known models.
var defaultPricing = map[string]config.ModelPrice{
	"claude-opus-4-5-20251101":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// fallbackModel is the pricing used for models missing from the table.
// Priced as sonnet so unknown models are not silently cheap.
const fallbackModel = "claude-sonnet-4-20250514"

// PriceTable derives call costs from per-model per-token prices. The table
// is built once from configuration and read-only afterwards.
type PriceTable struct {
	prices map[string]config.ModelPrice
}

// NewPriceTable builds a price table from the built-in defaults overlaid
// with any configured overrides.
func NewPriceTable(overrides map[string]config.ModelPrice) *PriceTable {
	prices := make(map[string]config.ModelPrice, len(defaultPricing)+len(overrides))
	for model, p := range defaultPricing {
		prices[model] = p
	}
	for model, p := range overrides {
		prices[model] = p
	}
	return &PriceTable{prices: prices}
}

// Cost returns the dollar cost of a call with the given token counts.
func (t *PriceTable) Cost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := t.prices[model]
	if !ok {
		p = t.prices[fallbackModel]
	}
	return float64(inputTokens)/1e6*p.InputPerMillion +
		float64(outputTokens)/1e6*p.OutputPerMillion
}

// Estimate returns the pre-flight cost estimate for a call: the estimated
// input tokens plus the worst-case output allowance.
func (t *PriceTable) Estimate(model string, inputTokens, maxOutputTokens int64) float64 {
	return t.Cost(model, inputTokens, maxOutputTokens)
}

// EstimateTokens approximates the token count of a prompt before the call is
// made. Roughly four characters per token for English text.
func EstimateTokens(text string) int64 {
	return int64(len(text)/4) + 1
}
