package completion

import (
	"math"
	"testing"

	"github.com/optilist/optilist/internal/config"
)

func TestPriceTable_Cost(t *testing.T) {
	table := NewPriceTable(nil)

	tests := []struct {
		name         string
		model        string
		inputTokens  int64
		outputTokens int64
		want         float64
	}{
		{
			name:         "sonnet 1M in 1M out",
			model:        "claude-sonnet-4-20250514",
			inputTokens:  1_000_000,
			outputTokens: 1_000_000,
			want:         18.00,
		},
		{
			name:         "haiku small call",
			model:        "claude-3-5-haiku-20241022",
			inputTokens:  1000,
			outputTokens: 500,
			want:         0.0008 + 0.002,
		},
		{
			name:         "unknown model priced as sonnet",
			model:        "claude-experimental",
			inputTokens:  1_000_000,
			outputTokens: 0,
			want:         3.00,
		},
		{
			name:  "zero tokens cost nothing",
			model: "claude-sonnet-4-20250514",
			want:  0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := table.Cost(tc.model, tc.inputTokens, tc.outputTokens)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Cost() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPriceTable_Overrides(t *testing.T) {
	table := NewPriceTable(map[string]config.ModelPrice{
		"claude-sonnet-4-20250514": {InputPerMillion: 1.00, OutputPerMillion: 2.00},
		"custom-model":             {InputPerMillion: 10.00, OutputPerMillion: 20.00},
	})

	if got := table.Cost("claude-sonnet-4-20250514", 1_000_000, 0); got != 1.00 {
		t.Errorf("expected override to take precedence, got %v", got)
	}
	if got := table.Cost("custom-model", 0, 1_000_000); got != 20.00 {
		t.Errorf("expected custom model pricing, got %v", got)
	}
	// Non-overridden models keep their defaults.
	if got := table.Cost("claude-3-5-haiku-20241022", 1_000_000, 0); got != 0.80 {
		t.Errorf("expected default haiku pricing, got %v", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Errorf("empty prompt should estimate 1 token, got %d", got)
	}

	long := make([]byte, 4000)
	for i := range long {
		long[i] = 'a'
	}
	if got := EstimateTokens(string(long)); got != 1001 {
		t.Errorf("expected 1001 tokens for 4000 chars, got %d", got)
	}
}
