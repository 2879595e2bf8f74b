package agent

import (
	"strings"

	"planforge/internal/types"
)

// modelPricing holds per-million-token USD rates.
type modelPricing struct {
	inputPerM  float64
	outputPerM float64
}

// pricingTable maps model id prefixes to rates. Longest matching prefix
// wins. Unknown models cost zero rather than guessing.
var pricingTable = map[string]modelPricing{
	"claude-opus-4":   {15.00, 75.00},
	"claude-sonnet-4": {3.00, 15.00},
	"claude-haiku-4":  {0.80, 4.00},
	"claude-3-5":      {3.00, 15.00},
	"gpt-4o-mini":     {0.15, 0.60},
	"gpt-4o":          {2.50, 10.00},
	"gpt-4.1":         {2.00, 8.00},
	"o3":              {2.00, 8.00},
}

// CostFor computes the USD cost of one response for the given model.
func CostFor(model string, usage types.UsageMetadata) float64 {
	var best string
	for prefix := range pricingTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	p := pricingTable[best]
	return float64(usage.InputTokens)/1e6*p.inputPerM +
		float64(usage.OutputTokens)/1e6*p.outputPerM
}
