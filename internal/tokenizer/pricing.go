package tokenizer

import "strings"

// ModelPricing holds the per-million-token costs for a model in USD.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Pricing maps completion model identifiers to their token pricing.
var Pricing = map[string]ModelPricing{
	"gpt-4o":        {2.50, 10.00},
	"gpt-4o-mini":   {0.15, 0.60},
	"gpt-4-turbo":   {10.00, 30.00},
	"gpt-4.1":       {2.00, 8.00},
	"gpt-4.1-mini":  {0.40, 1.60},
	"gpt-3.5-turbo": {0.50, 1.50},
}

// GetPricing returns the pricing for model, trying an exact match first and
// then the longest known prefix, so dated snapshots such as
// "gpt-4o-mini-2024-07-18" price as their base model.
func GetPricing(model string) (ModelPricing, bool) {
	if p, ok := Pricing[model]; ok {
		return p, true
	}

	var best ModelPricing
	bestLen := 0
	for name, p := range Pricing {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	return best, bestLen > 0
}

// EstimateCost returns the estimated USD cost of a call, or 0 for an unpriced
// model.
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	p, ok := GetPricing(model)
	if !ok {
		return 0.0
	}
	return (float64(tokensIn)*p.InputPerMillion + float64(tokensOut)*p.OutputPerMillion) / 1_000_000
}
