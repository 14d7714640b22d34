package ledger

import (
	"strings"
	"sync"
)

// Pricing is the USD cost per 1K tokens for one model.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// priceTable maps provider -> model -> pricing. Embedding models carry a
// zero output price because embedding responses have no completion tokens.
var priceTable = map[string]map[string]Pricing{
	"anthropic": {
		"claude-sonnet-4-5":  {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-opus-4-1":    {InputPer1K: 0.015, OutputPer1K: 0.075},
		"claude-3-7-sonnet":  {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-5-haiku":   {InputPer1K: 0.0008, OutputPer1K: 0.004},
		"claude-haiku-4-5":   {InputPer1K: 0.001, OutputPer1K: 0.005},
	},
	"openai": {
		"gpt-4o":                 {InputPer1K: 0.0025, OutputPer1K: 0.010},
		"gpt-4o-mini":            {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gpt-4.1":                {InputPer1K: 0.002, OutputPer1K: 0.008},
		"text-embedding-3-small": {InputPer1K: 0.00002, OutputPer1K: 0},
		"text-embedding-3-large": {InputPer1K: 0.00013, OutputPer1K: 0},
	},
	"mock": {},
	"local": {},
}

// defaultPricing is applied when a model is missing from the table. It is
// deliberately on the expensive side so unknown models never undercount.
var defaultPricing = Pricing{InputPer1K: 0.01, OutputPer1K: 0.03}

var unknownModelWarned sync.Map

// LookupPricing returns the pricing for a provider/model pair. Model names
// are matched on prefix after exact match fails, so dated releases like
// "claude-sonnet-4-5-20250929" inherit their family's pricing. ok is false
// when the conservative default was applied.
func LookupPricing(provider, model string) (Pricing, bool) {
	models, found := priceTable[strings.ToLower(provider)]
	if found {
		if p, exact := models[model]; exact {
			return p, true
		}
		for name, p := range models {
			if strings.HasPrefix(model, name) {
				return p, true
			}
		}
		// mock and local providers are free
		if len(models) == 0 {
			return Pricing{}, true
		}
	}
	return defaultPricing, false
}

// Cost computes the input/output/total USD cost of a call.
func (l *Ledger) Cost(provider, model string, inputTokens, outputTokens int) (inCost, outCost, total float64) {
	p, known := LookupPricing(provider, model)
	if !known {
		key := provider + "/" + model
		if _, loaded := unknownModelWarned.LoadOrStore(key, true); !loaded {
			l.logger.Warn("model missing from pricing table, using conservative default",
				"provider", provider, "model", model,
				"input_per_1k", defaultPricing.InputPer1K, "output_per_1k", defaultPricing.OutputPer1K)
		}
	}
	inCost = float64(inputTokens) / 1000.0 * p.InputPer1K
	outCost = float64(outputTokens) / 1000.0 * p.OutputPer1K
	return inCost, outCost, inCost + outCost
}
