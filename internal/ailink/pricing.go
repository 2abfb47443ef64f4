package ailink

import "strings"

// Price is the cost of a model in USD per million tokens.
type Price struct {
	InputPerMillion  float64 `mapstructure:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `mapstructure:"output_per_million" json:"output_per_million"`
}

var defaultPrices = map[string]Price{
	"claude-3-opus":     {InputPerMillion: 15, OutputPerMillion: 75},
	"claude-3-5-sonnet": {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-3-5-haiku":  {InputPerMillion: 0.8, OutputPerMillion: 4},
	"gpt-4o":            {InputPerMillion: 2.5, OutputPerMillion: 10},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"gpt-4-turbo":       {InputPerMillion: 10, OutputPerMillion: 30},
	"gpt-3.5-turbo":     {InputPerMillion: 0.5, OutputPerMillion: 1.5},
	"deepseek-chat":     {InputPerMillion: 0.27, OutputPerMillion: 1.1},
	"deepseek-reasoner": {InputPerMillion: 0.55, OutputPerMillion: 2.19},
	"qwen-max":          {InputPerMillion: 1.6, OutputPerMillion: 6.4},
	"qwen-plus":         {InputPerMillion: 0.4, OutputPerMillion: 1.2},
	"qwen-turbo":        {InputPerMillion: 0.05, OutputPerMillion: 0.2},
}

// PriceTable looks up per-model prices, layering overrides over the built-in table.
type PriceTable struct {
	prices map[string]Price
}

// NewPriceTable merges overrides into the defaults.
func NewPriceTable(overrides map[string]Price) *PriceTable {
	prices := make(map[string]Price, len(defaultPrices)+len(overrides))
	for model, price := range defaultPrices {
		prices[model] = price
	}
	for model, price := range overrides {
		prices[strings.TrimSpace(model)] = price
	}
	return &PriceTable{prices: prices}
}

// Lookup returns the price for model. Dated snapshots such as
// "claude-3-5-sonnet-20241022" fall back to the longest known prefix.
func (t *PriceTable) Lookup(model string) (Price, bool) {
	if t == nil {
		return Price{}, false
	}
	model = strings.TrimSpace(model)
	if price, ok := t.prices[model]; ok {
		return price, true
	}

	best, bestLen := Price{}, 0
	for known, price := range t.prices {
		if strings.HasPrefix(model, known+"-") && len(known) > bestLen {
			best, bestLen = price, len(known)
		}
	}
	return best, bestLen > 0
}

// Cost returns the USD cost of a call. Unknown models cost zero.
func (t *PriceTable) Cost(model string, promptTokens, completionTokens int) float64 {
	price, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return (float64(promptTokens)*price.InputPerMillion + float64(completionTokens)*price.OutputPerMillion) / 1_000_000
}
