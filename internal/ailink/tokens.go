package ailink

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Token estimators.
const (
	EstimatorTiktoken = "tiktoken"
	EstimatorSimple   = "simple"
)

// TokenCounter estimates token counts when a provider omits usage.
type TokenCounter struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error

	// Estimator selects "tiktoken" (default) or "simple" (four characters per token).
	Estimator string
}

// Count returns the estimated token count of text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.Estimator == EstimatorSimple {
		return simpleEstimate(text)
	}

	c.once.Do(func() {
		c.codec, c.err = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if c.err != nil || c.codec == nil {
		return simpleEstimate(text)
	}

	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return simpleEstimate(text)
	}
	return len(ids)
}

func simpleEstimate(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 {
		return 1
	}
	return n
}
