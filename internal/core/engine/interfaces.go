package engine

import (
	"context"
	"time"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

// ProviderClient sends one chat request to whichever provider serves the model.
type ProviderClient interface {
	Chat(ctx context.Context, req core.ChatRequest) (core.Response, error)
}

// Renderer renders a prompt template against the execution context.
type Renderer interface {
	Render(template string, vars map[string]any) (string, error)
}

// Admitter gates outbound calls. *ratelimit.RateLimiter satisfies it.
type Admitter interface {
	Acquire(ctx context.Context, userID, model string, timeout time.Duration) error
}

// Fallback walks a model's substitute chain. *fallback.Strategy satisfies it.
type Fallback interface {
	ExecuteWithFallback(ctx context.Context, model string, call core.ProviderCall) (core.Response, string, error)
}

// Recorder persists finished executions.
type Recorder interface {
	RecordExecution(ctx context.Context, record core.ExecutionRecord) error
}
