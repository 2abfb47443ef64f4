package ailink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver"
	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/metrics"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 5 * time.Minute
)

// Service routes chat requests to provider drivers and accounts for tokens,
// cost and latency. It satisfies the executor's provider contract.
type Service struct {
	Providers *Registry
	Prices    *PriceTable
	Tokens    *TokenCounter
	// Cache serves repeated temperature-0 requests. Nil disables caching.
	Cache  *ResponseCache
	Logger *logging.Logger
	Now    func() time.Time
}

// NewService wires a service from cfg. store backs the cache when persistence is on.
func NewService(cfg Config, store CacheStore) *Service {
	svc := &Service{
		Providers: NewRegistry(cfg),
		Prices:    NewPriceTable(cfg.Pricing),
		Tokens:    &TokenCounter{},
	}
	if cfg.Cache.Enabled {
		svc.Cache = NewResponseCache(cfg.Cache, store)
	}
	return svc
}

// Chat sends one request to the provider serving req.Model.
func (s *Service) Chat(ctx context.Context, req core.ChatRequest) (core.Response, error) {
	if s == nil || s.Providers == nil {
		return core.Response{}, errors.New("ailink provider registry not configured")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return core.Response{}, errors.New("prompt is required")
	}

	resolved, err := s.Providers.Resolve(req.Model)
	if err != nil {
		return core.Response{}, err
	}

	cacheable := s.Cache != nil && req.Temperature == 0
	key := ""
	if cacheable {
		key = CacheKey(resolved.ProviderID, resolved.Model, req)
		if cached, ok := s.Cache.Get(ctx, key); ok {
			cached.Model = req.Model
			cached.Cached = true
			cached.Cost = 0
			cached.Latency = 0
			return cached, nil
		}
	}

	driverReq := &driver.Request{
		Model:       resolved.Model,
		System:      req.System,
		Messages:    []driver.Message{{Role: driver.RoleUser, Content: req.Prompt}},
		Temperature: driver.Float(req.Temperature),
		JSONMode:    req.JSONMode && resolved.Driver.Capabilities().SupportsJSONMode,
		Metadata:    map[string]string{"skill": req.Skill},
	}
	if req.MaxTokens > 0 {
		driverReq.MaxTokens = driver.Int(req.MaxTokens)
	}

	// The caller's deadline governs the whole fallback walk; the provider
	// default only bounds calls that arrive without one.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout())
		defer cancel()
	}

	start := s.now()
	resp, err := resolved.Driver.Complete(ctx, driverReq)
	latency := s.now().Sub(start)
	if err != nil {
		metrics.RecordProviderCall(resolved.ProviderID, req.Model, false, latency, 0)
		s.logDebug("Provider call failed",
			zap.String("provider", resolved.ProviderID),
			zap.String("model", req.Model),
			zap.Error(err))
		return core.Response{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		metrics.RecordProviderCall(resolved.ProviderID, req.Model, false, latency, 0)
		return core.Response{}, fmt.Errorf("%s returned empty response content", resolved.ProviderID)
	}

	promptTokens, completionTokens := s.usage(driverReq, resp)
	out := core.Response{
		Content:    resp.Text,
		Model:      req.Model,
		TokensUsed: promptTokens + completionTokens,
		Cost:       s.Prices.Cost(req.Model, promptTokens, completionTokens),
		Latency:    latency,
	}
	metrics.RecordProviderCall(resolved.ProviderID, req.Model, true, latency, out.TokensUsed)

	if cacheable {
		if err := s.Cache.Put(ctx, key, out); err != nil {
			s.logWarn("Failed to cache provider response", zap.String("model", req.Model), zap.Error(err))
		}
	}
	return out, nil
}

func (s *Service) usage(req *driver.Request, resp *driver.Response) (int, int) {
	if resp.Usage != nil && resp.Usage.PromptTokens+resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		return 0, resp.Usage.TotalTokens
	}
	return s.Tokens.Count(req.PromptText()), s.Tokens.Count(resp.Text)
}

func (s *Service) timeout() time.Duration {
	duration := s.Providers.cfg.DefaultTimeout
	if duration <= 0 {
		duration = defaultTimeout
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}
	return duration
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return observability.Default()
}

func (s *Service) logDebug(msg string, fields ...zap.Field) {
	if logger := s.logger(); logger != nil {
		logger.Debug(msg, fields...)
	}
}

func (s *Service) logWarn(msg string, fields ...zap.Field) {
	if logger := s.logger(); logger != nil {
		logger.Warn(msg, fields...)
	}
}
