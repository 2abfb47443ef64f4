package ailink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/metrics"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = time.Hour
)

// CacheStore is the persistent tier behind the in-memory cache.
type CacheStore interface {
	GetResponseCache(ctx context.Context, key string) (string, bool, error)
	SetResponseCache(ctx context.Context, key, model, payload string, ttl time.Duration) error
}

// ResponseCache is a two-tier cache for deterministic provider replies:
// an expiring LRU in memory backed by an optional store.
type ResponseCache struct {
	memory *expirable.LRU[string, core.Response]
	store  CacheStore
	ttl    time.Duration
}

// NewResponseCache builds a cache from cfg. store may be nil.
func NewResponseCache(cfg CacheConfig, store CacheStore) *ResponseCache {
	size := cfg.Size
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if !cfg.Persist {
		store = nil
	}
	return &ResponseCache{
		memory: expirable.NewLRU[string, core.Response](size, nil, ttl),
		store:  store,
		ttl:    ttl,
	}
}

// Get returns a cached response. Store errors count as misses.
func (c *ResponseCache) Get(ctx context.Context, key string) (core.Response, bool) {
	if c == nil {
		return core.Response{}, false
	}
	if resp, ok := c.memory.Get(key); ok {
		metrics.RecordCacheLookup("memory", true)
		return resp, true
	}
	metrics.RecordCacheLookup("memory", false)

	if c.store == nil {
		return core.Response{}, false
	}
	payload, ok, err := c.store.GetResponseCache(ctx, key)
	if err != nil || !ok {
		metrics.RecordCacheLookup("store", false)
		return core.Response{}, false
	}
	var resp core.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		metrics.RecordCacheLookup("store", false)
		return core.Response{}, false
	}
	metrics.RecordCacheLookup("store", true)
	c.memory.Add(key, resp)
	return resp, true
}

// Put stores resp in every tier.
func (c *ResponseCache) Put(ctx context.Context, key string, resp core.Response) error {
	if c == nil {
		return nil
	}
	c.memory.Add(key, resp)
	if c.store == nil {
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	return c.store.SetResponseCache(ctx, key, resp.Model, string(payload), c.ttl)
}

// Len reports the number of in-memory entries.
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.memory.Len()
}

// CacheKey identifies a request by everything that shapes the reply.
func CacheKey(providerID, model string, req core.ChatRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%t\x00", providerID, model, req.MaxTokens, req.JSONMode)
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}
