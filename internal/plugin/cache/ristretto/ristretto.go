package ristretto

import (
	"context"
	"fmt"
	"time"

	driver "github.com/dgraph-io/ristretto/v2"
	"github.com/yanthraa/chat-memory/internal/config"
	registrycache "github.com/yanthraa/chat-memory/internal/registry/cache"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "ristretto",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ProfileCache, error) {
	cfg := config.FromContext(ctx)
	ttl := defaultTTL
	if cfg != nil && cfg.ProfileCacheTTL > 0 {
		ttl = cfg.ProfileCacheTTL
	}
	inner, err := driver.NewCache(&driver.Config[string, string]{
		NumCounters: 100_000,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto cache: %w", err)
	}
	return &ristrettoProfileCache{cache: inner, ttl: ttl}, nil
}

// ristrettoProfileCache keeps rendered profile text in process memory.
// Useful for single-instance deployments where Redis is overkill.
type ristrettoProfileCache struct {
	cache *driver.Cache[string, string]
	ttl   time.Duration
}

func (c *ristrettoProfileCache) Available() bool {
	return true
}

func (c *ristrettoProfileCache) Get(ctx context.Context, actorID string) (string, bool, error) {
	text, ok := c.cache.Get(actorID)
	return text, ok, nil
}

func (c *ristrettoProfileCache) Set(ctx context.Context, actorID string, text string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(actorID, text, int64(len(text)), ttl)
	c.cache.Wait()
	return nil
}

func (c *ristrettoProfileCache) Remove(ctx context.Context, actorID string) error {
	c.cache.Del(actorID)
	return nil
}

var _ registrycache.ProfileCache = (*ristrettoProfileCache)(nil)
