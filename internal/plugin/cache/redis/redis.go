package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/yanthraa/chat-memory/internal/config"
	registrycache "github.com/yanthraa/chat-memory/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ProfileCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHAT_MEMORY_REDIS_URL is required")
	}
	ttl := cfg.ProfileCacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURLWithTTL creates a cache with an explicit profile-text TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.ProfileCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return &redisProfileCache{client: client, ttl: ttl}, nil
}

type redisProfileCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func profileKey(actorID string) string {
	return fmt.Sprintf("profile-text:%s", actorID)
}

func (c *redisProfileCache) Available() bool {
	return true
}

func (c *redisProfileCache) Get(ctx context.Context, actorID string) (string, bool, error) {
	text, err := c.client.Get(ctx, profileKey(actorID)).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *redisProfileCache) Set(ctx context.Context, actorID string, text string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, profileKey(actorID), text, ttl).Err()
}

func (c *redisProfileCache) Remove(ctx context.Context, actorID string) error {
	return c.client.Del(ctx, profileKey(actorID)).Err()
}

var _ registrycache.ProfileCache = (*redisProfileCache)(nil)
