package noop

import (
	"context"
	"time"

	registrycache "github.com/yanthraa/chat-memory/internal/registry/cache"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrycache.ProfileCache, error) {
			return &noopCache{}, nil
		},
	})
}

// noopCache disables profile caching; every context assembly reads the store.
type noopCache struct{}

func (noopCache) Available() bool { return false }

func (noopCache) Get(ctx context.Context, actorID string) (string, bool, error) {
	return "", false, nil
}

func (noopCache) Set(ctx context.Context, actorID string, text string, ttl time.Duration) error {
	return nil
}

func (noopCache) Remove(ctx context.Context, actorID string) error {
	return nil
}

var _ registrycache.ProfileCache = (*noopCache)(nil)
