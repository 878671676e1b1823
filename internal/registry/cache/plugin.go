package cache

import (
	"context"
	"fmt"
	"time"
)

// ProfileCache caches the formatted profile text included in assembled
// contexts. Entries are invalidated whenever a profile merge occurs.
type ProfileCache interface {
	Available() bool
	Get(ctx context.Context, actorID string) (text string, ok bool, err error)
	Set(ctx context.Context, actorID string, text string, ttl time.Duration) error
	Remove(ctx context.Context, actorID string) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (ProfileCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
