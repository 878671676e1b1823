package extract

import (
	"context"
	"fmt"

	"github.com/yanthraa/chat-memory/internal/model"
)

// ProfileExtractor derives profile facts from a conversation summary.
// Extraction failures are local and non-fatal; callers leave the profile at
// its last-known-good state.
type ProfileExtractor interface {
	// Extract returns the profile delta for a summary. The existing profile
	// is provided so the extractor can avoid re-proposing known facts.
	Extract(ctx context.Context, summary string, existing model.Profile) (model.ProfileDelta, error)
	// Name returns the plugin name.
	Name() string
}

// Loader creates a ProfileExtractor from config.
type Loader func(ctx context.Context) (ProfileExtractor, error)

// Plugin represents a profile extractor plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a profile extractor plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered extractor plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named extractor plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown profile extractor %q; valid: %v", name, Names())
}
