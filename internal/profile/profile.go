// Package profile maintains the compressed long-term memory of an actor:
// facts, preferences, and topics extracted incrementally from conversation
// summaries. The profile is only ever grown by set union, never rebuilt from
// full history.
package profile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/yanthraa/chat-memory/internal/model"
	registrycache "github.com/yanthraa/chat-memory/internal/registry/cache"
	registryextract "github.com/yanthraa/chat-memory/internal/registry/extract"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	"github.com/yanthraa/chat-memory/internal/security"
)

// maxItemsPerSection caps how many facts, preferences, and topics are
// rendered into the context block. The stored profile is not truncated.
const maxItemsPerSection = 10

// Service updates actor profiles from conversation summaries and renders
// them for context assembly.
type Service struct {
	store     registrystore.MemoryStore
	extractor registryextract.ProfileExtractor
	cache     registrycache.ProfileCache
	ttl       time.Duration
}

// NewService creates a profile service. The extractor and cache may be nil.
func NewService(store registrystore.MemoryStore, extractor registryextract.ProfileExtractor, cache registrycache.ProfileCache, ttl time.Duration) *Service {
	return &Service{store: store, extractor: extractor, cache: cache, ttl: ttl}
}

// Update extracts a profile delta from the summary and merges it into the
// actor's profile. Extraction failure leaves the profile untouched and is
// reported only in the log; it never fails the caller's operation.
func (s *Service) Update(ctx context.Context, actorID, summary string) {
	if s.extractor == nil || strings.TrimSpace(summary) == "" {
		return
	}

	existing, err := s.store.GetProfile(ctx, actorID)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Profile update: load failed, keeping last known good", "actorId", actorID, "err", err)
			return
		}
		existing = model.Profile{ActorID: actorID}
	}

	delta, err := s.extractor.Extract(ctx, summary, existing)
	if err != nil {
		log.Warn("Profile update: extraction failed, keeping last known good", "actorId", actorID, "err", err)
		return
	}
	if delta.Empty() {
		return
	}

	if _, err := s.store.MergeProfileDelta(ctx, actorID, delta); err != nil {
		log.Warn("Profile update: merge failed", "actorId", actorID, "err", err)
		return
	}

	if s.cache != nil && s.cache.Available() {
		if err := s.cache.Remove(ctx, actorID); err != nil {
			log.Warn("Profile update: cache invalidation failed", "actorId", actorID, "err", err)
		}
	}
}

// ContextText returns the formatted profile block for an actor, empty if the
// actor has no profile yet. Results are cached with a short TTL.
func (s *Service) ContextText(ctx context.Context, actorID string) (string, error) {
	if s.cache != nil && s.cache.Available() {
		if text, ok, err := s.cache.Get(ctx, actorID); err != nil {
			log.Warn("Profile cache read failed", "actorId", actorID, "err", err)
		} else if ok {
			if security.ProfileCacheHitsTotal != nil {
				security.ProfileCacheHitsTotal.Inc()
			}
			return text, nil
		} else if security.ProfileCacheMissesTotal != nil {
			security.ProfileCacheMissesTotal.Inc()
		}
	}

	p, err := s.store.GetProfile(ctx, actorID)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}

	text := Format(p)
	if s.cache != nil && s.cache.Available() {
		if err := s.cache.Set(ctx, actorID, text, s.ttl); err != nil {
			log.Warn("Profile cache write failed", "actorId", actorID, "err", err)
		}
	}
	return text, nil
}

// Format renders a profile as the text block included in assembled contexts.
// Each section is capped at maxItemsPerSection entries; empty sections are
// omitted, and an entirely empty profile renders as "".
func Format(p model.Profile) string {
	var b strings.Builder

	if len(p.ImportantFacts) > 0 {
		b.WriteString("Important facts:\n")
		for _, fact := range capped(p.ImportantFacts) {
			b.WriteString("- ")
			b.WriteString(fact)
			b.WriteString("\n")
		}
	}

	if len(p.Preferences) > 0 {
		keys := make([]string, 0, len(p.Preferences))
		for k := range p.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > maxItemsPerSection {
			keys = keys[:maxItemsPerSection]
		}
		b.WriteString("Preferences:\n")
		for _, k := range keys {
			b.WriteString("- ")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(p.Preferences[k])
			b.WriteString("\n")
		}
	}

	if len(p.TopicsOfInterest) > 0 {
		b.WriteString("Topics of interest: ")
		b.WriteString(strings.Join(capped(p.TopicsOfInterest), ", "))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func capped(items []string) []string {
	if len(items) > maxItemsPerSection {
		return items[:maxItemsPerSection]
	}
	return items
}
