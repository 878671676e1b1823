package profile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanthraa/chat-memory/internal/model"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	"github.com/yanthraa/chat-memory/internal/registry/store/storetest"
)

type fakeExtractor struct {
	delta model.ProfileDelta
	err   error
	calls int
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Extract(ctx context.Context, summary string, existing model.Profile) (model.ProfileDelta, error) {
	f.calls++
	return f.delta, f.err
}

type fakeCache struct {
	entries map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]string{}} }

func (f *fakeCache) Available() bool { return true }

func (f *fakeCache) Get(ctx context.Context, actorID string) (string, bool, error) {
	text, ok := f.entries[actorID]
	return text, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, actorID, text string, ttl time.Duration) error {
	f.entries[actorID] = text
	return nil
}

func (f *fakeCache) Remove(ctx context.Context, actorID string) error {
	delete(f.entries, actorID)
	return nil
}

func TestUpdate_MergesExtractedDelta(t *testing.T) {
	store := storetest.New()
	extractor := &fakeExtractor{delta: model.ProfileDelta{
		Facts:       []string{"works at acme"},
		Preferences: map[string]string{"language": "go"},
		Topics:      []string{"databases"},
	}}
	svc := NewService(store, extractor, nil, time.Minute)

	svc.Update(context.Background(), "member123", "talked about go and databases")

	p, err := store.GetProfile(context.Background(), "member123")
	require.NoError(t, err)
	require.Equal(t, []string{"works at acme"}, p.ImportantFacts)
	require.Equal(t, "go", p.Preferences["language"])
	require.Equal(t, []string{"databases"}, p.TopicsOfInterest)
}

func TestUpdate_IsIdempotent(t *testing.T) {
	store := storetest.New()
	extractor := &fakeExtractor{delta: model.ProfileDelta{Facts: []string{"works at acme"}}}
	svc := NewService(store, extractor, nil, time.Minute)

	svc.Update(context.Background(), "member123", "summary")
	svc.Update(context.Background(), "member123", "summary")

	p, err := store.GetProfile(context.Background(), "member123")
	require.NoError(t, err)
	require.Equal(t, []string{"works at acme"}, p.ImportantFacts)
}

func TestUpdate_ExtractionFailureKeepsLastKnownGood(t *testing.T) {
	store := storetest.New()
	_, err := store.MergeProfileDelta(context.Background(), "member123", model.ProfileDelta{Facts: []string{"existing fact"}})
	require.NoError(t, err)

	extractor := &fakeExtractor{err: fmt.Errorf("model timeout")}
	svc := NewService(store, extractor, nil, time.Minute)

	svc.Update(context.Background(), "member123", "summary")

	p, err := store.GetProfile(context.Background(), "member123")
	require.NoError(t, err)
	require.Equal(t, []string{"existing fact"}, p.ImportantFacts)
}

func TestUpdate_SkipsWithoutExtractorOrSummary(t *testing.T) {
	store := storetest.New()
	extractor := &fakeExtractor{delta: model.ProfileDelta{Facts: []string{"fact"}}}

	NewService(store, nil, nil, time.Minute).Update(context.Background(), "member123", "summary")
	NewService(store, extractor, nil, time.Minute).Update(context.Background(), "member123", "   ")

	require.Zero(t, extractor.calls)
	_, err := store.GetProfile(context.Background(), "member123")
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestUpdate_InvalidatesCache(t *testing.T) {
	store := storetest.New()
	cache := newFakeCache()
	cache.entries["member123"] = "stale profile text"
	extractor := &fakeExtractor{delta: model.ProfileDelta{Facts: []string{"fact"}}}
	svc := NewService(store, extractor, cache, time.Minute)

	svc.Update(context.Background(), "member123", "summary")

	require.NotContains(t, cache.entries, "member123")
}

func TestContextText_EmptyForUnknownActor(t *testing.T) {
	svc := NewService(storetest.New(), nil, nil, time.Minute)
	text, err := svc.ContextText(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestContextText_CachesRenderedProfile(t *testing.T) {
	store := storetest.New()
	_, err := store.MergeProfileDelta(context.Background(), "member123", model.ProfileDelta{Facts: []string{"likes go"}})
	require.NoError(t, err)

	cache := newFakeCache()
	svc := NewService(store, nil, cache, time.Minute)

	text, err := svc.ContextText(context.Background(), "member123")
	require.NoError(t, err)
	require.Contains(t, text, "likes go")
	require.Equal(t, text, cache.entries["member123"])

	// Second read is served from cache.
	cache.entries["member123"] = "cached text"
	text, err = svc.ContextText(context.Background(), "member123")
	require.NoError(t, err)
	require.Equal(t, "cached text", text)
}

func TestFormat(t *testing.T) {
	t.Run("empty profile renders empty", func(t *testing.T) {
		require.Empty(t, Format(model.Profile{}))
	})

	t.Run("all sections", func(t *testing.T) {
		text := Format(model.Profile{
			ImportantFacts:   []string{"works at acme"},
			Preferences:      map[string]string{"style": "concise", "language": "go"},
			TopicsOfInterest: []string{"databases", "networking"},
		})
		require.Equal(t,
			"Important facts:\n- works at acme\n"+
				"Preferences:\n- language: go\n- style: concise\n"+
				"Topics of interest: databases, networking",
			text)
	})

	t.Run("sections cap at ten items", func(t *testing.T) {
		var facts []string
		for i := 0; i < 15; i++ {
			facts = append(facts, fmt.Sprintf("fact %02d", i))
		}
		text := Format(model.Profile{ImportantFacts: facts})
		require.Contains(t, text, "fact 09")
		require.NotContains(t, text, "fact 10")
	})
}
