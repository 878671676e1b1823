// Package assembler builds the bounded context handed to response
// generation: profile facts, semantically relevant history selected under
// the caller's visibility scope, the recent window of the active chat, and
// the query itself, in that fixed order.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/yanthraa/chat-memory/internal/model"
	"github.com/yanthraa/chat-memory/internal/profile"
	registryembed "github.com/yanthraa/chat-memory/internal/registry/embed"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"
	"github.com/yanthraa/chat-memory/internal/retrieval"
	"github.com/yanthraa/chat-memory/internal/scope"
	"github.com/yanthraa/chat-memory/internal/security"
)

// SectionKind identifies a context section's role in the assembled output.
type SectionKind string

const (
	SectionProfile SectionKind = "profile"
	SectionHistory SectionKind = "history"
	SectionWindow  SectionKind = "window"
	SectionQuery   SectionKind = "query"
)

// Section is one block of the assembled context. Score is set only for
// history sections and drives budget-overflow eviction.
type Section struct {
	Kind  SectionKind `json:"kind"`
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Score float64     `json:"score,omitempty"`
}

// Context is an assembled, ordered, budget-bounded context. Degraded is true
// when retrieval failed and the context was built without historical matches.
type Context struct {
	Sections []Section `json:"sections"`
	Degraded bool      `json:"degraded"`
}

// Render flattens the sections into a single prompt string.
func (c Context) Render() string {
	var b strings.Builder
	for i, s := range c.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteString("\n")
		}
		b.WriteString(s.Body)
	}
	return b.String()
}

// Request describes one context-assembly query.
type Request struct {
	Actor model.Actor
	// ChatID is the active chat, always excluded from retrieval.
	ChatID    string
	QueryText string
	// QueryVector is the precomputed embedding of QueryText. When absent the
	// assembler embeds the text itself if an embedder is configured.
	QueryVector []float32
}

// Options tune retrieval and budget policy.
type Options struct {
	TopK      int
	Threshold float64
	Window    int
	Budget    int
}

// Assembler orchestrates scope resolution, ranking, profile lookup, and
// budget enforcement. Assembly is read-only with respect to every store.
type Assembler struct {
	store    registrystore.MemoryStore
	vectors  registryvector.VectorStore
	embedder registryembed.Embedder
	profiles *profile.Service
	opts     Options
}

// New creates an Assembler. The vector store and embedder may be nil, in
// which case every query degrades to profile + window only.
func New(store registrystore.MemoryStore, vectors registryvector.VectorStore, embedder registryembed.Embedder, profiles *profile.Service, opts Options) *Assembler {
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = retrieval.DefaultThreshold
	}
	if opts.Window <= 0 {
		opts.Window = 5
	}
	return &Assembler{store: store, vectors: vectors, embedder: embedder, profiles: profiles, opts: opts}
}

// Assemble builds the context for a query. Retrieval failures never fail the
// request: they are logged, counted, and the context is returned degraded.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Context, error) {
	if strings.TrimSpace(req.QueryText) == "" {
		return Context{}, &registrystore.ValidationError{Field: "query", Message: "must not be empty"}
	}

	profileText := ""
	if a.profiles != nil {
		text, err := a.profiles.ContextText(ctx, req.Actor.ID)
		if err != nil {
			log.Warn("Profile lookup failed, assembling without profile", "actorId", req.Actor.ID, "err", err)
		} else {
			profileText = text
		}
	}

	matches, degraded := a.retrieve(ctx, req)

	window, err := a.store.RecentMessages(ctx, req.ChatID, a.opts.Window)
	if err != nil {
		return Context{}, fmt.Errorf("recent window: %w", err)
	}

	out := Context{Degraded: degraded}
	if profileText != "" {
		out.Sections = append(out.Sections, Section{
			Kind:  SectionProfile,
			Title: "User profile:",
			Body:  profileText,
		})
	}
	for _, m := range matches {
		out.Sections = append(out.Sections, Section{
			Kind:  SectionHistory,
			Title: "Relevant past conversation:",
			Body:  m.Record.Summary,
			Score: m.Score,
		})
	}
	if len(window) > 0 {
		out.Sections = append(out.Sections, Section{
			Kind:  SectionWindow,
			Title: "Recent conversation:",
			Body:  renderWindow(window),
		})
	}
	out.Sections = append(out.Sections, Section{
		Kind:  SectionQuery,
		Title: "Current message:",
		Body:  req.QueryText,
	})

	a.enforceBudget(&out)
	return out, nil
}

// retrieve runs the scoped vector search and ranking. The bool result is
// true when retrieval was attempted and failed; an empty match set from a
// healthy search is not degradation.
func (a *Assembler) retrieve(ctx context.Context, req Request) ([]retrieval.Match, bool) {
	visibility := scope.ForActor(req.Actor)
	if visibility.Empty() {
		return nil, false
	}
	if a.vectors == nil || !a.vectors.IsEnabled() {
		a.markDegraded("vector store unavailable", req.Actor.ID, nil)
		return nil, true
	}

	queryVector := req.QueryVector
	if len(queryVector) == 0 {
		if a.embedder == nil {
			a.markDegraded("no query vector and no embedder", req.Actor.ID, nil)
			return nil, true
		}
		embeddings, err := a.embedder.EmbedTexts(ctx, []string{req.QueryText})
		if err != nil {
			a.markDegraded("query embedding failed", req.Actor.ID, err)
			return nil, true
		}
		queryVector = embeddings[0]
	}

	// Over-fetch so the threshold cut still leaves up to k results.
	results, err := a.vectors.Search(ctx, registryvector.SearchRequest{
		Embedding:     queryVector,
		Scope:         visibility,
		ExcludeChatID: req.ChatID,
		Limit:         a.opts.TopK * 3,
	})
	if err != nil {
		a.markDegraded("vector search failed", req.Actor.ID, err)
		return nil, true
	}
	if len(results) == 0 {
		return nil, false
	}

	ids := make([]uuid.UUID, len(results))
	scores := make(map[uuid.UUID]float64, len(results))
	for i, r := range results {
		ids[i] = r.RecordID
		scores[r.RecordID] = r.Score
	}
	records, err := a.store.GetConversationRecords(ctx, ids)
	if err != nil {
		a.markDegraded("record fetch failed", req.Actor.ID, err)
		return nil, true
	}

	// The record store is the authority on ownership and sharing; re-check
	// the predicate and the active-chat exclusion against its rows.
	var matches []retrieval.Match
	for _, rec := range records {
		if rec.ChatID == req.ChatID || !visibility.Allows(rec) {
			continue
		}
		matches = append(matches, retrieval.Match{Record: rec, Score: scores[rec.ID]})
	}
	return retrieval.Rank(matches, a.opts.TopK, a.opts.Threshold), false
}

func (a *Assembler) markDegraded(reason, actorID string, err error) {
	log.Warn("Retrieval degraded, continuing with profile and window only",
		"reason", reason, "actorId", actorID, "err", err)
	if security.RetrievalDegradedTotal != nil {
		security.RetrievalDegradedTotal.Inc()
	}
}

// enforceBudget drops whole history sections, lowest score first, until the
// context fits. Profile, window, and query sections are never dropped.
func (a *Assembler) enforceBudget(c *Context) {
	if a.opts.Budget <= 0 {
		return
	}
	for size(c.Sections) > a.opts.Budget {
		idx := -1
		for i, s := range c.Sections {
			if s.Kind != SectionHistory {
				continue
			}
			if idx < 0 || s.Score < c.Sections[idx].Score {
				idx = i
			}
		}
		if idx < 0 {
			return
		}
		c.Sections = append(c.Sections[:idx], c.Sections[idx+1:]...)
		if security.ContextSectionsDroppedTotal != nil {
			security.ContextSectionsDroppedTotal.Inc()
		}
	}
}

func size(sections []Section) int {
	total := 0
	for _, s := range sections {
		total += len(s.Title) + len(s.Body)
	}
	return total
}

func renderWindow(window []model.Message) string {
	var b strings.Builder
	for i, m := range window {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("User: ")
		b.WriteString(m.UserText)
		b.WriteString("\nAssistant: ")
		b.WriteString(m.AssistantText)
	}
	return b.String()
}
