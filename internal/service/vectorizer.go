package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	registryembed "github.com/yanthraa/chat-memory/internal/registry/embed"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"
)

// Vectorizer polls for conversation records without embeddings, embeds their
// summaries, and upserts them into the vector store. It also backstops the
// inline embedding done at chat completion time.
type Vectorizer struct {
	store    registrystore.MemoryStore
	embedder registryembed.Embedder
	vector   registryvector.VectorStore
	interval time.Duration
	batch    int
}

// NewVectorizer creates a new vectorizer.
func NewVectorizer(store registrystore.MemoryStore, embedder registryembed.Embedder, vector registryvector.VectorStore, batchSize int, interval time.Duration) *Vectorizer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Vectorizer{
		store:    store,
		embedder: embedder,
		vector:   vector,
		interval: interval,
		batch:    batchSize,
	}
}

// Start begins the embedding loop. Returns when ctx is cancelled.
func (v *Vectorizer) Start(ctx context.Context) {
	if v.embedder == nil || v.vector == nil || !v.vector.IsEnabled() {
		log.Info("Vectorizer disabled (no embedder or vector store)")
		return
	}

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.embedBatch(ctx)
		}
	}
}

func (v *Vectorizer) embedBatch(ctx context.Context) {
	records, err := v.store.FindRecordsPendingEmbedding(ctx, v.batch)
	if err != nil {
		log.Error("Vectorizer: list pending records failed", "err", err)
		return
	}
	if len(records) == 0 {
		return
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Summary
	}
	embeddings, err := v.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		log.Error("Vectorizer: batch embed failed", "err", err)
		return
	}

	upserts := make([]registryvector.UpsertRequest, len(records))
	for i, r := range records {
		upserts[i] = registryvector.UpsertRequest{
			RecordID:       r.ID,
			ChatID:         r.ChatID,
			ActorID:        r.ActorID,
			OrganizationID: r.OrganizationID,
			TeamID:         r.TeamID,
			SharingLevel:   r.SharingLevel,
			Embedding:      embeddings[i],
			ModelName:      v.embedder.ModelName(),
		}
	}
	if err := v.vector.Upsert(ctx, upserts); err != nil {
		log.Error("Vectorizer: batch vector upsert failed", "err", err)
		return
	}

	ids := make([]uuid.UUID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := v.store.SetEmbeddedAt(ctx, ids, time.Now()); err != nil {
		log.Error("Vectorizer: set embedded_at failed", "err", err)
		return
	}

	log.Info("Vectorizer: embedded records", "count", len(records))
}
