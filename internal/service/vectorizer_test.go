package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanthraa/chat-memory/internal/model"
	"github.com/yanthraa/chat-memory/internal/registry/store/storetest"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"
)

type fakeVectors struct {
	upserts []registryvector.UpsertRequest
	err     error
}

func (f *fakeVectors) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	return nil, nil
}

func (f *fakeVectors) Upsert(ctx context.Context, records []registryvector.UpsertRequest) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, records...)
	return nil
}

func (f *fakeVectors) SetSharingLevel(ctx context.Context, recordID uuid.UUID, level model.SharingLevel) error {
	return nil
}

func (f *fakeVectors) DeleteByRecordID(ctx context.Context, recordID uuid.UUID) error { return nil }

func (f *fakeVectors) IsEnabled() bool { return true }

func (f *fakeVectors) Name() string { return "fake" }

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fakeEmbedder) ModelName() string { return "fake" }

func (fakeEmbedder) Dimension() int { return 3 }

func TestEmbedBatch_EmbedsPendingRecords(t *testing.T) {
	store := storetest.New()
	rec := store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", TeamID: "t1",
		SharingLevel: model.SharingOrganization, Summary: "summary",
	})
	vectors := &fakeVectors{}
	v := NewVectorizer(store, fakeEmbedder{}, vectors, 10, time.Second)

	v.embedBatch(context.Background())

	require.Len(t, vectors.upserts, 1)
	up := vectors.upserts[0]
	require.Equal(t, rec.ID, up.RecordID)
	require.Equal(t, "chat-1", up.ChatID)
	require.Equal(t, "member123", up.ActorID)
	require.Equal(t, model.SharingOrganization, up.SharingLevel)
	require.Equal(t, "fake", up.ModelName)

	pending, err := store.FindRecordsPendingEmbedding(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestEmbedBatch_NothingPendingIsNoop(t *testing.T) {
	vectors := &fakeVectors{}
	v := NewVectorizer(storetest.New(), fakeEmbedder{}, vectors, 10, time.Second)

	v.embedBatch(context.Background())

	require.Empty(t, vectors.upserts)
}

func TestEmbedBatch_UpsertFailureLeavesRecordsPending(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "summary",
	})
	vectors := &fakeVectors{err: fmt.Errorf("qdrant unavailable")}
	v := NewVectorizer(store, fakeEmbedder{}, vectors, 10, time.Second)

	v.embedBatch(context.Background())

	pending, err := store.FindRecordsPendingEmbedding(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestNewVectorizer_AppliesDefaults(t *testing.T) {
	v := NewVectorizer(storetest.New(), nil, nil, 0, 0)
	require.Equal(t, 200, v.batch)
	require.Equal(t, 30*time.Second, v.interval)
}
