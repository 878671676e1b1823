package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yanthraa/chat-memory/internal/model"
	"github.com/yanthraa/chat-memory/internal/scope"
)

// SearchResult represents a single vector search result.
type SearchResult struct {
	RecordID uuid.UUID `json:"recordId"`
	ChatID   string    `json:"chatId"`
	Score    float64   `json:"score"`
}

// SearchRequest describes a scoped nearest-neighbor query. The scope filter
// and the active-chat exclusion are applied inside the backend so large
// candidate sets are pruned before ranking.
type SearchRequest struct {
	Embedding     []float32
	Scope         scope.Scope
	ExcludeChatID string
	Limit         int
}

// UpsertRequest holds the data for a single record embedding upsert.
type UpsertRequest struct {
	RecordID       uuid.UUID
	ChatID         string
	ActorID        string
	OrganizationID string
	TeamID         string
	SharingLevel   model.SharingLevel
	Embedding      []float32
	ModelName      string
}

// VectorStore defines the interface for vector search backends.
type VectorStore interface {
	// Search performs a scoped semantic vector search ordered by distance.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
	// Upsert stores or updates embeddings for a batch of records.
	Upsert(ctx context.Context, records []UpsertRequest) error
	// SetSharingLevel propagates a sharing transition to the backend's
	// native filter state. Backends that filter against the live record
	// store may treat this as a no-op.
	SetSharingLevel(ctx context.Context, recordID uuid.UUID, level model.SharingLevel) error
	// DeleteByRecordID removes the embedding for a record.
	DeleteByRecordID(ctx context.Context, recordID uuid.UUID) error
	// IsEnabled returns true if the vector store is configured and operational.
	IsEnabled() bool
	// Name returns the plugin name (e.g. "qdrant", "pgvector").
	Name() string
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
