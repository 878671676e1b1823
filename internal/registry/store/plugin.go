package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yanthraa/chat-memory/internal/model"
)

// MemoryStore defines the interface for datastore backends.
type MemoryStore interface {
	// EnsureActor fetches the actor, creating it (and its organization and
	// team rows) on first sight. A second super_admin is rejected with a
	// ConflictError, never silently downgraded.
	EnsureActor(ctx context.Context, actor model.Actor) (model.Actor, error)
	// GetActor looks up an actor by ID.
	GetActor(ctx context.Context, actorID string) (model.Actor, error)

	// ListOrganizations returns all organizations.
	ListOrganizations(ctx context.Context) ([]model.Organization, error)
	// ListTeams returns the teams of an organization.
	ListTeams(ctx context.Context, organizationID string) ([]model.Team, error)
	// ListActors returns the actors of an organization.
	ListActors(ctx context.Context, organizationID string) ([]model.Actor, error)

	// AppendMessage stores one user/assistant exchange.
	AppendMessage(ctx context.Context, msg model.Message) (model.Message, error)
	// RecentMessages returns the last limit messages of a chat in
	// chronological order.
	RecentMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error)

	// CreateConversationRecord stores the summary of a completed chat.
	// A duplicate chat ID is a ConflictError.
	CreateConversationRecord(ctx context.Context, rec model.ConversationRecord) (model.ConversationRecord, error)
	// GetConversationRecordByChatID looks up the record for a chat.
	GetConversationRecordByChatID(ctx context.Context, chatID string) (model.ConversationRecord, error)
	// GetConversationRecords fetches records by ID, preserving no particular order.
	GetConversationRecords(ctx context.Context, ids []uuid.UUID) ([]model.ConversationRecord, error)
	// ListRecordsForActor returns all records owned by an actor, newest first.
	ListRecordsForActor(ctx context.Context, actorID string) ([]model.ConversationRecord, error)
	// SetSharingLevel transitions a record between private and organization
	// visibility. Only the owner or a super_admin may transition; setting the
	// current level is a no-op success. Transitioning to organization stamps
	// SharedAt; transitioning to private clears it.
	SetSharingLevel(ctx context.Context, chatID string, actor model.Actor, level model.SharingLevel) (model.ConversationRecord, error)
	// FindRecordsPendingEmbedding returns records with no embedding yet.
	FindRecordsPendingEmbedding(ctx context.Context, limit int) ([]model.ConversationRecord, error)
	// SetEmbeddedAt marks records as embedded.
	SetEmbeddedAt(ctx context.Context, ids []uuid.UUID, at time.Time) error

	// GetProfile returns the profile of an actor. NotFoundError if the actor
	// has no profile yet.
	GetProfile(ctx context.Context, actorID string) (model.Profile, error)
	// MergeProfileDelta unions the delta into the actor's profile, creating
	// the profile lazily on first merge. Merging is idempotent.
	MergeProfileDelta(ctx context.Context, actorID string, delta model.ProfileDelta) (model.Profile, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// Loader creates a MemoryStore from config.
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a datastore plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a datastore plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered datastore plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named datastore plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown datastore %q; valid: %v", name, Names())
}
