package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanthraa/chat-memory/internal/model"
	"github.com/yanthraa/chat-memory/internal/registry/store"
	"github.com/yanthraa/chat-memory/internal/security"
)

// Wrap returns a MemoryStore that records StoreLatency for every operation.
func Wrap(inner store.MemoryStore) store.MemoryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MemoryStore
}

func observe(op string, start time.Time) {
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) EnsureActor(ctx context.Context, actor model.Actor) (model.Actor, error) {
	defer observe("ensure_actor", time.Now())
	return m.inner.EnsureActor(ctx, actor)
}

func (m *metricsStore) GetActor(ctx context.Context, actorID string) (model.Actor, error) {
	defer observe("get_actor", time.Now())
	return m.inner.GetActor(ctx, actorID)
}

func (m *metricsStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	defer observe("list_organizations", time.Now())
	return m.inner.ListOrganizations(ctx)
}

func (m *metricsStore) ListTeams(ctx context.Context, organizationID string) ([]model.Team, error) {
	defer observe("list_teams", time.Now())
	return m.inner.ListTeams(ctx, organizationID)
}

func (m *metricsStore) ListActors(ctx context.Context, organizationID string) ([]model.Actor, error) {
	defer observe("list_actors", time.Now())
	return m.inner.ListActors(ctx, organizationID)
}

func (m *metricsStore) AppendMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	defer observe("append_message", time.Now())
	return m.inner.AppendMessage(ctx, msg)
}

func (m *metricsStore) RecentMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	defer observe("recent_messages", time.Now())
	return m.inner.RecentMessages(ctx, chatID, limit)
}

func (m *metricsStore) CreateConversationRecord(ctx context.Context, rec model.ConversationRecord) (model.ConversationRecord, error) {
	defer observe("create_conversation_record", time.Now())
	return m.inner.CreateConversationRecord(ctx, rec)
}

func (m *metricsStore) GetConversationRecordByChatID(ctx context.Context, chatID string) (model.ConversationRecord, error) {
	defer observe("get_conversation_record", time.Now())
	return m.inner.GetConversationRecordByChatID(ctx, chatID)
}

func (m *metricsStore) GetConversationRecords(ctx context.Context, ids []uuid.UUID) ([]model.ConversationRecord, error) {
	defer observe("get_conversation_records", time.Now())
	return m.inner.GetConversationRecords(ctx, ids)
}

func (m *metricsStore) ListRecordsForActor(ctx context.Context, actorID string) ([]model.ConversationRecord, error) {
	defer observe("list_records_for_actor", time.Now())
	return m.inner.ListRecordsForActor(ctx, actorID)
}

func (m *metricsStore) SetSharingLevel(ctx context.Context, chatID string, actor model.Actor, level model.SharingLevel) (model.ConversationRecord, error) {
	defer observe("set_sharing_level", time.Now())
	return m.inner.SetSharingLevel(ctx, chatID, actor, level)
}

func (m *metricsStore) FindRecordsPendingEmbedding(ctx context.Context, limit int) ([]model.ConversationRecord, error) {
	defer observe("find_records_pending_embedding", time.Now())
	return m.inner.FindRecordsPendingEmbedding(ctx, limit)
}

func (m *metricsStore) SetEmbeddedAt(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	defer observe("set_embedded_at", time.Now())
	return m.inner.SetEmbeddedAt(ctx, ids, at)
}

func (m *metricsStore) GetProfile(ctx context.Context, actorID string) (model.Profile, error) {
	defer observe("get_profile", time.Now())
	return m.inner.GetProfile(ctx, actorID)
}

func (m *metricsStore) MergeProfileDelta(ctx context.Context, actorID string, delta model.ProfileDelta) (model.Profile, error) {
	defer observe("merge_profile_delta", time.Now())
	return m.inner.MergeProfileDelta(ctx, actorID, delta)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}

var _ store.MemoryStore = (*metricsStore)(nil)
