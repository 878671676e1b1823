// Package storetest provides an in-memory MemoryStore for unit tests. It
// implements the same contract the postgres store does, including the single
// super_admin slot, the one-record-per-chat rule, and sharing transitions.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yanthraa/chat-memory/internal/model"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
)

// Fake is an in-memory MemoryStore.
type Fake struct {
	mu       sync.Mutex
	actors   map[string]model.Actor
	orgs     map[string]model.Organization
	teams    map[string]model.Team
	messages []model.Message
	records  map[string]model.ConversationRecord // keyed by chat ID
	profiles map[string]model.Profile
}

// New creates an empty fake store.
func New() *Fake {
	return &Fake{
		actors:   map[string]model.Actor{},
		orgs:     map[string]model.Organization{},
		teams:    map[string]model.Team{},
		records:  map[string]model.ConversationRecord{},
		profiles: map[string]model.Profile{},
	}
}

func (f *Fake) EnsureActor(ctx context.Context, actor model.Actor) (model.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.actors[actor.ID]; ok {
		return existing, nil
	}
	if !actor.Role.Known() {
		actor.Role = model.RoleMember
	}
	if actor.Role == model.RoleSuperAdmin {
		for _, a := range f.actors {
			if a.Role == model.RoleSuperAdmin {
				return model.Actor{}, &registrystore.ConflictError{
					Message: "a super_admin already exists",
					Code:    "duplicate_super_admin",
				}
			}
		}
	}
	if actor.OrganizationID != "" {
		if _, ok := f.orgs[actor.OrganizationID]; !ok {
			f.orgs[actor.OrganizationID] = model.Organization{ID: actor.OrganizationID, Name: actor.OrganizationID, CreatedAt: time.Now()}
		}
	}
	if actor.TeamID != "" {
		if _, ok := f.teams[actor.TeamID]; !ok {
			f.teams[actor.TeamID] = model.Team{ID: actor.TeamID, OrganizationID: actor.OrganizationID, Name: actor.TeamID, CreatedAt: time.Now()}
		}
	}
	actor.CreatedAt = time.Now()
	f.actors[actor.ID] = actor
	return actor, nil
}

func (f *Fake) GetActor(ctx context.Context, actorID string) (model.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	actor, ok := f.actors[actorID]
	if !ok {
		return model.Actor{}, &registrystore.NotFoundError{Resource: "actor", ID: actorID}
	}
	return actor, nil
}

func (f *Fake) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Organization, 0, len(f.orgs))
	for _, o := range f.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) ListTeams(ctx context.Context, organizationID string) ([]model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Team
	for _, t := range f.teams {
		if t.OrganizationID == organizationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) ListActors(ctx context.Context, organizationID string) ([]model.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Actor
	for _, a := range f.actors {
		if a.OrganizationID == organizationID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) AppendMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *Fake) RecentMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *Fake) CreateConversationRecord(ctx context.Context, rec model.ConversationRecord) (model.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.records[rec.ChatID]; ok {
		return model.ConversationRecord{}, &registrystore.ConflictError{
			Message: "a conversation record for this chat already exists",
			Code:    "duplicate_record",
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.SharingLevel == "" {
		rec.SharingLevel = model.SharingPrivate
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	f.records[rec.ChatID] = rec
	return rec, nil
}

func (f *Fake) GetConversationRecordByChatID(ctx context.Context, chatID string) (model.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[chatID]
	if !ok {
		return model.ConversationRecord{}, &registrystore.NotFoundError{Resource: "conversation record", ID: chatID}
	}
	return rec, nil
}

func (f *Fake) GetConversationRecords(ctx context.Context, ids []uuid.UUID) ([]model.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.ConversationRecord
	for _, rec := range f.records {
		if want[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *Fake) ListRecordsForActor(ctx context.Context, actorID string) ([]model.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.ConversationRecord
	for _, rec := range f.records {
		if rec.ActorID == actorID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) SetSharingLevel(ctx context.Context, chatID string, actor model.Actor, level model.SharingLevel) (model.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[chatID]
	if !ok {
		return model.ConversationRecord{}, &registrystore.NotFoundError{Resource: "conversation record", ID: chatID}
	}
	if rec.ActorID != actor.ID && actor.Role != model.RoleSuperAdmin {
		return model.ConversationRecord{}, &registrystore.ForbiddenError{}
	}
	if rec.SharingLevel == level {
		return rec, nil
	}
	rec.SharingLevel = level
	if level == model.SharingOrganization {
		now := time.Now()
		rec.SharedAt = &now
	} else {
		rec.SharedAt = nil
	}
	f.records[chatID] = rec
	return rec, nil
}

func (f *Fake) FindRecordsPendingEmbedding(ctx context.Context, limit int) ([]model.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.ConversationRecord
	for _, rec := range f.records {
		if rec.EmbeddedAt == nil {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) SetEmbeddedAt(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for chatID, rec := range f.records {
		if want[rec.ID] {
			t := at
			rec.EmbeddedAt = &t
			f.records[chatID] = rec
		}
	}
	return nil
}

func (f *Fake) GetProfile(ctx context.Context, actorID string) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.profiles[actorID]
	if !ok {
		return model.Profile{}, &registrystore.NotFoundError{Resource: "profile", ID: actorID}
	}
	return p, nil
}

func (f *Fake) MergeProfileDelta(ctx context.Context, actorID string, delta model.ProfileDelta) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.profiles[actorID]
	if !ok {
		p = model.Profile{
			ActorID:     actorID,
			Preferences: map[string]string{},
			CreatedAt:   time.Now(),
		}
	}
	p.ImportantFacts = union(p.ImportantFacts, delta.Facts)
	p.TopicsOfInterest = union(p.TopicsOfInterest, delta.Topics)
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
	for k, v := range delta.Preferences {
		p.Preferences[k] = v
	}
	p.UpdatedAt = time.Now()
	f.profiles[actorID] = p
	return p, nil
}

func (f *Fake) Ping(ctx context.Context) error { return nil }

func (f *Fake) Close() error { return nil }

// SeedRecord inserts a record directly, bypassing creation-time defaults.
func (f *Fake) SeedRecord(rec model.ConversationRecord) model.ConversationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.SharingLevel == "" {
		rec.SharingLevel = model.SharingPrivate
	}
	f.records[rec.ChatID] = rec
	return rec
}

func union(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range add {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

var _ registrystore.MemoryStore = (*Fake)(nil)
