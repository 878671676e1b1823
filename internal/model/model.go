package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an actor's role within the organization hierarchy.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleTeamLead   Role = "team_lead"
	RoleMember     Role = "member"
)

// Known returns true if the role is one of the recognized roles.
func (r Role) Known() bool {
	switch r {
	case RoleSuperAdmin, RoleTeamLead, RoleMember:
		return true
	default:
		return false
	}
}

// SharingLevel represents the visibility flag of a conversation record.
type SharingLevel string

const (
	SharingPrivate      SharingLevel = "private"
	SharingOrganization SharingLevel = "organization"
)

// Valid returns true if the sharing level is one of the recognized levels.
func (s SharingLevel) Valid() bool {
	return s == SharingPrivate || s == SharingOrganization
}

// Organization is a top-level tenant boundary. Records never leak across it.
type Organization struct {
	ID        string    `json:"id"        gorm:"primaryKey"`
	Name      string    `json:"name"      gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

func (Organization) TableName() string { return "organizations" }

// Team is a group of actors within an organization.
type Team struct {
	ID             string    `json:"id"                    gorm:"primaryKey"`
	OrganizationID string    `json:"organizationId"        gorm:"not null;index"`
	Name           string    `json:"name"                  gorm:"not null"`
	LeadActorID    *string   `json:"leadActorId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"             gorm:"not null;default:now()"`
}

func (Team) TableName() string { return "teams" }

// Actor is a user of the system. At most one actor system-wide may hold
// RoleSuperAdmin; the store enforces this with a partial unique index.
type Actor struct {
	ID             string    `json:"id"             gorm:"primaryKey"`
	OrganizationID string    `json:"organizationId" gorm:"not null;index"`
	TeamID         string    `json:"teamId"`
	Role           Role      `json:"role"           gorm:"not null;default:'member'"`
	CreatedAt      time.Time `json:"createdAt"      gorm:"not null;default:now()"`
}

func (Actor) TableName() string { return "actors" }

// Message is a single user/assistant exchange within a chat. The sliding
// window of a chat is its most recent messages in chronological order.
type Message struct {
	ID             uuid.UUID `json:"id"             gorm:"primaryKey;type:uuid"`
	ChatID         string    `json:"chatId"         gorm:"not null;index"`
	ActorID        string    `json:"actorId"        gorm:"not null"`
	OrganizationID string    `json:"organizationId" gorm:"not null"`
	TeamID         string    `json:"teamId"`
	UserText       string    `json:"userText"       gorm:"not null"`
	AssistantText  string    `json:"assistantText"  gorm:"not null"`
	CreatedAt      time.Time `json:"createdAt"      gorm:"not null;default:now()"`
}

func (Message) TableName() string { return "messages" }

// ConversationRecord is the durable summary of a completed conversation.
// One record exists per chat. SharingLevel is the only field that changes
// after creation; the embedding, once written, is never recomputed in place.
type ConversationRecord struct {
	ID             uuid.UUID              `json:"id"                 gorm:"primaryKey;type:uuid"`
	ChatID         string                 `json:"chatId"             gorm:"not null;uniqueIndex"`
	ActorID        string                 `json:"actorId"            gorm:"not null;index"`
	OrganizationID string                 `json:"organizationId"     gorm:"not null;index"`
	TeamID         string                 `json:"teamId"`
	Summary        string                 `json:"summary"            gorm:"not null"`
	SharingLevel   SharingLevel           `json:"sharingLevel"       gorm:"not null;default:'private'"`
	SharedAt       *time.Time             `json:"sharedAt,omitempty"`
	Metadata       map[string]interface{} `json:"metadata"           gorm:"type:jsonb;serializer:json;not null;default:'{}'"`
	EmbeddedAt     *time.Time             `json:"embeddedAt,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"          gorm:"not null;default:now()"`
}

func (ConversationRecord) TableName() string { return "conversation_records" }

// Profile holds compressed long-term facts about an actor. It is mutated
// incrementally by set union, never rebuilt wholesale from history.
type Profile struct {
	ActorID          string            `json:"actorId"          gorm:"primaryKey"`
	Preferences      map[string]string `json:"preferences"      gorm:"type:jsonb;serializer:json;not null;default:'{}'"`
	ImportantFacts   []string          `json:"importantFacts"   gorm:"type:jsonb;serializer:json;not null;default:'[]'"`
	TopicsOfInterest []string          `json:"topicsOfInterest" gorm:"type:jsonb;serializer:json;not null;default:'[]'"`
	CreatedAt        time.Time         `json:"createdAt"        gorm:"not null;default:now()"`
	UpdatedAt        time.Time         `json:"updatedAt"        gorm:"not null;default:now()"`
}

func (Profile) TableName() string { return "profiles" }

// ProfileDelta is the partial profile extracted from a single conversation
// summary. Merging a delta is idempotent: re-applying the same delta does
// not duplicate facts or topics.
type ProfileDelta struct {
	Facts       []string          `json:"new_facts"`
	Preferences map[string]string `json:"new_preferences"`
	Topics      []string          `json:"new_topics"`
}

// Empty returns true if the delta carries nothing to merge.
func (d ProfileDelta) Empty() bool {
	return len(d.Facts) == 0 && len(d.Preferences) == 0 && len(d.Topics) == 0
}
