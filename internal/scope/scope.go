// Package scope maps an actor to the visibility predicate that governs which
// conversation records may ever surface for that actor. The predicate is
// purely structural: it never inspects query content, and store plugins
// translate it into native filters so candidates are pruned before ranking.
package scope

import (
	"github.com/charmbracelet/log"
	"github.com/yanthraa/chat-memory/internal/model"
)

// Kind is the closed set of predicate variants, one per role.
type Kind int

const (
	// KindNone matches no records. Produced for actors whose hierarchy
	// placement is incomplete.
	KindNone Kind = iota
	// KindMember matches own records plus organization-shared records of
	// others in the same organization.
	KindMember
	// KindTeamLead matches own records, all same-team records regardless of
	// sharing level, and organization-shared records from other teams.
	KindTeamLead
	// KindAll matches every record, including private records in other
	// organizations.
	KindAll
)

// Scope is an actor's visibility predicate over conversation records.
type Scope struct {
	Kind           Kind
	ActorID        string
	OrganizationID string
	TeamID         string
}

// ForActor resolves the visibility scope for an actor. An unrecognized role
// is treated as member (fail-safe, least privilege) and logged. Actors with
// an incomplete hierarchy placement get an empty scope rather than an error.
func ForActor(actor model.Actor) Scope {
	role := actor.Role
	if !role.Known() {
		log.Warn("Unknown actor role, defaulting to member scope", "actorId", actor.ID, "role", role)
		role = model.RoleMember
	}

	switch role {
	case model.RoleSuperAdmin:
		return Scope{Kind: KindAll, ActorID: actor.ID}
	case model.RoleTeamLead:
		if actor.OrganizationID == "" || actor.TeamID == "" {
			log.Warn("Team lead without organization or team, scope is empty", "actorId", actor.ID)
			return Scope{Kind: KindNone, ActorID: actor.ID}
		}
		return Scope{
			Kind:           KindTeamLead,
			ActorID:        actor.ID,
			OrganizationID: actor.OrganizationID,
			TeamID:         actor.TeamID,
		}
	default:
		if actor.OrganizationID == "" {
			log.Warn("Member without organization, scope is empty", "actorId", actor.ID)
			return Scope{Kind: KindNone, ActorID: actor.ID}
		}
		return Scope{
			Kind:           KindMember,
			ActorID:        actor.ID,
			OrganizationID: actor.OrganizationID,
			TeamID:         actor.TeamID,
		}
	}
}

// Allows reports whether the scope admits the given record. This is the
// reference predicate; store plugins must filter to exactly this set.
func (s Scope) Allows(rec model.ConversationRecord) bool {
	switch s.Kind {
	case KindAll:
		return true
	case KindTeamLead:
		if rec.ActorID == s.ActorID {
			return true
		}
		if rec.OrganizationID != s.OrganizationID {
			return false
		}
		if rec.TeamID == s.TeamID {
			return true
		}
		return rec.SharingLevel == model.SharingOrganization
	case KindMember:
		if rec.ActorID == s.ActorID {
			return true
		}
		return rec.OrganizationID == s.OrganizationID &&
			rec.SharingLevel == model.SharingOrganization
	default:
		return false
	}
}

// Empty returns true if the scope admits no records.
func (s Scope) Empty() bool {
	return s.Kind == KindNone
}
