package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanthraa/chat-memory/internal/model"
)

func record(actorID, orgID, teamID string, sharing model.SharingLevel) model.ConversationRecord {
	return model.ConversationRecord{
		ActorID:        actorID,
		OrganizationID: orgID,
		TeamID:         teamID,
		SharingLevel:   sharing,
	}
}

func TestForActor_SuperAdmin(t *testing.T) {
	s := ForActor(model.Actor{ID: "root", Role: model.RoleSuperAdmin})
	require.Equal(t, KindAll, s.Kind)
	require.True(t, s.Allows(record("someone", "other-org", "t9", model.SharingPrivate)))
}

func TestForActor_UnknownRoleDefaultsToMember(t *testing.T) {
	s := ForActor(model.Actor{ID: "m1", Role: model.Role("auditor"), OrganizationID: "acme", TeamID: "t1"})
	require.Equal(t, KindMember, s.Kind)
	require.False(t, s.Allows(record("other", "acme", "t1", model.SharingPrivate)))
}

func TestForActor_IncompletePlacementIsEmpty(t *testing.T) {
	t.Run("member without organization", func(t *testing.T) {
		s := ForActor(model.Actor{ID: "m1", Role: model.RoleMember})
		require.True(t, s.Empty())
		require.False(t, s.Allows(record("m1", "", "", model.SharingPrivate)))
	})

	t.Run("team lead without team", func(t *testing.T) {
		s := ForActor(model.Actor{ID: "lead1", Role: model.RoleTeamLead, OrganizationID: "acme"})
		require.True(t, s.Empty())
	})
}

func TestMemberScope(t *testing.T) {
	s := ForActor(model.Actor{ID: "member123", Role: model.RoleMember, OrganizationID: "acme", TeamID: "t1"})

	cases := []struct {
		name string
		rec  model.ConversationRecord
		want bool
	}{
		{"own private record", record("member123", "acme", "t1", model.SharingPrivate), true},
		{"own shared record", record("member123", "acme", "t1", model.SharingOrganization), true},
		{"peer shared record", record("member999", "acme", "t2", model.SharingOrganization), true},
		{"peer private record", record("member999", "acme", "t1", model.SharingPrivate), false},
		{"other org shared record", record("stranger", "globex", "t1", model.SharingOrganization), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, s.Allows(tc.rec))
		})
	}
}

func TestTeamLeadScope(t *testing.T) {
	s := ForActor(model.Actor{ID: "lead1", Role: model.RoleTeamLead, OrganizationID: "acme", TeamID: "t1"})

	cases := []struct {
		name string
		rec  model.ConversationRecord
		want bool
	}{
		{"own private record", record("lead1", "acme", "t1", model.SharingPrivate), true},
		{"team member private record", record("member123", "acme", "t1", model.SharingPrivate), true},
		{"other team shared record", record("member999", "acme", "t2", model.SharingOrganization), true},
		{"other team private record", record("member999", "acme", "t2", model.SharingPrivate), false},
		{"same team id in another org", record("stranger", "globex", "t1", model.SharingPrivate), false},
		{"other org shared record", record("stranger", "globex", "t2", model.SharingOrganization), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, s.Allows(tc.rec))
		})
	}
}
