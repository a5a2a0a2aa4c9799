package auth

import (
	"testing"
	"worldkeeper/worldkeeper/schema"

	"github.com/stretchr/testify/assert"
)

func TestWorldRoleChecks(t *testing.T) {
	assert.False(t, WorldRoles{}.CanAccessWorld())
	assert.True(t, WorldRoles{Player: true}.CanAccessWorld())
	assert.True(t, WorldRoles{CharacterCreator: true}.CanAccessWorld())
	assert.True(t, WorldRoles{CampaignCreator: true}.CanAccessWorld())

	assert.True(t, WorldRoles{WorldGameMaster: true}.AnyGm())
	assert.True(t, WorldRoles{CampaignGm: true}.AnyGm())
	assert.False(t, WorldRoles{Player: true}.AnyGm())

	assert.False(t, WorldRoles{Player: true}.CanManageRecords())
	assert.True(t, WorldRoles{CampaignGm: true}.CanManageRecords())
	assert.True(t, WorldRoles{Architect: true}.CanManageRecords())
}

func TestCanCreateRecords(t *testing.T) {
	cases := []struct {
		name    string
		roles   WorldRoles
		scope   string
		allowed bool
	}{
		{"architect under architect scope", WorldRoles{Architect: true}, schema.ArchitectOnly, true},
		{"admin ignores scope", WorldRoles{IsAdmin: true}, schema.ArchitectOnly, true},
		{"gm under architect scope", WorldRoles{CampaignGm: true}, schema.ArchitectOnly, false},
		{"gm under gm scope", WorldRoles{CampaignGm: true}, schema.ArchitectGm, true},
		{"world gm under gm scope", WorldRoles{WorldGameMaster: true}, schema.ArchitectGm, true},
		{"player under gm scope", WorldRoles{Player: true}, schema.ArchitectGm, false},
		{"player under player scope", WorldRoles{Player: true}, schema.ArchitectGmPlayer, true},
		{"outsider under player scope", WorldRoles{}, schema.ArchitectGmPlayer, false},
		{"unknown scope denies", WorldRoles{Player: true, CampaignGm: true}, "EVERYONE", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.allowed, c.roles.CanCreateRecords(c.scope))
		})
	}
}
