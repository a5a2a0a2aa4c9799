package tests

import (
	"testing"
	"worldkeeper/worldkeeper/services"
)

// worldFixture is the standard cast for the access tests: a world owned by
// an architect, one campaign run by a dedicated game master, and one
// character owned by a separate player. The outsider has no relationship to
// the world at all.
type worldFixture struct {
	admin     *client
	architect *client
	gm        *client
	player    *client
	outsider  *client

	worldId     string
	campaignId  string
	characterId string
}

func setupWorld(t *testing.T, env *testEnv, permissionScope string) *worldFixture {
	t.Helper()

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	architect, err := env.newUser("architect")
	if err != nil {
		t.Fatal(err)
	}
	gm, err := env.newUser("gamemaster")
	if err != nil {
		t.Fatal(err)
	}
	player, err := env.newUser("player")
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := env.newUser("outsider")
	if err != nil {
		t.Fatal(err)
	}

	world, err := architect.createWorld("eldermark", permissionScope)
	if err != nil {
		t.Fatal(err)
	}

	campaign, err := architect.createCampaign(world.WorldId.String(), "rise of the lich queen", gm.userId)
	if err != nil {
		t.Fatal(err)
	}

	character, err := architect.createCharacter(world.WorldId.String(), "kira thornweave", player.userId)
	if err != nil {
		t.Fatal(err)
	}

	if err := gm.joinCampaign(campaign.CampaignId.String(), character.CharacterId.String()); err != nil {
		t.Fatal(err)
	}

	return &worldFixture{
		admin:       admin,
		architect:   architect,
		gm:          gm,
		player:      player,
		outsider:    outsider,
		worldId:     world.WorldId.String(),
		campaignId:  campaign.CampaignId.String(),
		characterId: character.CharacterId.String(),
	}
}

// npcType creates an entity type with one field of each common value shape.
func (f *worldFixture) npcType(t *testing.T) services.EntityTypeInfo {
	t.Helper()

	npc, err := f.architect.createEntityType(f.worldId, "npc")
	if err != nil {
		t.Fatal(err)
	}

	fieldSpecs := []map[string]interface{}{
		{"fieldKey": "title", "label": "Title", "fieldType": "TEXT"},
		{"fieldKey": "bio", "label": "Biography", "fieldType": "TEXTAREA"},
		{"fieldKey": "hostile", "label": "Hostile", "fieldType": "BOOLEAN"},
		{"fieldKey": "age", "label": "Age", "fieldType": "NUMBER"},
		{"fieldKey": "rank", "label": "Rank", "fieldType": "CHOICE", "choices": []map[string]interface{}{
			{"value": "captain", "label": "Captain"},
			{"value": "sergeant", "label": "Sergeant"},
		}},
	}
	for _, spec := range fieldSpecs {
		if _, err := f.architect.addField(npc.EntityTypeId.String(), spec); err != nil {
			t.Fatal(err)
		}
	}

	full, err := f.architect.getEntityType(npc.EntityTypeId.String())
	if err != nil {
		t.Fatal(err)
	}
	return full
}
