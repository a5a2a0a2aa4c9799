package tests

import (
	"net/http"
	"testing"
	"worldkeeper/worldkeeper/schema"
)

func TestCampaignCreateAndManage(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	if _, err := fixture.player.createCampaign(fixture.worldId, "forbidden quest", ""); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player campaign creation, got %v", err)
	}

	// Running one campaign grants GM standing for opening another.
	second, err := fixture.gm.createCampaign(fixture.worldId, "the sunken crypt", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.GameMasterId.String() != fixture.gm.userId {
		t.Fatal("game master should default to the caller")
	}

	campaigns, err := fixture.player.listCampaigns(fixture.worldId)
	if err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(campaigns))
	}

	// A GM may only manage their own campaigns.
	other, err := env.newUser("othergm")
	if err != nil {
		t.Fatal(err)
	}
	if err := fixture.architect.addGameMaster(fixture.worldId, other.userId); err != nil {
		t.Fatal(err)
	}
	if _, err := other.createCampaign(fixture.worldId, "border skirmish", ""); err != nil {
		t.Fatal(err)
	}
	if err := other.deleteCampaign(second.CampaignId.String()); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden deleting another GM's campaign, got %v", err)
	}
	if err := fixture.gm.deleteCampaign(second.CampaignId.String()); err != nil {
		t.Fatal(err)
	}
}

func TestCampaignMembership(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	// The fixture character already joined through the GM.
	campaign, err := fixture.gm.getCampaign(fixture.campaignId)
	if err != nil {
		t.Fatal(err)
	}
	if len(campaign.Characters) != 1 || campaign.Characters[0].Status != schema.MembershipActive {
		t.Fatalf("unexpected membership list %v", campaign.Characters)
	}

	// Players may move their own characters in and out.
	if err := fixture.player.leaveCampaign(fixture.campaignId, fixture.characterId); err != nil {
		t.Fatal(err)
	}
	if err := fixture.player.joinCampaign(fixture.campaignId, fixture.characterId); err != nil {
		t.Fatal(err)
	}

	// But not characters belonging to someone else.
	rival, err := env.newUser("rival")
	if err != nil {
		t.Fatal(err)
	}
	rivalCharacter, err := fixture.gm.createCharacter(fixture.worldId, "grom", rival.userId)
	if err != nil {
		t.Fatal(err)
	}
	if err := fixture.player.joinCampaign(fixture.campaignId, rivalCharacter.CharacterId.String()); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden joining another player's character, got %v", err)
	}

	// Characters cannot cross world boundaries.
	otherWorld, err := fixture.architect.createWorld("shadowfell", "")
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := fixture.architect.createCharacter(otherWorld.WorldId.String(), "wraith", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := fixture.architect.joinCampaign(fixture.campaignId, foreign.CharacterId.String()); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for cross-world join, got %v", err)
	}
}

func TestCampaignDeleteRemovesScopedGrants(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, schema.ArchitectGmPlayer)
	npc := fixture.npcType(t)

	entity, err := fixture.gm.createEntity(map[string]interface{}{
		"worldId":           fixture.worldId,
		"entityTypeId":      npc.EntityTypeId.String(),
		"name":              "campaign villain",
		"contextCampaignId": fixture.campaignId,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := fixture.gm.deleteCampaign(fixture.campaignId); err != nil {
		t.Fatal(err)
	}

	var grants int64
	if err := env.db.Model(&schema.EntityAccess{}).Where("entity_id = ?", entity.EntityId).Count(&grants).Error; err != nil {
		t.Fatal(err)
	}
	if grants != 0 {
		t.Fatalf("expected campaign-scoped grants to be removed, found %d", grants)
	}

	// The entity itself outlives the campaign.
	if _, err := fixture.architect.getEntity(entity.EntityId.String(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestCharacterManagement(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	// Players create their own characters freely.
	own, err := fixture.player.createCharacter(fixture.worldId, "second self", "")
	if err != nil {
		t.Fatal(err)
	}
	if own.PlayerId.String() != fixture.player.userId {
		t.Fatal("character should default to the caller as player")
	}

	// Creating for someone else is a GM action.
	if _, err := fixture.player.createCharacter(fixture.worldId, "puppet", fixture.gm.userId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden creating a character for another player, got %v", err)
	}

	// Players only see their own characters; GMs see all of them.
	mine, err := fixture.player.listCharacters(fixture.worldId)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("player should see 2 characters, got %d", len(mine))
	}
	all, err := fixture.gm.listCharacters(fixture.worldId)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("gm should see 2 characters, got %d", len(all))
	}

	// Reassignment is a GM action.
	reassign := map[string]interface{}{"playerId": fixture.gm.userId}
	err = fixture.player.Put("/api/characters/"+own.CharacterId.String()).Json(reassign).Do(nil)
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden reassigning as player, got %v", err)
	}
	if err := fixture.gm.Put("/api/characters/"+own.CharacterId.String()).Json(reassign).Do(nil); err != nil {
		t.Fatal(err)
	}

	// Deleting a character clears its campaign memberships.
	if err := fixture.player.deleteCharacter(fixture.characterId); err != nil {
		t.Fatal(err)
	}
	var memberships int64
	if err := env.db.Model(&schema.CampaignCharacter{}).Where("character_id = ?", fixture.characterId).Count(&memberships).Error; err != nil {
		t.Fatal(err)
	}
	if memberships != 0 {
		t.Fatalf("expected memberships to be removed, found %d", memberships)
	}
}
