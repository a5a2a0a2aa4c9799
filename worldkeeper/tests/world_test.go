package tests

import (
	"net/http"
	"testing"
	"worldkeeper/worldkeeper/schema"
)

func TestWorldLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	architect, err := env.newUser("architect")
	if err != nil {
		t.Fatal(err)
	}

	world, err := architect.createWorld("middle earth", "")
	if err != nil {
		t.Fatal(err)
	}
	if world.EntityPermissionScope != schema.ArchitectOnly {
		t.Fatalf("expected default permission scope, got %v", world.EntityPermissionScope)
	}
	if world.ArchitectId.String() != architect.userId {
		t.Fatal("creator should be the primary architect")
	}

	if _, err := architect.createWorld("bad", "EVERYONE"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for invalid permission scope, got %v", err)
	}

	updated, err := architect.updateWorld(world.WorldId.String(), map[string]interface{}{
		"description":           "a land of hobbits",
		"entityPermissionScope": schema.ArchitectGmPlayer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != "a land of hobbits" || updated.EntityPermissionScope != schema.ArchitectGmPlayer {
		t.Fatalf("unexpected world after update %+v", updated)
	}

	fetched, err := architect.getWorld(world.WorldId.String())
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Name != "middle earth" || fetched.Description != "a land of hobbits" {
		t.Fatalf("unexpected world %+v", fetched)
	}
}

func TestWorldVisibility(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	for name, member := range map[string]*client{
		"architect": fixture.architect, "gamemaster": fixture.gm, "player": fixture.player,
	} {
		worlds, err := member.listWorlds()
		if err != nil {
			t.Fatal(err)
		}
		if len(worlds) != 1 || worlds[0].WorldId.String() != fixture.worldId {
			t.Fatalf("%v should see exactly the fixture world, got %v", name, worlds)
		}
	}

	worlds, err := fixture.outsider.listWorlds()
	if err != nil {
		t.Fatal(err)
	}
	if len(worlds) != 0 {
		t.Fatalf("outsider should see no worlds, got %v", worlds)
	}

	if _, err := fixture.outsider.getWorld(fixture.worldId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}

	// Admins see everything without membership.
	worlds, err = fixture.admin.listWorlds()
	if err != nil {
		t.Fatal(err)
	}
	if len(worlds) != 1 {
		t.Fatalf("admin should see the fixture world, got %v", worlds)
	}
}

func TestWorldMembers(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	if err := fixture.player.addArchitect(fixture.worldId, fixture.outsider.userId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player managing members, got %v", err)
	}

	if err := fixture.architect.addArchitect(fixture.worldId, fixture.outsider.userId); err != nil {
		t.Fatal(err)
	}

	// Delegated architects can update the world.
	if _, err := fixture.outsider.updateWorld(fixture.worldId, map[string]interface{}{"description": "updated"}); err != nil {
		t.Fatal(err)
	}

	if err := fixture.architect.removeArchitect(fixture.worldId, fixture.outsider.userId); err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.outsider.updateWorld(fixture.worldId, map[string]interface{}{"description": "again"}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden after architect removal, got %v", err)
	}

	helper, err := env.newUser("helper")
	if err != nil {
		t.Fatal(err)
	}
	if err := fixture.architect.addGameMaster(fixture.worldId, helper.userId); err != nil {
		t.Fatal(err)
	}

	// World-level game masters can open campaigns without running one yet.
	if _, err := helper.createCampaign(fixture.worldId, "side quest", ""); err != nil {
		t.Fatal(err)
	}

	world, err := fixture.architect.getWorld(fixture.worldId)
	if err != nil {
		t.Fatal(err)
	}
	if len(world.GameMasters) != 1 || world.GameMasters[0].String() != helper.userId {
		t.Fatalf("unexpected game master list %v", world.GameMasters)
	}
}

func TestWorldDeleteCascades(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, schema.ArchitectGmPlayer)
	npc := fixture.npcType(t)

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "strider",
		"fieldValues":  map[string]interface{}{"title": "ranger"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.architect.createLocation(map[string]interface{}{
		"worldId": fixture.worldId,
		"name":    "the prancing pony",
	}); err != nil {
		t.Fatal(err)
	}

	// Delegated architects may not delete the world, only its primary owner.
	delegate, err := env.newUser("delegate")
	if err != nil {
		t.Fatal(err)
	}
	if err := fixture.architect.addArchitect(fixture.worldId, delegate.userId); err != nil {
		t.Fatal(err)
	}
	if err := delegate.deleteWorld(fixture.worldId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for delegated architect delete, got %v", err)
	}

	if err := fixture.architect.deleteWorld(fixture.worldId); err != nil {
		t.Fatal(err)
	}

	for model, name := range map[interface{}]string{
		&schema.World{}:            "worlds",
		&schema.Campaign{}:         "campaigns",
		&schema.Character{}:        "characters",
		&schema.EntityType{}:       "entity types",
		&schema.EntityField{}:      "entity fields",
		&schema.Entity{}:           "entities",
		&schema.EntityFieldValue{}: "entity values",
		&schema.EntityAccess{}:     "entity grants",
		&schema.Location{}:         "locations",
		&schema.LocationAccess{}:   "location grants",
	} {
		var count int64
		if err := env.db.Model(model).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("expected no %v after world delete, found %d", name, count)
		}
	}

	// The audit trail survives the world it describes.
	var auditCount int64
	if err := env.db.Model(&schema.SystemAudit{}).Where("entity_id = ?", entity.EntityId).Count(&auditCount).Error; err != nil {
		t.Fatal(err)
	}
	if auditCount == 0 {
		t.Fatal("expected audit rows to survive world deletion")
	}
}
