package tests

import (
	"net/http"
	"testing"
	"worldkeeper/worldkeeper/schema"
	"worldkeeper/worldkeeper/services"

	"github.com/google/uuid"
)

func TestDefaultGrantsForCampaignContext(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, schema.ArchitectGmPlayer)
	npc := fixture.npcType(t)

	entity, err := fixture.player.createEntity(map[string]interface{}{
		"worldId":           fixture.worldId,
		"entityTypeId":      npc.EntityTypeId.String(),
		"name":              "session loot",
		"contextCampaignId": fixture.campaignId,
	})
	if err != nil {
		t.Fatal(err)
	}

	access, err := fixture.architect.getEntityAccess(entity.EntityId.String())
	if err != nil {
		t.Fatal(err)
	}

	for _, scope := range []services.AccessScopeSpec{access.Read, access.Write} {
		if scope.Global {
			t.Fatalf("campaign-context creation should not produce global grants: %+v", access)
		}
		if len(scope.Campaigns) != 1 || scope.Campaigns[0].String() != fixture.campaignId {
			t.Fatalf("expected exactly the context campaign grant, got %+v", access)
		}
		if len(scope.Characters) != 0 {
			t.Fatalf("expected no character grants, got %+v", access)
		}
	}
}

func TestDefaultGrantsWithoutContext(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "town gates",
	})
	if err != nil {
		t.Fatal(err)
	}

	access, err := fixture.architect.getEntityAccess(entity.EntityId.String())
	if err != nil {
		t.Fatal(err)
	}
	if !access.Read.Global || !access.Write.Global {
		t.Fatalf("contextless creation should default to global grants, got %+v", access)
	}

	// Access management is restricted to architects and GMs.
	if _, err := fixture.player.getEntityAccess(entity.EntityId.String()); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player access view, got %v", err)
	}
}

func TestArchitectVisibility(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, schema.ArchitectGmPlayer)
	npc := fixture.npcType(t)

	// Readable only through the fixture character.
	secret, err := fixture.gm.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "secret letter",
		"access": services.AccessPayload{
			Read: services.AccessScopeSpec{Characters: []uuid.UUID{uuid.MustParse(fixture.characterId)}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	params := map[string]string{"worldId": fixture.worldId}

	// Architects see the whole world when no context narrows the request.
	entities, err := fixture.architect.listEntities(params)
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 1 || entities[0].EntityId != secret.EntityId {
		t.Fatalf("architect should see the restricted entity, got %v", entities)
	}

	// Supplying a character context deliberately narrows even an architect.
	other, err := fixture.architect.createCharacter(fixture.worldId, "bystander", "")
	if err != nil {
		t.Fatal(err)
	}
	narrowed, err := fixture.architect.listEntities(map[string]string{
		"worldId": fixture.worldId, "characterId": other.CharacterId.String(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(narrowed) != 0 {
		t.Fatalf("character context should narrow architect visibility, got %v", narrowed)
	}

	// The granted character's player sees it only with the matching context.
	visible, err := fixture.player.listEntities(map[string]string{
		"worldId": fixture.worldId, "characterId": fixture.characterId,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 1 {
		t.Fatalf("player should see the entity through their character, got %v", visible)
	}
	hidden, err := fixture.player.listEntities(params)
	if err != nil {
		t.Fatal(err)
	}
	if len(hidden) != 0 {
		t.Fatalf("player should not see the entity without context, got %v", hidden)
	}
}

func TestWriteRequiresWriteGrant(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, schema.ArchitectGmPlayer)
	npc := fixture.npcType(t)

	entity, err := fixture.gm.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "shared prop",
		"access": services.AccessPayload{
			Read: services.AccessScopeSpec{Campaigns: []uuid.UUID{uuid.MustParse(fixture.campaignId)}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Read grant alone does not admit writes.
	if _, err := fixture.player.updateEntity(entity.EntityId.String(), map[string]interface{}{
		"name":              "defaced prop",
		"contextCampaignId": fixture.campaignId,
	}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden without a write grant, got %v", err)
	}

	err = fixture.gm.updateEntityAccess(entity.EntityId.String(), services.AccessPayload{
		Read:  services.AccessScopeSpec{Campaigns: []uuid.UUID{uuid.MustParse(fixture.campaignId)}},
		Write: services.AccessScopeSpec{Campaigns: []uuid.UUID{uuid.MustParse(fixture.campaignId)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fixture.player.updateEntity(entity.EntityId.String(), map[string]interface{}{
		"name":              "repainted prop",
		"contextCampaignId": fixture.campaignId,
	}); err != nil {
		t.Fatal(err)
	}

	// The grant only applies when the matching context is supplied.
	if _, err := fixture.player.updateEntity(entity.EntityId.String(), map[string]interface{}{
		"name": "sneaky edit",
	}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden without the campaign context, got %v", err)
	}

	// Architects write regardless of grants.
	if _, err := fixture.architect.updateEntity(entity.EntityId.String(), map[string]interface{}{
		"description": "set dressing",
	}); err != nil {
		t.Fatal(err)
	}
}

func TestAccessUpdateAuditedOnlyOnChange(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "guarded vault",
	})
	if err != nil {
		t.Fatal(err)
	}

	unchanged := services.AccessPayload{
		Read:  services.AccessScopeSpec{Global: true},
		Write: services.AccessScopeSpec{Global: true},
	}
	if err := fixture.architect.updateEntityAccess(entity.EntityId.String(), unchanged); err != nil {
		t.Fatal(err)
	}

	audit, err := fixture.architect.entityAudit(entity.EntityId.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(audit.Events) != 1 {
		t.Fatalf("no-op access update should not be audited, got %v", audit.Events)
	}

	restricted := services.AccessPayload{
		Read: services.AccessScopeSpec{Campaigns: []uuid.UUID{uuid.MustParse(fixture.campaignId)}},
	}
	if err := fixture.architect.updateEntityAccess(entity.EntityId.String(), restricted); err != nil {
		t.Fatal(err)
	}

	audit, err = fixture.architect.entityAudit(entity.EntityId.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(audit.Events) != 2 || audit.Events[len(audit.Events)-1].Action != "access_update" {
		t.Fatalf("expected an access_update event, got %v", audit.Events)
	}
}
