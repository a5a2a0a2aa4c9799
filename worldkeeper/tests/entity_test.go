package tests

import (
	"net/http"
	"testing"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
)

func TestEntityLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "strider",
		"fieldValues": map[string]interface{}{
			"title":   "ranger of the north",
			"age":     87,
			"hostile": false,
			"rank":    "captain",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	fetched, err := fixture.architect.getEntity(entity.EntityId.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Name != "strider" {
		t.Fatalf("unexpected entity %+v", fetched)
	}
	if fetched.FieldValues["title"] != "ranger of the north" || fetched.FieldValues["age"] != float64(87) {
		t.Fatalf("unexpected field values %v", fetched.FieldValues)
	}
	// Falsy values are never stored.
	if _, present := fetched.FieldValues["hostile"]; present {
		t.Fatalf("false boolean should not be stored, got %v", fetched.FieldValues)
	}

	updated, err := fixture.architect.updateEntity(entity.EntityId.String(), map[string]interface{}{
		"name": "aragorn",
		"fieldValues": map[string]interface{}{
			"title":   "king of gondor",
			"age":     "", // clears the value
			"unknown": "dropped silently",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "aragorn" || updated.FieldValues["title"] != "king of gondor" {
		t.Fatalf("unexpected entity after update %+v", updated)
	}
	if _, present := updated.FieldValues["age"]; present {
		t.Fatalf("cleared value should be absent, got %v", updated.FieldValues)
	}
	if _, present := updated.FieldValues["unknown"]; present {
		t.Fatal("unknown field keys should be ignored")
	}

	if err := fixture.architect.deleteEntity(entity.EntityId.String()); err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.architect.getEntity(entity.EntityId.String(), nil); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestEntityCreateValidation(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	// The world's default scope restricts creation to architects.
	if _, err := fixture.player.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "rogue",
	}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player under ARCHITECT scope, got %v", err)
	}

	template, err := fixture.admin.createEntityType("", "statblock")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": template.EntityTypeId.String(),
		"name":         "ghost",
	}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request creating from a template, got %v", err)
	}

	otherWorld, err := fixture.architect.createWorld("shadowfell", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      otherWorld.WorldId.String(),
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "misfiled",
	}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for cross-world type, got %v", err)
	}

	// Required fields are enforced on create.
	quest, err := fixture.architect.createEntityType(fixture.worldId, "quest")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.architect.addField(quest.EntityTypeId.String(), map[string]interface{}{
		"fieldKey": "objective", "label": "Objective", "fieldType": "TEXT", "required": true,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": quest.EntityTypeId.String(),
		"name":         "the hunt",
	}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing required field, got %v", err)
	}
	if _, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": quest.EntityTypeId.String(),
		"name":         "the hunt",
		"fieldValues":  map[string]interface{}{"objective": "find the beast"},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestEntityAuditTrail(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "gollum",
		"fieldValues":  map[string]interface{}{"title": "river folk"},
	})
	if err != nil {
		t.Fatal(err)
	}

	audit, err := fixture.architect.entityAudit(entity.EntityId.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(audit.Events) != 1 || audit.Events[0].Action != "create" {
		t.Fatalf("expected a single create event, got %v", audit.Events)
	}

	if _, err := fixture.architect.updateEntity(entity.EntityId.String(), map[string]interface{}{
		"fieldValues": map[string]interface{}{"title": "smeagol"},
	}); err != nil {
		t.Fatal(err)
	}

	// Updates that change nothing do not append to the trail.
	if _, err := fixture.architect.updateEntity(entity.EntityId.String(), map[string]interface{}{
		"name":        "gollum",
		"fieldValues": map[string]interface{}{"title": "smeagol"},
	}); err != nil {
		t.Fatal(err)
	}

	audit, err = fixture.architect.entityAudit(entity.EntityId.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(audit.Events) != 2 {
		t.Fatalf("expected exactly create and update events, got %v", audit.Events)
	}

	// The audit view is a management surface.
	if _, err := fixture.player.entityAudit(entity.EntityId.String()); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player audit view, got %v", err)
	}
}

func TestEntityDeleteCascades(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "doomed",
		"fieldValues":  map[string]interface{}{"title": "soon gone"},
	})
	if err != nil {
		t.Fatal(err)
	}

	note := schema.Note{
		Id:       uuid.New(),
		EntityId: entity.EntityId,
		AuthorId: entity.CreatedById,
		Content:  "met the party at the crossroads",
	}
	if err := env.db.Create(&note).Error; err != nil {
		t.Fatal(err)
	}
	if err := env.db.Create(&schema.NoteTag{NoteId: note.Id, EntityId: entity.EntityId}).Error; err != nil {
		t.Fatal(err)
	}

	if err := fixture.player.deleteEntity(entity.EntityId.String()); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player delete, got %v", err)
	}
	if err := fixture.architect.deleteEntity(entity.EntityId.String()); err != nil {
		t.Fatal(err)
	}

	for model, name := range map[interface{}]string{
		&schema.Note{}:             "notes",
		&schema.NoteTag{}:          "note tags",
		&schema.EntityAccess{}:     "access grants",
		&schema.EntityFieldValue{}: "field values",
	} {
		var count int64
		if err := env.db.Model(model).Where("entity_id = ?", entity.EntityId).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("expected %v to cascade, found %d rows", name, count)
		}
	}

	var deleteEvents int64
	err = env.db.Model(&schema.SystemAudit{}).
		Where("entity_key = ? AND entity_id = ? AND action = ?", "entity", entity.EntityId, "delete").
		Count(&deleteEvents).Error
	if err != nil {
		t.Fatal(err)
	}
	if deleteEvents != 1 {
		t.Fatalf("expected one surviving delete audit row, found %d", deleteEvents)
	}
}

func TestEntityNotFoundVersusForbidden(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	// Grants scoped to the campaign, so nothing is globally readable.
	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":           fixture.worldId,
		"entityTypeId":      npc.EntityTypeId.String(),
		"name":              "hidden treasure",
		"contextCampaignId": fixture.campaignId,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fixture.architect.getEntity(uuid.NewString(), nil); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected not found for a missing entity, got %v", err)
	}
	if _, err := fixture.outsider.getEntity(entity.EntityId.String(), nil); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for an existing but inaccessible entity, got %v", err)
	}

	// The campaign grant admits readers who supply the matching context.
	if _, err := fixture.player.getEntity(entity.EntityId.String(), map[string]string{"campaignId": fixture.campaignId}); err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.player.getEntity(entity.EntityId.String(), nil); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden without the campaign context, got %v", err)
	}
}
