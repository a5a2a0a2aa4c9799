package tests

import (
	"net/http"
	"testing"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
)

func TestEntityTypeFields(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	if _, err := fixture.player.createEntityType(fixture.worldId, "forbidden"); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player type creation, got %v", err)
	}

	npc, err := fixture.architect.createEntityType(fixture.worldId, "npc")
	if err != nil {
		t.Fatal(err)
	}
	typeId := npc.EntityTypeId.String()

	field, err := fixture.architect.addField(typeId, map[string]interface{}{
		"fieldKey": "title", "label": "Title", "fieldType": "TEXT",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fixture.architect.addField(typeId, map[string]interface{}{
		"fieldKey": "title", "label": "Other", "fieldType": "TEXT",
	}); statusOf(err) != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate field key, got %v", err)
	}

	if _, err := fixture.architect.addField(typeId, map[string]interface{}{
		"fieldKey": "mood", "label": "Mood", "fieldType": "FEELINGS",
	}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown field type, got %v", err)
	}

	if _, err := fixture.architect.addField(typeId, map[string]interface{}{
		"fieldKey": "rank", "label": "Rank", "fieldType": "CHOICE",
	}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for choice field without choices, got %v", err)
	}

	// Labels are mutable, the key and the value column are not.
	if err := fixture.architect.updateField(typeId, field.FieldId.String(), map[string]interface{}{"label": "Honorific"}); err != nil {
		t.Fatal(err)
	}
	if err := fixture.architect.updateField(typeId, field.FieldId.String(), map[string]interface{}{"fieldKey": "renamed"}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request renaming a field key, got %v", err)
	}
	if err := fixture.architect.updateField(typeId, field.FieldId.String(), map[string]interface{}{"fieldType": "NUMBER"}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request retyping a field, got %v", err)
	}

	if err := fixture.architect.deleteField(typeId, field.FieldId.String()); err != nil {
		t.Fatal(err)
	}
	full, err := fixture.architect.getEntityType(typeId)
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Fields) != 0 {
		t.Fatalf("expected no fields after delete, got %v", full.Fields)
	}
}

func TestEntityTypeDeleteGuard(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":      fixture.worldId,
		"entityTypeId": npc.EntityTypeId.String(),
		"name":         "placeholder",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := fixture.architect.deleteEntityType(npc.EntityTypeId.String()); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request deleting a type with entities, got %v", err)
	}

	if err := fixture.architect.deleteEntity(entity.EntityId.String()); err != nil {
		t.Fatal(err)
	}
	if err := fixture.architect.deleteEntityType(npc.EntityTypeId.String()); err != nil {
		t.Fatal(err)
	}
}

func TestTemplateCloning(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	// Cross-world templates are an admin surface.
	if _, err := fixture.architect.createEntityType("", "statblock"); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for non-admin template creation, got %v", err)
	}

	template, err := fixture.admin.createEntityType("", "statblock")
	if err != nil {
		t.Fatal(err)
	}
	if template.WorldId != nil {
		t.Fatal("template should not belong to a world")
	}

	section := schema.EntityFormSection{Id: uuid.New(), EntityTypeId: template.EntityTypeId, Title: "Combat", SortOrder: 1}
	if err := env.db.Create(&section).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := fixture.admin.addField(template.EntityTypeId.String(), map[string]interface{}{
		"fieldKey": "hp", "label": "Hit Points", "fieldType": "NUMBER", "sectionId": section.Id.String(),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.admin.addField(template.EntityTypeId.String(), map[string]interface{}{
		"fieldKey": "size", "label": "Size", "fieldType": "CHOICE",
		"choices": []map[string]interface{}{{"value": "small", "label": "Small"}, {"value": "large", "label": "Large"}},
	}); err != nil {
		t.Fatal(err)
	}

	// World listings include templates alongside world types.
	types, err := fixture.player.listEntityTypes(fixture.worldId)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 || types[0].EntityTypeId != template.EntityTypeId {
		t.Fatalf("expected world listing to include the template, got %v", types)
	}

	clone, err := fixture.architect.cloneTemplate(template.EntityTypeId.String(), fixture.worldId, "monster")
	if err != nil {
		t.Fatal(err)
	}
	if clone.WorldId == nil || clone.WorldId.String() != fixture.worldId {
		t.Fatal("clone should belong to the target world")
	}
	if clone.Name != "monster" {
		t.Fatalf("unexpected clone name %v", clone.Name)
	}
	if len(clone.Fields) != 2 || len(clone.FormSections) != 1 {
		t.Fatalf("expected a deep copy of fields and sections, got %+v", clone)
	}
	if clone.FormSections[0].SectionId == section.Id {
		t.Fatal("cloned section should get a fresh id")
	}
	for _, field := range clone.Fields {
		if field.FieldKey == "hp" {
			if field.SectionId == nil || *field.SectionId != clone.FormSections[0].SectionId {
				t.Fatal("cloned field should point at the cloned section")
			}
		}
		if field.FieldKey == "size" && len(field.Choices) != 2 {
			t.Fatalf("cloned choice field lost its choices: %+v", field)
		}
	}

	// Only templates can be cloned.
	if _, err := fixture.architect.cloneTemplate(clone.EntityTypeId.String(), fixture.worldId, "again"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request cloning a world type, got %v", err)
	}
}
