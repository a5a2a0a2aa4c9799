package tests

import (
	"net/http"
	"testing"
	"worldkeeper/worldkeeper/schema"
)

func TestLocationFieldRegistry(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	if _, err := fixture.player.createLocationField(map[string]interface{}{
		"worldId": fixture.worldId, "fieldKey": "terrain", "label": "Terrain", "fieldType": "TEXT",
	}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player field creation, got %v", err)
	}

	field, err := fixture.architect.createLocationField(map[string]interface{}{
		"worldId": fixture.worldId, "fieldKey": "terrain", "label": "Terrain", "fieldType": "TEXT",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fixture.architect.createLocationField(map[string]interface{}{
		"worldId": fixture.worldId, "fieldKey": "terrain", "label": "Again", "fieldType": "TEXT",
	}); statusOf(err) != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate field key, got %v", err)
	}

	if _, err := fixture.architect.createLocationField(map[string]interface{}{
		"worldId": fixture.worldId, "fieldKey": "climate", "label": "Climate", "fieldType": "CHOICE",
		"choices": []map[string]interface{}{{"value": "arid", "label": "Arid"}, {"value": "temperate", "label": "Temperate"}},
	}); err != nil {
		t.Fatal(err)
	}

	listed, err := fixture.architect.listLocationFields(fixture.worldId)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 location fields, got %v", listed)
	}

	fieldId := field.FieldId.String()
	if err := fixture.architect.Put("/api/locations/fields/"+fieldId).Json(map[string]interface{}{"label": "Ground"}).Do(nil); err != nil {
		t.Fatal(err)
	}
	err = fixture.architect.Put("/api/locations/fields/"+fieldId).Json(map[string]interface{}{"fieldKey": "ground"}).Do(nil)
	if statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request renaming a field key, got %v", err)
	}

	if err := fixture.architect.Delete("/api/locations/fields/" + fieldId).Do(nil); err != nil {
		t.Fatal(err)
	}
	listed, err = fixture.architect.listLocationFields(fixture.worldId)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 location field after delete, got %v", listed)
	}
}

func TestLocationLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")

	if _, err := fixture.architect.createLocationField(map[string]interface{}{
		"worldId": fixture.worldId, "fieldKey": "terrain", "label": "Terrain", "fieldType": "TEXT",
	}); err != nil {
		t.Fatal(err)
	}

	location, err := fixture.architect.createLocation(map[string]interface{}{
		"worldId":     fixture.worldId,
		"name":        "mirkwood",
		"fieldValues": map[string]interface{}{"terrain": "forest"},
	})
	if err != nil {
		t.Fatal(err)
	}

	fetched, err := fixture.architect.getLocation(location.LocationId.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Name != "mirkwood" || fetched.FieldValues["terrain"] != "forest" {
		t.Fatalf("unexpected location %+v", fetched)
	}

	locations, err := fixture.player.listLocations(map[string]string{"worldId": fixture.worldId})
	if err != nil {
		t.Fatal(err)
	}
	if len(locations) != 1 {
		t.Fatalf("expected 1 location, got %v", locations)
	}

	if _, err := fixture.architect.updateLocation(location.LocationId.String(), map[string]interface{}{
		"description": "spiders everywhere",
		"fieldValues": map[string]interface{}{"terrain": "dark forest"},
	}); err != nil {
		t.Fatal(err)
	}

	audit, err := fixture.architect.locationAudit(location.LocationId.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(audit.Events) != 2 || audit.Events[0].Action != "create" || audit.Events[1].Action != "update" {
		t.Fatalf("unexpected audit trail %v", audit.Events)
	}
}

func TestLocationDeleteDetachesEntities(t *testing.T) {
	env := setupTestEnv(t)
	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	location, err := fixture.architect.createLocation(map[string]interface{}{
		"worldId": fixture.worldId,
		"name":    "weathertop",
	})
	if err != nil {
		t.Fatal(err)
	}

	entity, err := fixture.architect.createEntity(map[string]interface{}{
		"worldId":           fixture.worldId,
		"entityTypeId":      npc.EntityTypeId.String(),
		"name":              "watcher",
		"currentLocationId": location.LocationId.String(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if entity.CurrentLocationId == nil || *entity.CurrentLocationId != location.LocationId {
		t.Fatalf("entity should reference the location, got %+v", entity)
	}

	if err := fixture.player.deleteLocation(location.LocationId.String()); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for player delete, got %v", err)
	}
	if err := fixture.architect.deleteLocation(location.LocationId.String()); err != nil {
		t.Fatal(err)
	}

	detached, err := fixture.architect.getEntity(entity.EntityId.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if detached.CurrentLocationId != nil {
		t.Fatalf("entity should be detached from the deleted location, got %+v", detached)
	}

	var grants int64
	if err := env.db.Model(&schema.LocationAccess{}).Where("location_id = ?", location.LocationId).Count(&grants).Error; err != nil {
		t.Fatal(err)
	}
	if grants != 0 {
		t.Fatalf("expected location grants to cascade, found %d", grants)
	}
}
