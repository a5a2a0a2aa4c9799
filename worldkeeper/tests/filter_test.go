package tests

import (
	"net/http"
	"testing"
	"worldkeeper/worldkeeper/services"
)

// filterFixture seeds three npcs with distinct field values to filter on.
func filterFixture(t *testing.T, env *testEnv) (*worldFixture, services.EntityTypeInfo) {
	t.Helper()

	fixture := setupWorld(t, env, "")
	npc := fixture.npcType(t)

	seeds := []map[string]interface{}{
		{
			"name": "northwind keep",
			"fieldValues": map[string]interface{}{
				"title": "fortress", "hostile": true, "age": 300, "rank": "captain",
			},
		},
		{
			"name":        "northgate",
			"description": "a quiet border town",
			"fieldValues": map[string]interface{}{
				"title": "trade post", "age": 120,
			},
		},
		{
			"name":        "south tower",
			"description": "crumbling watchtower",
			"fieldValues": map[string]interface{}{
				"hostile": true, "rank": "sergeant",
			},
		},
	}
	for _, seed := range seeds {
		seed["worldId"] = fixture.worldId
		seed["entityTypeId"] = npc.EntityTypeId.String()
		if _, err := fixture.architect.createEntity(seed); err != nil {
			t.Fatal(err)
		}
	}

	return fixture, npc
}

func (f *worldFixture) filtered(t *testing.T, typeId, filters string) []string {
	t.Helper()

	entities, err := f.architect.listEntities(map[string]string{
		"worldId":      f.worldId,
		"entityTypeId": typeId,
		"filters":      filters,
	})
	if err != nil {
		t.Fatal(err)
	}

	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		names = append(names, entity.Name)
	}
	return names
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFilterImplicitAnd(t *testing.T) {
	env := setupTestEnv(t)
	fixture, npc := filterFixture(t, env)
	typeId := npc.EntityTypeId.String()

	// A bare rule array is an implicit AND group.
	names := fixture.filtered(t, typeId, `[
		{"fieldKey": "name", "operator": "contains", "value": "north"},
		{"fieldKey": "hostile", "operator": "equals", "value": true}
	]`)
	assertNames(t, names, "northwind keep")
}

func TestFilterBooleanNotEquals(t *testing.T) {
	env := setupTestEnv(t)
	fixture, npc := filterFixture(t, env)
	typeId := npc.EntityTypeId.String()

	// False booleans are never stored, so not_equals true excludes both the
	// hostile entities and the ones with no stored value.
	names := fixture.filtered(t, typeId, `[{"fieldKey": "hostile", "operator": "not_equals", "value": true}]`)
	assertNames(t, names)

	// Absence is addressed with is_not_set instead.
	names = fixture.filtered(t, typeId, `[{"fieldKey": "hostile", "operator": "is_not_set"}]`)
	assertNames(t, names, "northgate")
}

func TestFilterOrGroup(t *testing.T) {
	env := setupTestEnv(t)
	fixture, npc := filterFixture(t, env)
	typeId := npc.EntityTypeId.String()

	names := fixture.filtered(t, typeId, `{"logic": "OR", "rules": [
		{"fieldKey": "rank", "operator": "equals", "value": "captain"},
		{"fieldKey": "name", "operator": "contains", "value": "south"}
	]}`)
	assertNames(t, names, "northwind keep", "south tower")
}

func TestFilterNumberAndChoice(t *testing.T) {
	env := setupTestEnv(t)
	fixture, npc := filterFixture(t, env)
	typeId := npc.EntityTypeId.String()

	names := fixture.filtered(t, typeId, `[{"fieldKey": "age", "operator": "equals", "value": 120}]`)
	assertNames(t, names, "northgate")

	names = fixture.filtered(t, typeId, `[{"fieldKey": "rank", "operator": "contains_any", "value": ["captain", "sergeant"]}]`)
	assertNames(t, names, "northwind keep", "south tower")

	// A rule with an unusable numeric operand is dropped, not an error.
	names = fixture.filtered(t, typeId, `[{"fieldKey": "age", "operator": "equals", "value": []}]`)
	assertNames(t, names, "northgate", "northwind keep", "south tower")
}

func TestFilterSystemFields(t *testing.T) {
	env := setupTestEnv(t)
	fixture, npc := filterFixture(t, env)
	typeId := npc.EntityTypeId.String()

	names := fixture.filtered(t, typeId, `[{"fieldKey": "description", "operator": "contains", "value": "watchtower"}]`)
	assertNames(t, names, "south tower")

	names = fixture.filtered(t, typeId, `[{"fieldKey": "description", "operator": "is_not_set"}]`)
	assertNames(t, names, "northwind keep")
}

func TestFilterDegenerateGroups(t *testing.T) {
	env := setupTestEnv(t)
	fixture, npc := filterFixture(t, env)
	typeId := npc.EntityTypeId.String()

	// Unknown field keys are dropped; a fully-dropped group passes everything.
	names := fixture.filtered(t, typeId, `[{"fieldKey": "no_such_field", "operator": "equals", "value": "x"}]`)
	assertNames(t, names, "northgate", "northwind keep", "south tower")

	names = fixture.filtered(t, typeId, `[]`)
	assertNames(t, names, "northgate", "northwind keep", "south tower")

	// Filters require the type to resolve field keys against.
	_, err := fixture.architect.listEntities(map[string]string{
		"worldId": fixture.worldId,
		"filters": `[{"fieldKey": "title", "operator": "is_set"}]`,
	})
	if statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for filters without entityTypeId, got %v", err)
	}

	// Malformed expressions are a client error.
	_, err = fixture.architect.listEntities(map[string]string{
		"worldId":      fixture.worldId,
		"entityTypeId": typeId,
		"filters":      `{"logic": "OR", "rules": `,
	})
	if statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed filters, got %v", err)
	}
}
