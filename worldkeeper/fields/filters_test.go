package fields

import (
	"testing"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestParseFilterGroup(t *testing.T) {
	group, err := ParseFilterGroup(`[{"fieldKey": "title", "operator": "equals", "value": "x"}]`)
	require.NoError(t, err)
	assert.Equal(t, LogicAnd, group.Logic)
	require.Len(t, group.Rules, 1)
	assert.Equal(t, "title", group.Rules[0].FieldKey)

	group, err = ParseFilterGroup(`{"logic": "OR", "rules": [{"fieldKey": "a", "operator": "is_set"}]}`)
	require.NoError(t, err)
	assert.Equal(t, LogicOr, group.Logic)

	// Missing logic defaults to AND.
	group, err = ParseFilterGroup(`{"rules": []}`)
	require.NoError(t, err)
	assert.Equal(t, LogicAnd, group.Logic)

	group, err = ParseFilterGroup("  ")
	require.NoError(t, err)
	assert.Empty(t, group.Rules)

	_, err = ParseFilterGroup(`{"logic": "OR", "rules": `)
	assert.Error(t, err)
}

type filterHarness struct {
	db   *gorm.DB
	defs map[string]Definition
}

// seedFilterData builds two entities: one with a title and a true flag, one
// with neither.
func seedFilterData(t *testing.T) (filterHarness, uuid.UUID, uuid.UUID) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schema.Entity{}, &schema.EntityFieldValue{}))

	titleDef := Definition{FieldId: uuid.New(), FieldKey: "title", FieldType: schema.TextField}
	flagDef := Definition{FieldId: uuid.New(), FieldKey: "flag", FieldType: schema.BooleanField}

	worldId, typeId := uuid.New(), uuid.New()
	flagged := schema.Entity{Id: uuid.New(), WorldId: worldId, EntityTypeId: typeId, Name: "flagged", CreatedById: uuid.New()}
	plain := schema.Entity{Id: uuid.New(), WorldId: worldId, EntityTypeId: typeId, Name: "plain", Description: "nothing here", CreatedById: uuid.New()}
	require.NoError(t, db.Create(&flagged).Error)
	require.NoError(t, db.Create(&plain).Error)

	require.NoError(t, WriteEntityValue(db, flagged.Id, titleDef, "captain"))
	require.NoError(t, WriteEntityValue(db, flagged.Id, flagDef, true))

	harness := filterHarness{db: db, defs: ByKey([]Definition{titleDef, flagDef})}
	return harness, flagged.Id, plain.Id
}

func (h filterHarness) matches(t *testing.T, raw string) []uuid.UUID {
	group, err := ParseFilterGroup(raw)
	require.NoError(t, err)

	compiler := NewCompiler(EntityStorage)

	var rows []schema.Entity
	result := h.db.Model(&schema.Entity{}).Scopes(compiler.Compile(group, h.defs)).Order("name").Find(&rows)
	require.NoError(t, result.Error)

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Id)
	}
	return ids
}

func TestCompileValuePredicates(t *testing.T) {
	h, flagged, plain := seedFilterData(t)

	assert.Equal(t, []uuid.UUID{flagged}, h.matches(t, `[{"fieldKey": "title", "operator": "equals", "value": "captain"}]`))
	assert.Equal(t, []uuid.UUID{flagged}, h.matches(t, `[{"fieldKey": "title", "operator": "contains", "value": "CAPT"}]`))
	assert.Equal(t, []uuid.UUID{flagged}, h.matches(t, `[{"fieldKey": "flag", "operator": "equals", "value": true}]`))
	assert.Equal(t, []uuid.UUID{plain}, h.matches(t, `[{"fieldKey": "flag", "operator": "is_not_set"}]`))

	// A missing value row never satisfies not_equals; it takes is_not_set.
	assert.Empty(t, h.matches(t, `[{"fieldKey": "flag", "operator": "not_equals", "value": true}]`))

	assert.Equal(t, []uuid.UUID{flagged}, h.matches(t, `[{"fieldKey": "title", "operator": "contains_any", "value": ["captain", "sergeant"]}]`))
}

func TestCompileGroupLogic(t *testing.T) {
	h, flagged, plain := seedFilterData(t)

	both := h.matches(t, `{"logic": "OR", "rules": [
		{"fieldKey": "title", "operator": "equals", "value": "captain"},
		{"fieldKey": "name", "operator": "equals", "value": "plain"}
	]}`)
	assert.Equal(t, []uuid.UUID{flagged, plain}, both)

	none := h.matches(t, `[
		{"fieldKey": "title", "operator": "equals", "value": "captain"},
		{"fieldKey": "name", "operator": "equals", "value": "plain"}
	]`)
	assert.Empty(t, none)
}

func TestCompileSystemAndDroppedRules(t *testing.T) {
	h, flagged, plain := seedFilterData(t)

	assert.Equal(t, []uuid.UUID{plain}, h.matches(t, `[{"fieldKey": "description", "operator": "contains", "value": "nothing"}]`))
	assert.Equal(t, []uuid.UUID{flagged}, h.matches(t, `[{"fieldKey": "description", "operator": "is_not_set"}]`))

	// Unknown field keys and unusable operands are dropped, leaving a
	// pass-through rather than an empty result.
	assert.Equal(t, []uuid.UUID{flagged, plain}, h.matches(t, `[{"fieldKey": "ghost", "operator": "equals", "value": "x"}]`))
	assert.Equal(t, []uuid.UUID{flagged, plain}, h.matches(t, `[]`))
}
