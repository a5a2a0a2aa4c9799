package fields

import (
	"math"
	"testing"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func def(fieldType string) Definition {
	return Definition{FieldId: uuid.New(), FieldKey: "field", FieldType: fieldType}
}

func TestMapValueFalsyIsUnset(t *testing.T) {
	cases := []struct {
		name      string
		fieldType string
		raw       interface{}
		set       bool
	}{
		{"empty string", schema.TextField, "", false},
		{"nonempty string", schema.TextField, "hello", true},
		{"nil", schema.TextField, nil, false},
		{"false", schema.BooleanField, false, false},
		{"true", schema.BooleanField, true, true},
		{"bool string", schema.BooleanField, "true", true},
		{"bool one", schema.BooleanField, float64(1), true},
		{"zero", schema.NumberField, float64(0), false},
		{"zero string", schema.NumberField, "0", false},
		{"number", schema.NumberField, float64(42), true},
		{"number string", schema.NumberField, "42.5", true},
		{"nan", schema.NumberField, math.NaN(), false},
		{"garbage number", schema.NumberField, "not a number", false},
		{"empty textarea", schema.TextareaField, "", false},
		{"choice", schema.ChoiceField, "captain", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, set := MapValue(def(c.fieldType), c.raw)
			assert.Equal(t, c.set, set)
		})
	}
}

func TestMapValueColumns(t *testing.T) {
	v, set := MapValue(def(schema.TextField), "hello")
	require.True(t, set)
	assert.Equal(t, StringKind, v.Kind)
	assert.Equal(t, "hello", v.Str)

	v, set = MapValue(def(schema.TextareaField), "a longer body")
	require.True(t, set)
	assert.Equal(t, TextKind, v.Kind)

	v, set = MapValue(def(schema.BooleanField), true)
	require.True(t, set)
	assert.Equal(t, BoolKind, v.Kind)
	assert.True(t, v.Bool)

	v, set = MapValue(def(schema.NumberField), "12.25")
	require.True(t, set)
	assert.Equal(t, NumberKind, v.Kind)
	assert.Equal(t, 12.25, v.Num)
}

func TestExtractPriority(t *testing.T) {
	str, text := "s", "t"
	boolean := true
	num := 3.5
	jsonVal := `{"a": 1}`

	// The string column wins over every other populated column.
	value, ok := Extract(&str, &text, &boolean, &num, &jsonVal)
	require.True(t, ok)
	assert.Equal(t, "s", value)

	value, ok = Extract(nil, &text, &boolean, &num, &jsonVal)
	require.True(t, ok)
	assert.Equal(t, "t", value)

	value, ok = Extract(nil, nil, &boolean, &num, &jsonVal)
	require.True(t, ok)
	assert.Equal(t, true, value)

	value, ok = Extract(nil, nil, nil, &num, &jsonVal)
	require.True(t, ok)
	assert.Equal(t, 3.5, value)

	value, ok = Extract(nil, nil, nil, nil, &jsonVal)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, value)

	_, ok = Extract(nil, nil, nil, nil, nil)
	assert.False(t, ok)
}

func TestParseNumber(t *testing.T) {
	n, ok := ParseNumber(" 42.5 ")
	require.True(t, ok)
	assert.Equal(t, 42.5, n)

	_, ok = ParseNumber("forty two")
	assert.False(t, ok)
	_, ok = ParseNumber(math.Inf(1))
	assert.False(t, ok)
	_, ok = ParseNumber(nil)
	assert.False(t, ok)
}

func newValueTestDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schema.EntityFieldValue{}, &schema.LocationFieldValue{}))
	return db
}

func TestWriteEntityValueUpsertAndClear(t *testing.T) {
	db := newValueTestDb(t)

	titleDef := Definition{FieldId: uuid.New(), FieldKey: "title", FieldType: schema.TextField}
	entityId := uuid.New()

	require.NoError(t, WriteEntityValue(db, entityId, titleDef, "ranger"))

	values, err := ReadEntityValues(db, entityId, []Definition{titleDef})
	require.NoError(t, err)
	assert.Equal(t, "ranger", values["title"])

	// Writing again replaces in place rather than duplicating the row.
	require.NoError(t, WriteEntityValue(db, entityId, titleDef, "king"))

	var count int64
	require.NoError(t, db.Model(&schema.EntityFieldValue{}).Where("entity_id = ?", entityId).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	values, err = ReadEntityValues(db, entityId, []Definition{titleDef})
	require.NoError(t, err)
	assert.Equal(t, "king", values["title"])

	// An empty value deletes the row; clearing twice is a no-op.
	require.NoError(t, WriteEntityValue(db, entityId, titleDef, ""))
	require.NoError(t, WriteEntityValue(db, entityId, titleDef, ""))

	values, err = ReadEntityValues(db, entityId, []Definition{titleDef})
	require.NoError(t, err)
	assert.NotContains(t, values, "title")
}

func TestReadEntityValuesKeyRestriction(t *testing.T) {
	db := newValueTestDb(t)

	titleDef := Definition{FieldId: uuid.New(), FieldKey: "title", FieldType: schema.TextField}
	ageDef := Definition{FieldId: uuid.New(), FieldKey: "age", FieldType: schema.NumberField}
	entityId := uuid.New()

	require.NoError(t, WriteEntityValue(db, entityId, titleDef, "ranger"))
	require.NoError(t, WriteEntityValue(db, entityId, ageDef, float64(87)))

	values, err := ReadEntityValues(db, entityId, []Definition{titleDef, ageDef}, "age")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"age": float64(87)}, values)
}
