package fields

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Kind int

const (
	UnsetKind Kind = iota
	StringKind
	TextKind
	BoolKind
	NumberKind
	JsonKind
)

// Value is the typed form of one stored field value. The storage layout keeps
// five nullable columns for compatibility, but every read and write flows
// through this union so the column choice is made in exactly one place.
type Value struct {
	Kind Kind
	Str  string
	Bool bool
	Num  float64
}

func coerceString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(data), `"`)
	}
}

func coerceBool(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	default:
		return false
	}
}

func coerceNumber(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case bool:
		if v {
			return 1, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// MapValue maps a raw payload value onto the typed column declared by the
// field. The second return is false when the value is empty or unparseable,
// in which case the stored row is deleted rather than written with nulls; a
// NaN never reaches storage.
func MapValue(def Definition, raw interface{}) (Value, bool) {
	switch def.FieldType {
	case schema.TextField, schema.ChoiceField, schema.EntityReferenceField, schema.LocationReferenceField:
		s := coerceString(raw)
		if s == "" {
			return Value{}, false
		}
		return Value{Kind: StringKind, Str: s}, true

	case schema.TextareaField:
		s := coerceString(raw)
		if s == "" {
			return Value{}, false
		}
		return Value{Kind: TextKind, Str: s}, true

	case schema.BooleanField:
		if !coerceBool(raw) {
			return Value{}, false
		}
		return Value{Kind: BoolKind, Bool: true}, true

	case schema.NumberField:
		n, ok := coerceNumber(raw)
		if !ok || n == 0 {
			return Value{}, false
		}
		return Value{Kind: NumberKind, Num: n}, true

	default:
		// Unknown declared types fall back to the json column rather than
		// guessing a scalar representation.
		if raw == nil {
			return Value{}, false
		}
		data, err := json.Marshal(raw)
		if err != nil || string(data) == "null" {
			return Value{}, false
		}
		return Value{Kind: JsonKind, Str: string(data)}, true
	}
}

// Extract reconstructs the flat value from a stored row, picking the first
// populated column in the order string, text, boolean, number, json. The
// order must not change: degenerate legacy rows may carry values in more than
// one column family and the first match wins.
func Extract(valueString, valueText *string, valueBoolean *bool, valueNumber *float64, valueJson *string) (interface{}, bool) {
	if valueString != nil {
		return *valueString, true
	}
	if valueText != nil {
		return *valueText, true
	}
	if valueBoolean != nil {
		return *valueBoolean, true
	}
	if valueNumber != nil {
		return *valueNumber, true
	}
	if valueJson != nil {
		var decoded interface{}
		if err := json.Unmarshal([]byte(*valueJson), &decoded); err != nil {
			return *valueJson, true
		}
		return decoded, true
	}
	return nil, false
}

func entityValueRow(entityId, fieldId uuid.UUID, v Value) schema.EntityFieldValue {
	row := schema.EntityFieldValue{EntityId: entityId, FieldId: fieldId}
	switch v.Kind {
	case StringKind:
		row.ValueString = &v.Str
	case TextKind:
		row.ValueText = &v.Str
	case BoolKind:
		row.ValueBoolean = &v.Bool
	case NumberKind:
		row.ValueNumber = &v.Num
	case JsonKind:
		row.ValueJson = &v.Str
	}
	return row
}

func locationValueRow(locationId, fieldId uuid.UUID, v Value) schema.LocationFieldValue {
	row := schema.LocationFieldValue{LocationId: locationId, FieldId: fieldId}
	switch v.Kind {
	case StringKind:
		row.ValueString = &v.Str
	case TextKind:
		row.ValueText = &v.Str
	case BoolKind:
		row.ValueBoolean = &v.Bool
	case NumberKind:
		row.ValueNumber = &v.Num
	case JsonKind:
		row.ValueJson = &v.Str
	}
	return row
}

var valueConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "entity_id"}, {Name: "field_id"}},
	UpdateAll: true,
}

var locationValueConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "location_id"}, {Name: "field_id"}},
	UpdateAll: true,
}

// WriteEntityValue upserts or deletes the value row for one (entity, field)
// pair. Writing an empty value to a field with no row is a no-op; writing
// empty to an existing row deletes it. Both are idempotent.
func WriteEntityValue(tx *gorm.DB, entityId uuid.UUID, def Definition, raw interface{}) error {
	value, ok := MapValue(def, raw)
	if !ok {
		result := tx.Delete(&schema.EntityFieldValue{}, "entity_id = ? AND field_id = ?", entityId, def.FieldId)
		if result.Error != nil {
			slog.Error("sql error clearing entity field value", "entity_id", entityId, "field_key", def.FieldKey, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	}

	row := entityValueRow(entityId, def.FieldId, value)
	result := tx.Clauses(valueConflict).Create(&row)
	if result.Error != nil {
		slog.Error("sql error writing entity field value", "entity_id", entityId, "field_key", def.FieldKey, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	return nil
}

func WriteLocationValue(tx *gorm.DB, locationId uuid.UUID, def Definition, raw interface{}) error {
	value, ok := MapValue(def, raw)
	if !ok {
		result := tx.Delete(&schema.LocationFieldValue{}, "location_id = ? AND field_id = ?", locationId, def.FieldId)
		if result.Error != nil {
			slog.Error("sql error clearing location field value", "location_id", locationId, "field_key", def.FieldKey, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	}

	row := locationValueRow(locationId, def.FieldId, value)
	result := tx.Clauses(locationValueConflict).Create(&row)
	if result.Error != nil {
		slog.Error("sql error writing location field value", "location_id", locationId, "field_key", def.FieldKey, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	return nil
}

func filterDefs(defs []Definition, keys []string) []Definition {
	if len(keys) == 0 {
		return defs
	}
	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	kept := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if allowed[def.FieldKey] {
			kept = append(kept, def)
		}
	}
	return kept
}

// ReadEntityValues reassembles the flat fieldKey -> value map for one entity.
// A non-empty keys list restricts which fields are loaded.
func ReadEntityValues(db *gorm.DB, entityId uuid.UUID, defs []Definition, keys ...string) (map[string]interface{}, error) {
	defs = filterDefs(defs, keys)

	byId := make(map[uuid.UUID]Definition, len(defs))
	ids := make([]uuid.UUID, 0, len(defs))
	for _, def := range defs {
		byId[def.FieldId] = def
		ids = append(ids, def.FieldId)
	}

	values := make(map[string]interface{})
	if len(ids) == 0 {
		return values, nil
	}

	var rows []schema.EntityFieldValue
	result := db.Where("entity_id = ? AND field_id IN ?", entityId, ids).Find(&rows)
	if result.Error != nil {
		slog.Error("sql error reading entity field values", "entity_id", entityId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	for _, row := range rows {
		def, ok := byId[row.FieldId]
		if !ok {
			continue
		}
		if value, ok := Extract(row.ValueString, row.ValueText, row.ValueBoolean, row.ValueNumber, row.ValueJson); ok {
			values[def.FieldKey] = value
		}
	}
	return values, nil
}

func ReadLocationValues(db *gorm.DB, locationId uuid.UUID, defs []Definition, keys ...string) (map[string]interface{}, error) {
	defs = filterDefs(defs, keys)

	byId := make(map[uuid.UUID]Definition, len(defs))
	ids := make([]uuid.UUID, 0, len(defs))
	for _, def := range defs {
		byId[def.FieldId] = def
		ids = append(ids, def.FieldId)
	}

	values := make(map[string]interface{})
	if len(ids) == 0 {
		return values, nil
	}

	var rows []schema.LocationFieldValue
	result := db.Where("location_id = ? AND field_id IN ?", locationId, ids).Find(&rows)
	if result.Error != nil {
		slog.Error("sql error reading location field values", "location_id", locationId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	for _, row := range rows {
		def, ok := byId[row.FieldId]
		if !ok {
			continue
		}
		if value, ok := Extract(row.ValueString, row.ValueText, row.ValueBoolean, row.ValueNumber, row.ValueJson); ok {
			values[def.FieldKey] = value
		}
	}
	return values, nil
}

// DeleteEntityValues removes every value row for an entity, ahead of deleting
// the entity row itself.
func DeleteEntityValues(tx *gorm.DB, entityId uuid.UUID) error {
	result := tx.Delete(&schema.EntityFieldValue{}, "entity_id = ?", entityId)
	if result.Error != nil {
		slog.Error("sql error deleting entity field values", "entity_id", entityId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	return nil
}

func DeleteLocationValues(tx *gorm.DB, locationId uuid.UUID) error {
	result := tx.Delete(&schema.LocationFieldValue{}, "location_id = ?", locationId)
	if result.Error != nil {
		slog.Error("sql error deleting location field values", "location_id", locationId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	return nil
}
