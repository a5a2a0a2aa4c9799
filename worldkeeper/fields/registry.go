// Package fields implements the dynamic-schema subsystem: administrator
// defined field metadata, the typed entity-attribute-value store, and the
// filter-rule compiler that turns untyped filter expressions into storage
// predicates.
package fields

import (
	"log/slog"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Choice struct {
	Value string
	Label string
}

// Definition is an immutable snapshot of one administrator defined field.
// Definitions are read fresh on every request; nothing caches them.
type Definition struct {
	FieldId   uuid.UUID
	FieldKey  string
	Label     string
	FieldType string
	Required  bool
	SortOrder int

	ReferenceEntityTypeId *uuid.UUID

	Choices []Choice
}

func (d Definition) HasChoice(value string) bool {
	for _, c := range d.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// ListFields returns the field definitions for an entity type, in declared
// order.
func ListFields(db *gorm.DB, entityTypeId uuid.UUID) ([]Definition, error) {
	var rows []schema.EntityField
	result := db.Preload("Choices", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order")
	}).Where("entity_type_id = ?", entityTypeId).Order("sort_order").Find(&rows)
	if result.Error != nil {
		slog.Error("sql error listing entity fields", "entity_type_id", entityTypeId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	defs := make([]Definition, 0, len(rows))
	for _, row := range rows {
		def := Definition{
			FieldId:               row.Id,
			FieldKey:              row.FieldKey,
			Label:                 row.Label,
			FieldType:             row.FieldType,
			Required:              row.Required,
			SortOrder:             row.SortOrder,
			ReferenceEntityTypeId: row.ReferenceEntityTypeId,
		}
		for _, choice := range row.Choices {
			def.Choices = append(def.Choices, Choice{Value: choice.Value, Label: choice.Label})
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ListLocationFields returns the world-scoped location field definitions.
func ListLocationFields(db *gorm.DB, worldId uuid.UUID) ([]Definition, error) {
	var rows []schema.LocationField
	result := db.Preload("Choices", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order")
	}).Where("world_id = ?", worldId).Order("sort_order").Find(&rows)
	if result.Error != nil {
		slog.Error("sql error listing location fields", "world_id", worldId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	defs := make([]Definition, 0, len(rows))
	for _, row := range rows {
		def := Definition{
			FieldId:               row.Id,
			FieldKey:              row.FieldKey,
			Label:                 row.Label,
			FieldType:             row.FieldType,
			Required:              row.Required,
			SortOrder:             row.SortOrder,
			ReferenceEntityTypeId: row.ReferenceEntityTypeId,
		}
		for _, choice := range row.Choices {
			def.Choices = append(def.Choices, Choice{Value: choice.Value, Label: choice.Label})
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ByKey indexes a definition list for payload validation and filter
// compilation. Unknown keys in incoming payloads are ignorable by contract,
// so lookups that miss mean "no write"/"no predicate", never an error.
func ByKey(defs []Definition) map[string]Definition {
	byKey := make(map[string]Definition, len(defs))
	for _, def := range defs {
		byKey[def.FieldKey] = def
	}
	return byKey
}
