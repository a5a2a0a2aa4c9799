package fields

import (
	"encoding/json"
	"fmt"
	"strings"
	"worldkeeper/worldkeeper/schema"

	"gorm.io/gorm"
)

const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpContainsAny = "contains_any"
	OpIsSet       = "is_set"
	OpIsNotSet    = "is_not_set"
)

const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

type FilterRule struct {
	FieldKey string      `json:"fieldKey"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type FilterGroup struct {
	Logic string       `json:"logic"`
	Rules []FilterRule `json:"rules"`
}

// ParseFilterGroup decodes a filter expression. Both the group form
// {"logic": ..., "rules": [...]} and the legacy bare rule array are accepted;
// a bare array is an implicit AND group.
func ParseFilterGroup(raw string) (FilterGroup, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return FilterGroup{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var rules []FilterRule
		if err := json.Unmarshal([]byte(trimmed), &rules); err != nil {
			return FilterGroup{}, fmt.Errorf("malformed filter expression: %w", err)
		}
		return FilterGroup{Logic: LogicAnd, Rules: rules}, nil
	}

	var group FilterGroup
	if err := json.Unmarshal([]byte(trimmed), &group); err != nil {
		return FilterGroup{}, fmt.Errorf("malformed filter expression: %w", err)
	}
	if group.Logic == "" {
		group.Logic = LogicAnd
	}
	return group, nil
}

// StorageTables names the record and value tables one compiler instance
// renders predicates against.
type StorageTables struct {
	Table       string
	ValueTable  string
	OwnerColumn string
}

var (
	EntityStorage   = StorageTables{Table: "entities", ValueTable: "entity_field_values", OwnerColumn: "entity_id"}
	LocationStorage = StorageTables{Table: "locations", ValueTable: "location_field_values", OwnerColumn: "location_id"}
)

// NumberValidator decides whether a rule value is usable as a numeric
// operand. Rules failing validation are dropped, never errored.
type NumberValidator func(interface{}) (float64, bool)

// ParseNumber is the default numeric validator: strict float parsing with
// NaN and infinities rejected.
func ParseNumber(raw interface{}) (float64, bool) {
	return coerceNumber(raw)
}

type Compiler struct {
	Tables      StorageTables
	ValidNumber NumberValidator
}

func NewCompiler(tables StorageTables) Compiler {
	return Compiler{Tables: tables, ValidNumber: coerceNumber}
}

type predicate struct {
	sql  string
	args []interface{}
}

// systemFields resolve directly against the record row rather than the
// field registry.
var systemFields = map[string]bool{"name": true, "description": true}

func (c Compiler) systemPredicate(rule FilterRule) (predicate, bool) {
	column := fmt.Sprintf("%v.%v", c.Tables.Table, rule.FieldKey)

	switch rule.Operator {
	case OpEquals:
		return predicate{sql: column + " = ?", args: []interface{}{coerceString(rule.Value)}}, true
	case OpNotEquals:
		return predicate{sql: column + " <> ?", args: []interface{}{coerceString(rule.Value)}}, true
	case OpContains:
		needle := "%" + strings.ToLower(coerceString(rule.Value)) + "%"
		return predicate{sql: fmt.Sprintf("LOWER(%v) LIKE ?", column), args: []interface{}{needle}}, true
	case OpIsSet:
		return predicate{sql: fmt.Sprintf("(%v IS NOT NULL AND %v <> '')", column, column)}, true
	case OpIsNotSet:
		return predicate{sql: fmt.Sprintf("(%v IS NULL OR %v = '')", column, column)}, true
	default:
		return predicate{}, false
	}
}

func valueColumn(fieldType string) (string, bool) {
	switch fieldType {
	case schema.TextField, schema.ChoiceField, schema.EntityReferenceField, schema.LocationReferenceField:
		return "value_string", true
	case schema.TextareaField:
		return "value_text", true
	case schema.BooleanField:
		return "value_boolean", true
	case schema.NumberField:
		return "value_number", true
	default:
		return "", false
	}
}

func (c Compiler) exists(def Definition, inner string, args ...interface{}) predicate {
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %v v WHERE v.%v = %v.id AND v.field_id = ?%v)",
		c.Tables.ValueTable, c.Tables.OwnerColumn, c.Tables.Table, inner,
	)
	return predicate{sql: sql, args: append([]interface{}{def.FieldId}, args...)}
}

func (c Compiler) notExists(def Definition) predicate {
	sql := fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %v v WHERE v.%v = %v.id AND v.field_id = ?)",
		c.Tables.ValueTable, c.Tables.OwnerColumn, c.Tables.Table,
	)
	return predicate{sql: sql, args: []interface{}{def.FieldId}}
}

func stringSet(raw interface{}) []string {
	var out []string
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// fieldPredicate compiles one registry-backed rule. The second return is
// false when the rule cannot produce a predicate (unknown operator for the
// type, unparseable numeric operand); such rules are vacuously true.
func (c Compiler) fieldPredicate(def Definition, rule FilterRule) (predicate, bool) {
	column, ok := valueColumn(def.FieldType)
	if !ok {
		return predicate{}, false
	}

	switch rule.Operator {
	case OpIsSet:
		return c.exists(def, ""), true
	case OpIsNotSet:
		return c.notExists(def), true
	}

	switch def.FieldType {
	case schema.NumberField:
		operand, valid := c.ValidNumber(rule.Value)
		if !valid {
			return predicate{}, false
		}
		switch rule.Operator {
		case OpEquals:
			return c.exists(def, fmt.Sprintf(" AND v.%v = ?", column), operand), true
		case OpNotEquals:
			return c.exists(def, fmt.Sprintf(" AND v.%v <> ?", column), operand), true
		}
		return predicate{}, false

	case schema.BooleanField:
		operand := coerceBool(rule.Value)
		switch rule.Operator {
		case OpEquals:
			return c.exists(def, fmt.Sprintf(" AND v.%v = ?", column), operand), true
		case OpNotEquals:
			return c.exists(def, fmt.Sprintf(" AND v.%v <> ?", column), operand), true
		}
		return predicate{}, false

	default:
		switch rule.Operator {
		case OpEquals:
			return c.exists(def, fmt.Sprintf(" AND v.%v = ?", column), coerceString(rule.Value)), true
		case OpNotEquals:
			return c.exists(def, fmt.Sprintf(" AND v.%v <> ?", column), coerceString(rule.Value)), true
		case OpContains:
			needle := "%" + strings.ToLower(coerceString(rule.Value)) + "%"
			return c.exists(def, fmt.Sprintf(" AND LOWER(v.%v) LIKE ?", column), needle), true
		case OpContainsAny:
			if def.FieldType == schema.TextareaField {
				return predicate{}, false
			}
			set := stringSet(rule.Value)
			if len(set) == 0 {
				return predicate{}, false
			}
			return c.exists(def, fmt.Sprintf(" AND v.%v IN ?", column), set), true
		}
		return predicate{}, false
	}
}

// Compile turns a filter group into a composable query scope. Rules naming
// unknown field keys are dropped; an empty or fully-dropped group compiles to
// a pass-through, never to "match nothing".
func (c Compiler) Compile(group FilterGroup, defs map[string]Definition) func(*gorm.DB) *gorm.DB {
	preds := make([]predicate, 0, len(group.Rules))

	for _, rule := range group.Rules {
		if systemFields[rule.FieldKey] {
			if pred, ok := c.systemPredicate(rule); ok {
				preds = append(preds, pred)
			}
			continue
		}

		def, known := defs[rule.FieldKey]
		if !known {
			continue
		}
		if pred, ok := c.fieldPredicate(def, rule); ok {
			preds = append(preds, pred)
		}
	}

	if len(preds) == 0 {
		return func(db *gorm.DB) *gorm.DB { return db }
	}

	joiner := " AND "
	if strings.EqualFold(group.Logic, LogicOr) {
		joiner = " OR "
	}

	clauses := make([]string, 0, len(preds))
	var args []interface{}
	for _, pred := range preds {
		clauses = append(clauses, pred.sql)
		args = append(args, pred.args...)
	}
	where := "(" + strings.Join(clauses, joiner) + ")"

	return func(db *gorm.DB) *gorm.DB {
		return db.Where(where, args...)
	}
}
