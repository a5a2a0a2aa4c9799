package schema

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type templateChoice struct {
	Value     string `yaml:"value"`
	Label     string `yaml:"label"`
	SortOrder int    `yaml:"sortOrder"`
}

type templateField struct {
	Key       string `yaml:"key"`
	Label     string `yaml:"label"`
	Type      string `yaml:"type"`
	Required  bool   `yaml:"required"`
	SortOrder int    `yaml:"sortOrder"`

	Choices []templateChoice `yaml:"choices"`
}

type templateSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Fields []templateField `yaml:"fields"`
}

func validTemplateFieldType(fieldType string) bool {
	switch fieldType {
	case TextField, TextareaField, BooleanField, NumberField, ChoiceField,
		EntityReferenceField, LocationReferenceField:
		return true
	}
	return false
}

// SeedTemplates loads cross-world entity type templates from a yaml file.
// Templates already present (matched by name) are left untouched, so the file
// can be re-applied on every startup.
func SeedTemplates(db *gorm.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading template file '%v': %w", path, err)
	}

	var templates []templateSpec
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return fmt.Errorf("error parsing template file '%v': %w", path, err)
	}

	for _, template := range templates {
		if template.Name == "" {
			return fmt.Errorf("template file '%v' contains a template with no name", path)
		}
		for _, field := range template.Fields {
			if !validTemplateFieldType(field.Type) {
				return fmt.Errorf("template '%v' field '%v' has invalid type '%v'", template.Name, field.Key, field.Type)
			}
		}
	}

	return db.Transaction(func(txn *gorm.DB) error {
		for _, template := range templates {
			var count int64
			result := txn.Model(&EntityType{}).Where("world_id IS NULL AND name = ?", template.Name).Count(&count)
			if result.Error != nil {
				slog.Error("sql error checking for existing template", "name", template.Name, "error", result.Error)
				return ErrDbAccessFailed
			}
			if count > 0 {
				continue
			}

			entityType := EntityType{
				Id:          uuid.New(),
				Name:        template.Name,
				Description: template.Description,
			}
			if result := txn.Create(&entityType); result.Error != nil {
				slog.Error("sql error creating template entity type", "name", template.Name, "error", result.Error)
				return ErrDbAccessFailed
			}

			for _, field := range template.Fields {
				row := EntityField{
					Id:           uuid.New(),
					EntityTypeId: entityType.Id,
					FieldKey:     field.Key,
					Label:        field.Label,
					FieldType:    field.Type,
					Required:     field.Required,
					SortOrder:    field.SortOrder,
				}
				if result := txn.Create(&row); result.Error != nil {
					slog.Error("sql error creating template field", "name", template.Name, "field_key", field.Key, "error", result.Error)
					return ErrDbAccessFailed
				}

				for _, choice := range field.Choices {
					choiceRow := EntityFieldChoice{
						Id:        uuid.New(),
						FieldId:   row.Id,
						Value:     choice.Value,
						Label:     choice.Label,
						SortOrder: choice.SortOrder,
					}
					if result := txn.Create(&choiceRow); result.Error != nil {
						slog.Error("sql error creating template field choice", "name", template.Name, "field_key", field.Key, "error", result.Error)
						return ErrDbAccessFailed
					}
				}
			}

			slog.Info("seeded entity type template", "name", template.Name)
		}

		return nil
	})
}
