package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"worldkeeper/utils"
	"worldkeeper/worldkeeper/auth"
	"worldkeeper/worldkeeper/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EntityTypeService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *EntityTypeService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)

		r.Route("/{type_id}", func(r chi.Router) {
			r.Get("/", s.Get)
			r.Put("/", s.Update)
			r.Delete("/", s.Delete)

			r.Post("/clone", s.Clone)

			r.Post("/fields", s.CreateField)
			r.Put("/fields/{field_id}", s.UpdateField)
			r.Delete("/fields/{field_id}", s.DeleteField)
		})
	})

	return r
}

type ChoiceInfo struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	SortOrder int    `json:"sortOrder"`
}

type FieldInfo struct {
	FieldId   uuid.UUID `json:"fieldId"`
	FieldKey  string    `json:"fieldKey"`
	Label     string    `json:"label"`
	FieldType string    `json:"fieldType"`
	Required  bool      `json:"required"`
	SortOrder int       `json:"sortOrder"`

	ReferenceEntityTypeId *uuid.UUID `json:"referenceEntityTypeId,omitempty"`
	SectionId             *uuid.UUID `json:"sectionId,omitempty"`
	Conditions            string     `json:"conditions,omitempty"`

	Choices []ChoiceInfo `json:"choices,omitempty"`
}

type FormSectionInfo struct {
	SectionId uuid.UUID `json:"sectionId"`
	Title     string    `json:"title"`
	SortOrder int       `json:"sortOrder"`
}

type EntityTypeInfo struct {
	EntityTypeId uuid.UUID  `json:"entityTypeId"`
	WorldId      *uuid.UUID `json:"worldId"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`

	Fields       []FieldInfo       `json:"fields,omitempty"`
	FormSections []FormSectionInfo `json:"formSections,omitempty"`
}

func fieldInfo(field schema.EntityField) FieldInfo {
	info := FieldInfo{
		FieldId:               field.Id,
		FieldKey:              field.FieldKey,
		Label:                 field.Label,
		FieldType:             field.FieldType,
		Required:              field.Required,
		SortOrder:             field.SortOrder,
		ReferenceEntityTypeId: field.ReferenceEntityTypeId,
		SectionId:             field.SectionId,
		Conditions:            field.Conditions,
	}
	for _, choice := range field.Choices {
		info.Choices = append(info.Choices, ChoiceInfo{Value: choice.Value, Label: choice.Label, SortOrder: choice.SortOrder})
	}
	return info
}

func entityTypeInfo(entityType schema.EntityType) EntityTypeInfo {
	info := EntityTypeInfo{
		EntityTypeId: entityType.Id,
		WorldId:      entityType.WorldId,
		Name:         entityType.Name,
		Description:  entityType.Description,
	}
	for _, field := range entityType.Fields {
		info.Fields = append(info.Fields, fieldInfo(field))
	}
	for _, section := range entityType.FormSections {
		info.FormSections = append(info.FormSections, FormSectionInfo{SectionId: section.Id, Title: section.Title, SortOrder: section.SortOrder})
	}
	return info
}

func validFieldType(fieldType string) bool {
	switch fieldType {
	case schema.TextField, schema.TextareaField, schema.BooleanField, schema.NumberField,
		schema.ChoiceField, schema.EntityReferenceField, schema.LocationReferenceField:
		return true
	}
	return false
}

// canManageType: world-scoped types belong to architects, templates to admins.
func (s *EntityTypeService) canManageType(user schema.User, worldId *uuid.UUID) (bool, error) {
	if user.IsAdmin {
		return true, nil
	}
	if worldId == nil {
		return false, nil
	}
	_, roles, err := loadWorldWithRoles(s.db, user, *worldId)
	if err != nil {
		return false, err
	}
	return roles.Architect, nil
}

func (s *EntityTypeService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	worldId, err := queryParamUUID(r, "worldId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("entity_fields.sort_order") }).
		Preload("Fields.Choices", func(db *gorm.DB) *gorm.DB { return db.Order("entity_field_choices.sort_order") }).
		Preload("FormSections", func(db *gorm.DB) *gorm.DB { return db.Order("entity_form_sections.sort_order") })

	if worldId != nil {
		world, roles, err := loadWorldWithRoles(s.db, user, *worldId)
		if err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		if !roles.CanAccessWorld() {
			http.Error(w, fmt.Sprintf("user %v cannot access world %v", user.Id, world.Id), http.StatusForbidden)
			return
		}
		// World listings include the cross-world templates.
		query = query.Where("world_id = ? OR world_id IS NULL", world.Id)
	} else {
		query = query.Where("world_id IS NULL")
	}

	var types []schema.EntityType
	result := query.Order("name").Find(&types)
	if result.Error != nil {
		slog.Error("sql error listing entity types", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing entity types: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]EntityTypeInfo, 0, len(types))
	for _, entityType := range types {
		infos = append(infos, entityTypeInfo(entityType))
	}
	utils.WriteJsonResponse(w, infos)
}

type createEntityTypeRequest struct {
	WorldId     *uuid.UUID `json:"worldId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

func (s *EntityTypeService) Create(w http.ResponseWriter, r *http.Request) {
	var params createEntityTypeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	allowed, err := s.canManageType(user, params.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not create entity types here", user.Id), http.StatusForbidden)
		return
	}

	entityType := schema.EntityType{
		Id:          uuid.New(),
		WorldId:     params.WorldId,
		Name:        params.Name,
		Description: params.Description,
	}

	if result := s.db.Create(&entityType); result.Error != nil {
		slog.Error("sql error creating entity type", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating entity type: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, entityTypeInfo(entityType))
}

func (s *EntityTypeService) loadTypeContext(r *http.Request, loadFields bool) (schema.EntityType, schema.User, error) {
	typeId, err := utils.URLParamUUID(r, "type_id")
	if err != nil {
		return schema.EntityType{}, schema.User{}, CodedError(err, http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.EntityType{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	entityType, err := schema.GetEntityType(typeId, s.db, loadFields)
	if err != nil {
		if errors.Is(err, schema.ErrEntityTypeNotFound) {
			return schema.EntityType{}, schema.User{}, CodedError(err, http.StatusNotFound)
		}
		return schema.EntityType{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	return entityType, user, nil
}

func (s *EntityTypeService) Get(w http.ResponseWriter, r *http.Request) {
	entityType, user, err := s.loadTypeContext(r, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if entityType.WorldId != nil && !user.IsAdmin {
		_, roles, err := loadWorldWithRoles(s.db, user, *entityType.WorldId)
		if err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		if !roles.CanAccessWorld() {
			http.Error(w, fmt.Sprintf("user %v cannot access entity type %v", user.Id, entityType.Id), http.StatusForbidden)
			return
		}
	}

	utils.WriteJsonResponse(w, entityTypeInfo(entityType))
}

type updateEntityTypeRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *EntityTypeService) Update(w http.ResponseWriter, r *http.Request) {
	entityType, user, err := s.loadTypeContext(r, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	allowed, err := s.canManageType(user, entityType.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not update entity type %v", user.Id, entityType.Id), http.StatusForbidden)
		return
	}

	var params updateEntityTypeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name != nil {
		if strings.TrimSpace(*params.Name) == "" {
			http.Error(w, "name cannot be empty", http.StatusBadRequest)
			return
		}
		entityType.Name = *params.Name
	}
	if params.Description != nil {
		entityType.Description = *params.Description
	}

	entityType.Fields = nil
	entityType.FormSections = nil
	if result := s.db.Save(&entityType); result.Error != nil {
		slog.Error("sql error updating entity type", "type_id", entityType.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error updating entity type: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, entityTypeInfo(entityType))
}

func (s *EntityTypeService) Delete(w http.ResponseWriter, r *http.Request) {
	entityType, user, err := s.loadTypeContext(r, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	allowed, err := s.canManageType(user, entityType.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not delete entity type %v", user.Id, entityType.Id), http.StatusForbidden)
		return
	}

	var entityCount int64
	if result := s.db.Model(&schema.Entity{}).Where("entity_type_id = ?", entityType.Id).Count(&entityCount); result.Error != nil {
		slog.Error("sql error counting entities of type", "type_id", entityType.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	if entityCount > 0 {
		http.Error(w, fmt.Sprintf("entity type %v still has %d entities", entityType.Id, entityCount), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		typeFields := txn.Model(&schema.EntityField{}).Select("id").Where("entity_type_id = ?", entityType.Id)

		steps := []*gorm.DB{
			txn.Where("field_id IN (?)", typeFields).Delete(&schema.EntityFieldChoice{}),
			txn.Where("entity_type_id = ?", entityType.Id).Delete(&schema.EntityField{}),
			txn.Where("entity_type_id = ?", entityType.Id).Delete(&schema.EntityFormSection{}),
			txn.Delete(&schema.EntityType{Id: entityType.Id}),
		}
		for _, result := range steps {
			if result.Error != nil {
				slog.Error("sql error deleting entity type", "type_id", entityType.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting entity type: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type cloneEntityTypeRequest struct {
	WorldId uuid.UUID `json:"worldId"`
	Name    string    `json:"name"`
}

// Clone deep copies a cross-world template into a world, including form
// sections, fields, and choices.
func (s *EntityTypeService) Clone(w http.ResponseWriter, r *http.Request) {
	entityType, user, err := s.loadTypeContext(r, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if entityType.WorldId != nil {
		http.Error(w, "only cross-world templates can be cloned", http.StatusBadRequest)
		return
	}

	var params cloneEntityTypeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.WorldId == uuid.Nil {
		http.Error(w, "worldId is required", http.StatusBadRequest)
		return
	}

	allowed, err := s.canManageType(user, &params.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not clone templates into world %v", user.Id, params.WorldId), http.StatusForbidden)
		return
	}

	name := params.Name
	if strings.TrimSpace(name) == "" {
		name = entityType.Name
	}

	clone := schema.EntityType{
		Id:          uuid.New(),
		WorldId:     &params.WorldId,
		Name:        name,
		Description: entityType.Description,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&clone); result.Error != nil {
			slog.Error("sql error cloning entity type", "type_id", entityType.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		sectionIds := make(map[uuid.UUID]uuid.UUID, len(entityType.FormSections))
		for _, section := range entityType.FormSections {
			copied := schema.EntityFormSection{Id: uuid.New(), EntityTypeId: clone.Id, Title: section.Title, SortOrder: section.SortOrder}
			sectionIds[section.Id] = copied.Id
			if result := txn.Create(&copied); result.Error != nil {
				slog.Error("sql error cloning form section", "type_id", entityType.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		for _, field := range entityType.Fields {
			copied := schema.EntityField{
				Id:                    uuid.New(),
				EntityTypeId:          clone.Id,
				FieldKey:              field.FieldKey,
				Label:                 field.Label,
				FieldType:             field.FieldType,
				Required:              field.Required,
				SortOrder:             field.SortOrder,
				ReferenceEntityTypeId: field.ReferenceEntityTypeId,
				Conditions:            field.Conditions,
			}
			if field.SectionId != nil {
				if mapped, ok := sectionIds[*field.SectionId]; ok {
					copied.SectionId = &mapped
				}
			}
			if result := txn.Create(&copied); result.Error != nil {
				slog.Error("sql error cloning field", "type_id", entityType.Id, "field_key", field.FieldKey, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			for _, choice := range field.Choices {
				copiedChoice := schema.EntityFieldChoice{Id: uuid.New(), FieldId: copied.Id, Value: choice.Value, Label: choice.Label, SortOrder: choice.SortOrder}
				if result := txn.Create(&copiedChoice); result.Error != nil {
					slog.Error("sql error cloning field choice", "type_id", entityType.Id, "field_key", field.FieldKey, "error", result.Error)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
			}
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error cloning entity type: %v", err), GetResponseCode(err))
		return
	}

	cloned, err := schema.GetEntityType(clone.Id, s.db, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.WriteJsonResponse(w, entityTypeInfo(cloned))
}

type fieldRequest struct {
	FieldKey  string `json:"fieldKey"`
	Label     string `json:"label"`
	FieldType string `json:"fieldType"`
	Required  *bool  `json:"required"`
	SortOrder *int   `json:"sortOrder"`

	ReferenceEntityTypeId *uuid.UUID `json:"referenceEntityTypeId"`
	SectionId             *uuid.UUID `json:"sectionId"`
	Conditions            *string    `json:"conditions"`

	Choices []ChoiceInfo `json:"choices"`
}

func (s *EntityTypeService) CreateField(w http.ResponseWriter, r *http.Request) {
	entityType, user, err := s.loadTypeContext(r, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	allowed, err := s.canManageType(user, entityType.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not modify entity type %v", user.Id, entityType.Id), http.StatusForbidden)
		return
	}

	var params fieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.FieldKey) == "" || strings.TrimSpace(params.Label) == "" {
		http.Error(w, "fieldKey and label are required", http.StatusBadRequest)
		return
	}
	if !validFieldType(params.FieldType) {
		http.Error(w, fmt.Sprintf("invalid fieldType '%v'", params.FieldType), http.StatusBadRequest)
		return
	}
	if params.FieldType == schema.ChoiceField && len(params.Choices) == 0 {
		http.Error(w, "choice fields require at least one choice", http.StatusBadRequest)
		return
	}

	field := schema.EntityField{
		Id:                    uuid.New(),
		EntityTypeId:          entityType.Id,
		FieldKey:              params.FieldKey,
		Label:                 params.Label,
		FieldType:             params.FieldType,
		ReferenceEntityTypeId: params.ReferenceEntityTypeId,
		SectionId:             params.SectionId,
	}
	if params.Required != nil {
		field.Required = *params.Required
	}
	if params.SortOrder != nil {
		field.SortOrder = *params.SortOrder
	}
	if params.Conditions != nil {
		field.Conditions = *params.Conditions
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var count int64
		result := txn.Model(&schema.EntityField{}).Where("entity_type_id = ? AND field_key = ?", entityType.Id, params.FieldKey).Count(&count)
		if result.Error != nil {
			slog.Error("sql error checking field key uniqueness", "type_id", entityType.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("field key '%v' already exists on entity type %v", params.FieldKey, entityType.Id), http.StatusConflict)
		}

		if result := txn.Create(&field); result.Error != nil {
			slog.Error("sql error creating field", "type_id", entityType.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for _, choice := range params.Choices {
			row := schema.EntityFieldChoice{Id: uuid.New(), FieldId: field.Id, Value: choice.Value, Label: choice.Label, SortOrder: choice.SortOrder}
			if result := txn.Create(&row); result.Error != nil {
				slog.Error("sql error creating field choice", "field_id", field.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, fieldInfo(field))
}

func (s *EntityTypeService) UpdateField(w http.ResponseWriter, r *http.Request) {
	entityType, user, err := s.loadTypeContext(r, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	allowed, err := s.canManageType(user, entityType.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not modify entity type %v", user.Id, entityType.Id), http.StatusForbidden)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var field schema.EntityField
	result := s.db.Preload("Choices").First(&field, "id = ? AND entity_type_id = ?", fieldId, entityType.Id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, schema.ErrFieldNotFound.Error(), http.StatusNotFound)
			return
		}
		slog.Error("sql error loading field", "field_id", fieldId, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	var params fieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	// The field key is the stored identity of every value row, so it can
	// never change once created. Same for the value column the type selects.
	if params.FieldKey != "" && params.FieldKey != field.FieldKey {
		http.Error(w, "fieldKey cannot be changed", http.StatusBadRequest)
		return
	}
	if params.FieldType != "" && params.FieldType != field.FieldType {
		http.Error(w, "fieldType cannot be changed", http.StatusBadRequest)
		return
	}

	if params.Label != "" {
		field.Label = params.Label
	}
	if params.Required != nil {
		field.Required = *params.Required
	}
	if params.SortOrder != nil {
		field.SortOrder = *params.SortOrder
	}
	if params.SectionId != nil {
		field.SectionId = params.SectionId
	}
	if params.Conditions != nil {
		field.Conditions = *params.Conditions
	}
	if params.ReferenceEntityTypeId != nil {
		field.ReferenceEntityTypeId = params.ReferenceEntityTypeId
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		field.Choices = nil
		if result := txn.Save(&field); result.Error != nil {
			slog.Error("sql error updating field", "field_id", field.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if params.Choices != nil {
			if result := txn.Delete(&schema.EntityFieldChoice{}, "field_id = ?", field.Id); result.Error != nil {
				slog.Error("sql error replacing field choices", "field_id", field.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			for _, choice := range params.Choices {
				row := schema.EntityFieldChoice{Id: uuid.New(), FieldId: field.Id, Value: choice.Value, Label: choice.Label, SortOrder: choice.SortOrder}
				if result := txn.Create(&row); result.Error != nil {
					slog.Error("sql error creating field choice", "field_id", field.Id, "error", result.Error)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
			}
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *EntityTypeService) DeleteField(w http.ResponseWriter, r *http.Request) {
	entityType, user, err := s.loadTypeContext(r, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	allowed, err := s.canManageType(user, entityType.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not modify entity type %v", user.Id, entityType.Id), http.StatusForbidden)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var field schema.EntityField
		result := txn.First(&field, "id = ? AND entity_type_id = ?", fieldId, entityType.Id)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(schema.ErrFieldNotFound, http.StatusNotFound)
			}
			slog.Error("sql error loading field", "field_id", fieldId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		steps := []*gorm.DB{
			txn.Where("field_id = ?", field.Id).Delete(&schema.EntityFieldValue{}),
			txn.Where("field_id = ?", field.Id).Delete(&schema.EntityFieldChoice{}),
			txn.Delete(&schema.EntityField{Id: field.Id}),
		}
		for _, result := range steps {
			if result.Error != nil {
				slog.Error("sql error deleting field", "field_id", field.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
