package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"worldkeeper/utils"
	"worldkeeper/worldkeeper/auth"
	"worldkeeper/worldkeeper/fields"
	"worldkeeper/worldkeeper/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const locationAuditKey = "location"

type LocationService struct {
	db *gorm.DB

	userAuth auth.IdentityProvider
}

func (s *LocationService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)

		r.Get("/fields", s.ListFields)
		r.Post("/fields", s.CreateField)
		r.Put("/fields/{field_id}", s.UpdateField)
		r.Delete("/fields/{field_id}", s.DeleteField)

		r.Route("/{location_id}", func(r chi.Router) {
			r.Get("/", s.Get)
			r.Put("/", s.Update)
			r.Delete("/", s.Delete)

			r.Get("/access", s.GetAccess)
			r.Put("/access", s.UpdateAccess)
			r.Get("/audit", s.Audit)
		})
	})

	return r
}

type LocationInfo struct {
	LocationId  uuid.UUID `json:"locationId"`
	WorldId     uuid.UUID `json:"worldId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedById uuid.UUID `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	FieldValues map[string]interface{} `json:"fieldValues,omitempty"`

	AccessAllowed *bool `json:"accessAllowed,omitempty"`
	AuditAllowed  *bool `json:"auditAllowed,omitempty"`
}

func locationInfo(location schema.Location) LocationInfo {
	return LocationInfo{
		LocationId:  location.Id,
		WorldId:     location.WorldId,
		Name:        location.Name,
		Description: location.Description,
		CreatedById: location.CreatedById,
		CreatedAt:   location.CreatedAt,
		UpdatedAt:   location.UpdatedAt,
	}
}

func (s *LocationService) List(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(locationListMetric)
	defer timer.ObserveDuration()

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
	if worldId == nil {
		http.Error(w, "worldId query parameter is required", http.StatusBadRequest)
		return
	}

	campaignId, err := queryParamUUID(r, "campaignId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	characterId, err := queryParamUUID(r, "characterId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	world, roles, err := loadWorldWithRoles(s.db, user, *worldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !roles.CanAccessWorld() {
		http.Error(w, fmt.Sprintf("user %v cannot access world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	if err := checkContextBelongsToWorld(s.db, world.Id, campaignId, characterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	defs, err := fields.ListLocationFields(s.db, world.Id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Model(&schema.Location{}).Where("locations.world_id = ?", world.Id)
	if !user.IsAdmin {
		query = query.Scopes(auth.LocationAccessFilter(roles, world.Id, campaignId, characterId))
	}

	if filtersParam := r.URL.Query().Get("filters"); filtersParam != "" {
		group, err := fields.ParseFilterGroup(filtersParam)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		compiler := fields.NewCompiler(fields.LocationStorage)
		query = query.Scopes(compiler.Compile(group, fields.ByKey(defs)))
	}

	var locations []schema.Location
	result := query.Order("locations.name").Find(&locations)
	if result.Error != nil {
		slog.Error("sql error listing locations", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("unable to list locations: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	fieldKeys := splitFieldKeys(r.URL.Query().Get("fieldKeys"))

	infos := make([]LocationInfo, 0, len(locations))
	for _, location := range locations {
		info := locationInfo(location)
		values, err := fields.ReadLocationValues(s.db, location.Id, defs, fieldKeys...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		info.FieldValues = values
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, infos)
}

type createLocationRequest struct {
	WorldId uuid.UUID `json:"worldId"`

	Name        string `json:"name"`
	Description string `json:"description"`

	FieldValues map[string]interface{} `json:"fieldValues"`

	ContextCampaignId  *uuid.UUID `json:"contextCampaignId"`
	ContextCharacterId *uuid.UUID `json:"contextCharacterId"`

	Access *AccessPayload `json:"access"`
}

func (s *LocationService) Create(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(locationCreateMetric)
	defer timer.ObserveDuration()

	var params createLocationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.WorldId == uuid.Nil || strings.TrimSpace(params.Name) == "" {
		http.Error(w, "worldId and name are required", http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	world, roles, err := loadWorldWithRoles(s.db, user, params.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := checkContextBelongsToWorld(s.db, world.Id, params.ContextCampaignId, params.ContextCharacterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanCreateRecords(world.EntityPermissionScope) {
		http.Error(w, fmt.Sprintf("user %v may not create locations in world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	defs, err := fields.ListLocationFields(s.db, world.Id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defsByKey := fields.ByKey(defs)

	if err := checkRequiredFields(defs, params.FieldValues); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := validateFieldValues(s.db, defsByKey, params.FieldValues, roles, world.Id, params.ContextCampaignId, params.ContextCharacterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	access := defaultAccessPayload(params.ContextCampaignId)
	if params.Access != nil {
		access = *params.Access
	}

	location := schema.Location{
		Id:          uuid.New(),
		WorldId:     world.Id,
		Name:        params.Name,
		Description: params.Description,
		CreatedById: user.Id,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&location); result.Error != nil {
			slog.Error("sql error creating location", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for key, raw := range params.FieldValues {
			def, known := defsByKey[key]
			if !known {
				continue
			}
			if err := fields.WriteLocationValue(txn, location.Id, def, raw); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}

		grantRows := locationGrantRows(location.Id, access.grants())
		if len(grantRows) > 0 {
			if result := txn.Create(&grantRows); result.Error != nil {
				slog.Error("sql error creating location access grants", "location_id", location.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		details := map[string]interface{}{
			"name":        params.Name,
			"fieldValues": params.FieldValues,
			"access":      access,
		}
		return writeAudit(txn, locationAuditKey, location.Id, user.Id, "create", details)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating location: %v", err), GetResponseCode(err))
		return
	}

	info := locationInfo(location)
	values, err := fields.ReadLocationValues(s.db, location.Id, defs)
	if err == nil {
		info.FieldValues = values
	}
	utils.WriteJsonResponse(w, info)
}

func (s *LocationService) loadLocationContext(r *http.Request, loadValues, loadAccess bool) (schema.Location, auth.WorldRoles, schema.User, error) {
	locationId, err := utils.URLParamUUID(r, "location_id")
	if err != nil {
		return schema.Location{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.Location{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	location, err := schema.GetLocation(locationId, s.db, loadValues, loadAccess)
	if err != nil {
		if errors.Is(err, schema.ErrLocationNotFound) {
			return schema.Location{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Location{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	_, roles, err := loadWorldWithRoles(s.db, user, location.WorldId)
	if err != nil {
		return schema.Location{}, auth.WorldRoles{}, schema.User{}, err
	}

	return location, roles, user, nil
}

func (s *LocationService) Get(w http.ResponseWriter, r *http.Request) {
	location, roles, user, err := s.loadLocationContext(r, false, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	campaignId, err := queryParamUUID(r, "campaignId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	characterId, err := queryParamUUID(r, "characterId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !user.IsAdmin {
		if err := checkLocationReachable(s.db, roles, location.WorldId, location.Id, campaignId, characterId); err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
	}

	defs, err := fields.ListLocationFields(s.db, location.WorldId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := locationInfo(location)
	values, err := fields.ReadLocationValues(s.db, location.Id, defs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	info.FieldValues = values

	if !user.IsAdmin {
		manage := roles.CanManageRecords()
		info.AccessAllowed = &manage
		info.AuditAllowed = &manage
	}

	utils.WriteJsonResponse(w, info)
}

type updateLocationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`

	FieldValues map[string]interface{} `json:"fieldValues"`

	ContextCampaignId  *uuid.UUID `json:"contextCampaignId"`
	ContextCharacterId *uuid.UUID `json:"contextCharacterId"`
}

func previousLocationValue(location schema.Location, fieldId uuid.UUID) interface{} {
	for _, row := range location.Values {
		if row.FieldId == fieldId {
			if value, ok := fields.Extract(row.ValueString, row.ValueText, row.ValueBoolean, row.ValueNumber, row.ValueJson); ok {
				return value
			}
			return nil
		}
	}
	return nil
}

func (s *LocationService) Update(w http.ResponseWriter, r *http.Request) {
	location, roles, user, err := s.loadLocationContext(r, true, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var params updateLocationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := checkContextBelongsToWorld(s.db, location.WorldId, params.ContextCampaignId, params.ContextCharacterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	canWrite, err := auth.CanWriteRecord(s.db, roles, location.Id, params.ContextCampaignId, params.ContextCharacterId, auth.LocationTables)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !canWrite {
		http.Error(w, fmt.Sprintf("user %v does not have write access to location %v", user.Id, location.Id), http.StatusForbidden)
		return
	}

	defs, err := fields.ListLocationFields(s.db, location.WorldId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defsByKey := fields.ByKey(defs)

	if err := validateFieldValues(s.db, defsByKey, params.FieldValues, roles, location.WorldId, params.ContextCampaignId, params.ContextCharacterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	changes := make([]FieldChange, 0)

	if params.Name != nil && *params.Name != location.Name {
		changes = append(changes, FieldChange{FieldKey: "name", Label: "Name", From: location.Name, To: *params.Name})
		location.Name = *params.Name
	}
	if params.Description != nil && *params.Description != location.Description {
		changes = append(changes, FieldChange{FieldKey: "description", Label: "Description", From: location.Description, To: *params.Description})
		location.Description = *params.Description
	}

	for key, raw := range params.FieldValues {
		def, known := defsByKey[key]
		if !known {
			continue
		}
		previous := previousLocationValue(location, def.FieldId)
		value, set := fields.MapValue(def, raw)
		next := normalizedValue(value, set)
		if !valuesEqual(previous, next) {
			changes = append(changes, FieldChange{FieldKey: key, Label: def.Label, From: previous, To: next})
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		location.Values = nil
		if result := txn.Save(&location); result.Error != nil {
			slog.Error("sql error updating location", "location_id", location.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for key, raw := range params.FieldValues {
			def, known := defsByKey[key]
			if !known {
				continue
			}
			if err := fields.WriteLocationValue(txn, location.Id, def, raw); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}

		if len(changes) > 0 {
			return writeAudit(txn, locationAuditKey, location.Id, user.Id, "update", map[string]interface{}{"changes": changes})
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating location: %v", err), GetResponseCode(err))
		return
	}

	info := locationInfo(location)
	values, err := fields.ReadLocationValues(s.db, location.Id, defs)
	if err == nil {
		info.FieldValues = values
	}
	utils.WriteJsonResponse(w, info)
}

func (s *LocationService) Delete(w http.ResponseWriter, r *http.Request) {
	location, roles, user, err := s.loadLocationContext(r, false, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not delete location %v", user.Id, location.Id), http.StatusForbidden)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		// Entities pointing at this location are detached, not deleted.
		result := txn.Model(&schema.Entity{}).Where("current_location_id = ?", location.Id).Update("current_location_id", nil)
		if result.Error != nil {
			slog.Error("sql error detaching entities from location", "location_id", location.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		details := map[string]interface{}{"name": location.Name}
		if err := writeAudit(txn, locationAuditKey, location.Id, user.Id, "delete", details); err != nil {
			return err
		}

		if result := txn.Delete(&schema.LocationAccess{}, "location_id = ?", location.Id); result.Error != nil {
			slog.Error("sql error deleting location access grants", "location_id", location.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := fields.DeleteLocationValues(txn, location.Id); err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Location{Id: location.Id}); result.Error != nil {
			slog.Error("sql error deleting location", "location_id", location.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting location: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *LocationService) GetAccess(w http.ResponseWriter, r *http.Request) {
	location, roles, user, err := s.loadLocationContext(r, false, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not manage access for location %v", user.Id, location.Id), http.StatusForbidden)
		return
	}

	utils.WriteJsonResponse(w, locationGrantsToPayload(location.Access))
}

func (s *LocationService) UpdateAccess(w http.ResponseWriter, r *http.Request) {
	location, roles, user, err := s.loadLocationContext(r, false, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not manage access for location %v", user.Id, location.Id), http.StatusForbidden)
		return
	}

	var params AccessPayload
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	newGrants := params.grants()
	changed := grantSignature(locationGrants(location.Access)) != grantSignature(newGrants)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.LocationAccess{}, "location_id = ?", location.Id); result.Error != nil {
			slog.Error("sql error clearing location access grants", "location_id", location.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		grantRows := locationGrantRows(location.Id, newGrants)
		if len(grantRows) > 0 {
			if result := txn.Create(&grantRows); result.Error != nil {
				slog.Error("sql error writing location access grants", "location_id", location.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if changed {
			return writeAudit(txn, locationAuditKey, location.Id, user.Id, "access_update", map[string]interface{}{"access": params})
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating location access: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// canManageLocationFields: the location field registry is world schema, so it
// belongs to architects.
func (s *LocationService) canManageLocationFields(user schema.User, worldId uuid.UUID) (bool, error) {
	if user.IsAdmin {
		return true, nil
	}
	_, roles, err := loadWorldWithRoles(s.db, user, worldId)
	if err != nil {
		return false, err
	}
	return roles.Architect, nil
}

func locationFieldInfo(field schema.LocationField) FieldInfo {
	info := FieldInfo{
		FieldId:               field.Id,
		FieldKey:              field.FieldKey,
		Label:                 field.Label,
		FieldType:             field.FieldType,
		Required:              field.Required,
		SortOrder:             field.SortOrder,
		ReferenceEntityTypeId: field.ReferenceEntityTypeId,
		Conditions:            field.Conditions,
	}
	for _, choice := range field.Choices {
		info.Choices = append(info.Choices, ChoiceInfo{Value: choice.Value, Label: choice.Label, SortOrder: choice.SortOrder})
	}
	return info
}

func (s *LocationService) ListFields(w http.ResponseWriter, r *http.Request) {
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
	if worldId == nil {
		http.Error(w, "worldId query parameter is required", http.StatusBadRequest)
		return
	}

	world, roles, err := loadWorldWithRoles(s.db, user, *worldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !roles.CanAccessWorld() {
		http.Error(w, fmt.Sprintf("user %v cannot access world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	var rows []schema.LocationField
	result := s.db.Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("location_field_choices.sort_order") }).
		Where("world_id = ?", world.Id).Order("sort_order").Find(&rows)
	if result.Error != nil {
		slog.Error("sql error listing location fields", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing location fields: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]FieldInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, locationFieldInfo(row))
	}
	utils.WriteJsonResponse(w, infos)
}

type locationFieldRequest struct {
	WorldId uuid.UUID `json:"worldId"`

	FieldKey  string `json:"fieldKey"`
	Label     string `json:"label"`
	FieldType string `json:"fieldType"`
	Required  *bool  `json:"required"`
	SortOrder *int   `json:"sortOrder"`

	ReferenceEntityTypeId *uuid.UUID `json:"referenceEntityTypeId"`
	Conditions            *string    `json:"conditions"`

	Choices []ChoiceInfo `json:"choices"`
}

func (s *LocationService) CreateField(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params locationFieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.WorldId == uuid.Nil {
		http.Error(w, "worldId is required", http.StatusBadRequest)
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

	allowed, err := s.canManageLocationFields(user, params.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not manage location fields in world %v", user.Id, params.WorldId), http.StatusForbidden)
		return
	}

	field := schema.LocationField{
		Id:                    uuid.New(),
		WorldId:               params.WorldId,
		FieldKey:              params.FieldKey,
		Label:                 params.Label,
		FieldType:             params.FieldType,
		ReferenceEntityTypeId: params.ReferenceEntityTypeId,
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
		result := txn.Model(&schema.LocationField{}).Where("world_id = ? AND field_key = ?", params.WorldId, params.FieldKey).Count(&count)
		if result.Error != nil {
			slog.Error("sql error checking location field key uniqueness", "world_id", params.WorldId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("field key '%v' already exists in world %v", params.FieldKey, params.WorldId), http.StatusConflict)
		}

		if result := txn.Create(&field); result.Error != nil {
			slog.Error("sql error creating location field", "world_id", params.WorldId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for _, choice := range params.Choices {
			row := schema.LocationFieldChoice{Id: uuid.New(), FieldId: field.Id, Value: choice.Value, Label: choice.Label, SortOrder: choice.SortOrder}
			if result := txn.Create(&row); result.Error != nil {
				slog.Error("sql error creating location field choice", "field_id", field.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating location field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, locationFieldInfo(field))
}

func (s *LocationService) UpdateField(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var field schema.LocationField
	result := s.db.Preload("Choices").First(&field, "id = ?", fieldId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, schema.ErrFieldNotFound.Error(), http.StatusNotFound)
			return
		}
		slog.Error("sql error loading location field", "field_id", fieldId, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	allowed, err := s.canManageLocationFields(user, field.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not manage location fields in world %v", user.Id, field.WorldId), http.StatusForbidden)
		return
	}

	var params locationFieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	// Same immutability contract as entity fields: the key and the value
	// column are fixed at creation.
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
	if params.Conditions != nil {
		field.Conditions = *params.Conditions
	}
	if params.ReferenceEntityTypeId != nil {
		field.ReferenceEntityTypeId = params.ReferenceEntityTypeId
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		field.Choices = nil
		if result := txn.Save(&field); result.Error != nil {
			slog.Error("sql error updating location field", "field_id", field.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if params.Choices != nil {
			if result := txn.Delete(&schema.LocationFieldChoice{}, "field_id = ?", field.Id); result.Error != nil {
				slog.Error("sql error replacing location field choices", "field_id", field.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			for _, choice := range params.Choices {
				row := schema.LocationFieldChoice{Id: uuid.New(), FieldId: field.Id, Value: choice.Value, Label: choice.Label, SortOrder: choice.SortOrder}
				if result := txn.Create(&row); result.Error != nil {
					slog.Error("sql error creating location field choice", "field_id", field.Id, "error", result.Error)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
			}
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating location field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *LocationService) DeleteField(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var field schema.LocationField
	result := s.db.First(&field, "id = ?", fieldId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, schema.ErrFieldNotFound.Error(), http.StatusNotFound)
			return
		}
		slog.Error("sql error loading location field", "field_id", fieldId, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	allowed, err := s.canManageLocationFields(user, field.WorldId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user %v may not manage location fields in world %v", user.Id, field.WorldId), http.StatusForbidden)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		steps := []*gorm.DB{
			txn.Where("field_id = ?", field.Id).Delete(&schema.LocationFieldValue{}),
			txn.Where("field_id = ?", field.Id).Delete(&schema.LocationFieldChoice{}),
			txn.Delete(&schema.LocationField{Id: field.Id}),
		}
		for _, result := range steps {
			if result.Error != nil {
				slog.Error("sql error deleting location field", "field_id", field.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting location field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *LocationService) Audit(w http.ResponseWriter, r *http.Request) {
	location, roles, user, err := s.loadLocationContext(r, false, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not view the audit log for location %v", user.Id, location.Id), http.StatusForbidden)
		return
	}

	var rows []schema.SystemAudit
	result := s.db.Where("entity_key = ? AND entity_id = ?", locationAuditKey, location.Id).Order("created_at").Find(&rows)
	if result.Error != nil {
		slog.Error("sql error reading audit log", "location_id", location.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	events := make([]AuditEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, AuditEvent{Action: row.Action, ActorId: row.ActorId, Details: row.Details, CreatedAt: row.CreatedAt})
	}

	utils.WriteJsonResponse(w, auditResponse{Access: locationGrantsToPayload(location.Access), Events: events})
}
