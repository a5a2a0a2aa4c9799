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

const entityAuditKey = "entity"

type EntityService struct {
	db *gorm.DB

	userAuth auth.IdentityProvider
}

func (s *EntityService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)

		r.Route("/{entity_id}", func(r chi.Router) {
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

type EntityInfo struct {
	EntityId          uuid.UUID  `json:"entityId"`
	WorldId           uuid.UUID  `json:"worldId"`
	EntityTypeId      uuid.UUID  `json:"entityTypeId"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	CurrentLocationId *uuid.UUID `json:"currentLocationId"`
	CreatedById       uuid.UUID  `json:"createdById"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`

	FieldValues map[string]interface{} `json:"fieldValues,omitempty"`

	// Management affordance hints for non-admin callers.
	AccessAllowed *bool `json:"accessAllowed,omitempty"`
	AuditAllowed  *bool `json:"auditAllowed,omitempty"`
}

func entityInfo(entity schema.Entity) EntityInfo {
	return EntityInfo{
		EntityId:          entity.Id,
		WorldId:           entity.WorldId,
		EntityTypeId:      entity.EntityTypeId,
		Name:              entity.Name,
		Description:       entity.Description,
		CurrentLocationId: entity.CurrentLocationId,
		CreatedById:       entity.CreatedById,
		CreatedAt:         entity.CreatedAt,
		UpdatedAt:         entity.UpdatedAt,
	}
}

func splitFieldKeys(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *EntityService) List(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(entityListMetric)
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

	entityTypeId, err := queryParamUUID(r, "entityTypeId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
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

	filtersParam := r.URL.Query().Get("filters")
	fieldKeys := splitFieldKeys(r.URL.Query().Get("fieldKeys"))

	if (filtersParam != "" || len(fieldKeys) > 0) && entityTypeId == nil {
		http.Error(w, "entityTypeId is required when filters or fieldKeys are supplied", http.StatusBadRequest)
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

	query := s.db.Model(&schema.Entity{}).Where("entities.world_id = ?", world.Id)
	if !user.IsAdmin {
		query = query.Scopes(auth.EntityAccessFilter(roles, world.Id, campaignId, characterId))
	}
	if entityTypeId != nil {
		query = query.Where("entities.entity_type_id = ?", *entityTypeId)
	}

	var defs []fields.Definition
	if entityTypeId != nil {
		defs, err = fields.ListFields(s.db, *entityTypeId)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if filtersParam != "" {
			group, err := fields.ParseFilterGroup(filtersParam)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			compiler := fields.NewCompiler(fields.EntityStorage)
			query = query.Scopes(compiler.Compile(group, fields.ByKey(defs)))
		}
	}

	var entities []schema.Entity
	result := query.Order("entities.name").Find(&entities)
	if result.Error != nil {
		slog.Error("sql error listing entities", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("unable to list entities: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]EntityInfo, 0, len(entities))
	for _, entity := range entities {
		info := entityInfo(entity)
		if entityTypeId != nil {
			values, err := fields.ReadEntityValues(s.db, entity.Id, defs, fieldKeys...)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			info.FieldValues = values
		}
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, infos)
}

type createEntityRequest struct {
	WorldId      uuid.UUID `json:"worldId"`
	EntityTypeId uuid.UUID `json:"entityTypeId"`

	Name              string     `json:"name"`
	Description       string     `json:"description"`
	CurrentLocationId *uuid.UUID `json:"currentLocationId"`

	FieldValues map[string]interface{} `json:"fieldValues"`

	ContextCampaignId  *uuid.UUID `json:"contextCampaignId"`
	ContextCharacterId *uuid.UUID `json:"contextCharacterId"`

	Access *AccessPayload `json:"access"`
}

func (s *EntityService) Create(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(entityCreateMetric)
	defer timer.ObserveDuration()

	var params createEntityRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.WorldId == uuid.Nil || params.EntityTypeId == uuid.Nil || strings.TrimSpace(params.Name) == "" {
		http.Error(w, "worldId, entityTypeId, and name are required", http.StatusBadRequest)
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

	entityType, err := schema.GetEntityType(params.EntityTypeId, s.db, false)
	if err != nil {
		if errors.Is(err, schema.ErrEntityTypeNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entityType.WorldId == nil {
		http.Error(w, "cannot create entities from a template entity type", http.StatusBadRequest)
		return
	}
	if *entityType.WorldId != world.Id {
		http.Error(w, "entity type does not belong to the claimed world", http.StatusBadRequest)
		return
	}

	if err := checkContextBelongsToWorld(s.db, world.Id, params.ContextCampaignId, params.ContextCharacterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanCreateRecords(world.EntityPermissionScope) {
		http.Error(w, fmt.Sprintf("user %v may not create entities in world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	if params.CurrentLocationId != nil {
		if err := checkLocationReachable(s.db, roles, world.Id, *params.CurrentLocationId, params.ContextCampaignId, params.ContextCharacterId); err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
	}

	defs, err := fields.ListFields(s.db, entityType.Id)
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

	entity := schema.Entity{
		Id:                uuid.New(),
		WorldId:           world.Id,
		EntityTypeId:      entityType.Id,
		Name:              params.Name,
		Description:       params.Description,
		CurrentLocationId: params.CurrentLocationId,
		CreatedById:       user.Id,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&entity); result.Error != nil {
			slog.Error("sql error creating entity", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for key, raw := range params.FieldValues {
			def, known := defsByKey[key]
			if !known {
				continue
			}
			if err := fields.WriteEntityValue(txn, entity.Id, def, raw); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}

		grantRows := entityGrantRows(entity.Id, access.grants())
		if len(grantRows) > 0 {
			if result := txn.Create(&grantRows); result.Error != nil {
				slog.Error("sql error creating entity access grants", "entity_id", entity.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		details := map[string]interface{}{
			"name":         params.Name,
			"entityTypeId": entityType.Id,
			"fieldValues":  params.FieldValues,
			"access":       access,
		}
		return writeAudit(txn, entityAuditKey, entity.Id, user.Id, "create", details)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating entity: %v", err), GetResponseCode(err))
		return
	}

	info := entityInfo(entity)
	values, err := fields.ReadEntityValues(s.db, entity.Id, defs)
	if err == nil {
		info.FieldValues = values
	}
	utils.WriteJsonResponse(w, info)
}

// loadEntityContext resolves the addressed entity plus the caller's role
// snapshot for its world.
func (s *EntityService) loadEntityContext(r *http.Request, loadValues, loadAccess bool) (schema.Entity, auth.WorldRoles, schema.User, error) {
	entityId, err := utils.URLParamUUID(r, "entity_id")
	if err != nil {
		return schema.Entity{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.Entity{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	entity, err := schema.GetEntity(entityId, s.db, loadValues, loadAccess)
	if err != nil {
		if errors.Is(err, schema.ErrEntityNotFound) {
			return schema.Entity{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Entity{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	_, roles, err := loadWorldWithRoles(s.db, user, entity.WorldId)
	if err != nil {
		return schema.Entity{}, auth.WorldRoles{}, schema.User{}, err
	}

	return entity, roles, user, nil
}

func (s *EntityService) Get(w http.ResponseWriter, r *http.Request) {
	entity, roles, user, err := s.loadEntityContext(r, false, false)
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
		if err := checkEntityReachable(s.db, roles, entity.WorldId, entity.Id, campaignId, characterId); err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
	}

	defs, err := fields.ListFields(s.db, entity.EntityTypeId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := entityInfo(entity)
	values, err := fields.ReadEntityValues(s.db, entity.Id, defs)
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

type updateEntityRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`

	// Empty string clears the location; nil leaves it untouched.
	CurrentLocationId *string `json:"currentLocationId"`

	FieldValues map[string]interface{} `json:"fieldValues"`

	ContextCampaignId  *uuid.UUID `json:"contextCampaignId"`
	ContextCharacterId *uuid.UUID `json:"contextCharacterId"`
}

func previousFieldValue(entity schema.Entity, fieldId uuid.UUID) interface{} {
	for _, row := range entity.Values {
		if row.FieldId == fieldId {
			if value, ok := fields.Extract(row.ValueString, row.ValueText, row.ValueBoolean, row.ValueNumber, row.ValueJson); ok {
				return value
			}
			return nil
		}
	}
	return nil
}

func (s *EntityService) Update(w http.ResponseWriter, r *http.Request) {
	entity, roles, user, err := s.loadEntityContext(r, true, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var params updateEntityRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := checkContextBelongsToWorld(s.db, entity.WorldId, params.ContextCampaignId, params.ContextCharacterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	canWrite, err := auth.CanWriteRecord(s.db, roles, entity.Id, params.ContextCampaignId, params.ContextCharacterId, auth.EntityTables)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !canWrite {
		http.Error(w, fmt.Sprintf("user %v does not have write access to entity %v", user.Id, entity.Id), http.StatusForbidden)
		return
	}

	defs, err := fields.ListFields(s.db, entity.EntityTypeId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defsByKey := fields.ByKey(defs)

	if err := validateFieldValues(s.db, defsByKey, params.FieldValues, roles, entity.WorldId, params.ContextCampaignId, params.ContextCharacterId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var newLocation *uuid.UUID
	locationSupplied := params.CurrentLocationId != nil
	if locationSupplied && *params.CurrentLocationId != "" {
		locationId, err := uuid.Parse(*params.CurrentLocationId)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid currentLocationId '%v'", *params.CurrentLocationId), http.StatusBadRequest)
			return
		}
		if err := checkLocationReachable(s.db, roles, entity.WorldId, locationId, params.ContextCampaignId, params.ContextCharacterId); err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		newLocation = &locationId
	}

	changes := make([]FieldChange, 0)

	if params.Name != nil && *params.Name != entity.Name {
		changes = append(changes, FieldChange{FieldKey: "name", Label: "Name", From: entity.Name, To: *params.Name})
		entity.Name = *params.Name
	}
	if params.Description != nil && *params.Description != entity.Description {
		changes = append(changes, FieldChange{FieldKey: "description", Label: "Description", From: entity.Description, To: *params.Description})
		entity.Description = *params.Description
	}
	if locationSupplied {
		var from, to interface{}
		if entity.CurrentLocationId != nil {
			from = entity.CurrentLocationId.String()
		}
		if newLocation != nil {
			to = newLocation.String()
		}
		if !valuesEqual(from, to) {
			changes = append(changes, FieldChange{FieldKey: "currentLocationId", Label: "Location", From: from, To: to})
			entity.CurrentLocationId = newLocation
		}
	}

	for key, raw := range params.FieldValues {
		def, known := defsByKey[key]
		if !known {
			continue
		}
		previous := previousFieldValue(entity, def.FieldId)
		value, set := fields.MapValue(def, raw)
		next := normalizedValue(value, set)
		if !valuesEqual(previous, next) {
			changes = append(changes, FieldChange{FieldKey: key, Label: def.Label, From: previous, To: next})
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		entity.Values = nil
		if result := txn.Save(&entity); result.Error != nil {
			slog.Error("sql error updating entity", "entity_id", entity.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for key, raw := range params.FieldValues {
			def, known := defsByKey[key]
			if !known {
				continue
			}
			if err := fields.WriteEntityValue(txn, entity.Id, def, raw); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}

		if len(changes) > 0 {
			return writeAudit(txn, entityAuditKey, entity.Id, user.Id, "update", map[string]interface{}{"changes": changes})
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating entity: %v", err), GetResponseCode(err))
		return
	}

	info := entityInfo(entity)
	values, err := fields.ReadEntityValues(s.db, entity.Id, defs)
	if err == nil {
		info.FieldValues = values
	}
	utils.WriteJsonResponse(w, info)
}

func (s *EntityService) Delete(w http.ResponseWriter, r *http.Request) {
	entity, roles, user, err := s.loadEntityContext(r, false, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not delete entity %v", user.Id, entity.Id), http.StatusForbidden)
		return
	}

	// Deletion order matters: note tags and notes reference the entity, and
	// the audit row must capture the record before it disappears.
	err = s.db.Transaction(func(txn *gorm.DB) error {
		noteIds := txn.Model(&schema.Note{}).Select("id").Where("entity_id = ?", entity.Id)
		if result := txn.Where("entity_id = ? OR note_id IN (?)", entity.Id, noteIds).Delete(&schema.NoteTag{}); result.Error != nil {
			slog.Error("sql error deleting note tags for entity", "entity_id", entity.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Note{}, "entity_id = ?", entity.Id); result.Error != nil {
			slog.Error("sql error deleting notes for entity", "entity_id", entity.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		details := map[string]interface{}{"name": entity.Name, "entityTypeId": entity.EntityTypeId}
		if err := writeAudit(txn, entityAuditKey, entity.Id, user.Id, "delete", details); err != nil {
			return err
		}

		if result := txn.Delete(&schema.EntityAccess{}, "entity_id = ?", entity.Id); result.Error != nil {
			slog.Error("sql error deleting entity access grants", "entity_id", entity.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := fields.DeleteEntityValues(txn, entity.Id); err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Entity{Id: entity.Id}); result.Error != nil {
			slog.Error("sql error deleting entity", "entity_id", entity.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting entity: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *EntityService) GetAccess(w http.ResponseWriter, r *http.Request) {
	entity, roles, user, err := s.loadEntityContext(r, false, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not manage access for entity %v", user.Id, entity.Id), http.StatusForbidden)
		return
	}

	utils.WriteJsonResponse(w, entityGrantsToPayload(entity.Access))
}

func (s *EntityService) UpdateAccess(w http.ResponseWriter, r *http.Request) {
	entity, roles, user, err := s.loadEntityContext(r, false, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not manage access for entity %v", user.Id, entity.Id), http.StatusForbidden)
		return
	}

	var params AccessPayload
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	newGrants := params.grants()
	changed := grantSignature(entityGrants(entity.Access)) != grantSignature(newGrants)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.EntityAccess{}, "entity_id = ?", entity.Id); result.Error != nil {
			slog.Error("sql error clearing entity access grants", "entity_id", entity.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		grantRows := entityGrantRows(entity.Id, newGrants)
		if len(grantRows) > 0 {
			if result := txn.Create(&grantRows); result.Error != nil {
				slog.Error("sql error writing entity access grants", "entity_id", entity.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if changed {
			return writeAudit(txn, entityAuditKey, entity.Id, user.Id, "access_update", map[string]interface{}{"access": params})
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating entity access: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type AuditEvent struct {
	Action    string    `json:"action"`
	ActorId   uuid.UUID `json:"actorId"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
}

type auditResponse struct {
	Access AccessPayload `json:"access"`
	Events []AuditEvent  `json:"events"`
}

func (s *EntityService) Audit(w http.ResponseWriter, r *http.Request) {
	entity, roles, user, err := s.loadEntityContext(r, false, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanManageRecords() {
		http.Error(w, fmt.Sprintf("user %v may not view the audit log for entity %v", user.Id, entity.Id), http.StatusForbidden)
		return
	}

	var rows []schema.SystemAudit
	result := s.db.Where("entity_key = ? AND entity_id = ?", entityAuditKey, entity.Id).Order("created_at").Find(&rows)
	if result.Error != nil {
		slog.Error("sql error reading audit log", "entity_id", entity.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	events := make([]AuditEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, AuditEvent{Action: row.Action, ActorId: row.ActorId, Details: row.Details, CreatedAt: row.CreatedAt})
	}

	utils.WriteJsonResponse(w, auditResponse{Access: entityGrantsToPayload(entity.Access), Events: events})
}
