package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"worldkeeper/worldkeeper/auth"
	"worldkeeper/worldkeeper/fields"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func queryParamUUID(r *http.Request, key string) (*uuid.UUID, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid '%v' for query parameter %v: %w", value, key, err)
	}
	return &id, nil
}

func loadWorldWithRoles(db *gorm.DB, user schema.User, worldId uuid.UUID) (schema.World, auth.WorldRoles, error) {
	world, err := schema.GetWorld(worldId, db, false)
	if err != nil {
		if errors.Is(err, schema.ErrWorldNotFound) {
			return world, auth.WorldRoles{}, CodedError(err, http.StatusNotFound)
		}
		return world, auth.WorldRoles{}, CodedError(err, http.StatusInternalServerError)
	}

	roles, err := auth.LoadWorldRoles(db, user, world)
	if err != nil {
		return world, auth.WorldRoles{}, CodedError(err, http.StatusInternalServerError)
	}

	return world, roles, nil
}

// checkContextBelongsToWorld rejects campaign/character contexts claimed from
// a different world.
func checkContextBelongsToWorld(db *gorm.DB, worldId uuid.UUID, campaignId, characterId *uuid.UUID) error {
	if campaignId != nil {
		campaign, err := schema.GetCampaign(*campaignId, db)
		if err != nil {
			if errors.Is(err, schema.ErrCampaignNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		if campaign.WorldId != worldId {
			return CodedError(errors.New("campaign does not belong to the claimed world"), http.StatusBadRequest)
		}
	}

	if characterId != nil {
		character, err := schema.GetCharacter(*characterId, db)
		if err != nil {
			if errors.Is(err, schema.ErrCharacterNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		if character.WorldId != worldId {
			return CodedError(errors.New("character does not belong to the claimed world"), http.StatusBadRequest)
		}
	}

	return nil
}

// checkEntityReachable distinguishes a missing entity (404) from one the
// caller may not read (403), and rejects cross-world references.
func checkEntityReachable(db *gorm.DB, roles auth.WorldRoles, worldId, entityId uuid.UUID, campaignId, characterId *uuid.UUID) error {
	entity, err := schema.GetEntity(entityId, db, false, false)
	if err != nil {
		if errors.Is(err, schema.ErrEntityNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	if entity.WorldId != worldId {
		return CodedError(errors.New("referenced entity does not belong to the claimed world"), http.StatusBadRequest)
	}
	if roles.IsAdmin {
		return nil
	}

	var count int64
	result := db.Model(&schema.Entity{}).
		Scopes(auth.EntityAccessFilter(roles, worldId, campaignId, characterId)).
		Where("entities.id = ?", entityId).
		Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking entity reachability", "entity_id", entityId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if count == 0 {
		return CodedError(errors.New("referenced entity is not accessible"), http.StatusForbidden)
	}
	return nil
}

func checkLocationReachable(db *gorm.DB, roles auth.WorldRoles, worldId, locationId uuid.UUID, campaignId, characterId *uuid.UUID) error {
	location, err := schema.GetLocation(locationId, db, false, false)
	if err != nil {
		if errors.Is(err, schema.ErrLocationNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	if location.WorldId != worldId {
		return CodedError(errors.New("referenced location does not belong to the claimed world"), http.StatusBadRequest)
	}
	if roles.IsAdmin {
		return nil
	}

	var count int64
	result := db.Model(&schema.Location{}).
		Scopes(auth.LocationAccessFilter(roles, worldId, campaignId, characterId)).
		Where("locations.id = ?", locationId).
		Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking location reachability", "location_id", locationId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if count == 0 {
		return CodedError(errors.New("referenced location is not accessible"), http.StatusForbidden)
	}
	return nil
}

// validateFieldValues enforces choice membership, numeric parseability, and
// reference reachability for every supplied key that names a declared field.
// Keys absent from the registry are ignored so stale clients can submit extra
// keys without failing.
func validateFieldValues(db *gorm.DB, defs map[string]fields.Definition, values map[string]interface{}, roles auth.WorldRoles, worldId uuid.UUID, campaignId, characterId *uuid.UUID) error {
	for key, raw := range values {
		def, known := defs[key]
		if !known {
			continue
		}

		value, set := fields.MapValue(def, raw)

		// MapValue quietly maps unparseable numbers to unset; a non-empty
		// garbage string supplied for a NUMBER field is a client error.
		if def.FieldType == schema.NumberField && !set {
			if s, isString := raw.(string); isString && strings.TrimSpace(s) != "" {
				if _, parseable := fields.ParseNumber(s); !parseable {
					return CodedError(fmt.Errorf("invalid number '%v' for field %v", s, key), http.StatusBadRequest)
				}
			}
		}

		if !set {
			continue
		}

		switch def.FieldType {
		case schema.ChoiceField:
			if !def.HasChoice(value.Str) {
				return CodedError(fmt.Errorf("invalid choice '%v' for field %v", value.Str, key), http.StatusBadRequest)
			}

		case schema.EntityReferenceField:
			refId, err := uuid.Parse(value.Str)
			if err != nil {
				return CodedError(fmt.Errorf("invalid entity reference '%v' for field %v", value.Str, key), http.StatusBadRequest)
			}
			if err := checkEntityReachable(db, roles, worldId, refId, campaignId, characterId); err != nil {
				return err
			}
			if def.ReferenceEntityTypeId != nil {
				referenced, err := schema.GetEntity(refId, db, false, false)
				if err != nil {
					return CodedError(err, http.StatusInternalServerError)
				}
				if referenced.EntityTypeId != *def.ReferenceEntityTypeId {
					return CodedError(fmt.Errorf("field %v requires a reference of a different entity type", key), http.StatusBadRequest)
				}
			}

		case schema.LocationReferenceField:
			refId, err := uuid.Parse(value.Str)
			if err != nil {
				return CodedError(fmt.Errorf("invalid location reference '%v' for field %v", value.Str, key), http.StatusBadRequest)
			}
			if err := checkLocationReachable(db, roles, worldId, refId, campaignId, characterId); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkRequiredFields(defs []fields.Definition, values map[string]interface{}) error {
	for _, def := range defs {
		if !def.Required {
			continue
		}
		raw, supplied := values[def.FieldKey]
		if !supplied {
			return CodedError(fmt.Errorf("required field %v is missing", def.FieldKey), http.StatusBadRequest)
		}
		if _, set := fields.MapValue(def, raw); !set {
			return CodedError(fmt.Errorf("required field %v is empty", def.FieldKey), http.StatusBadRequest)
		}
	}
	return nil
}

type AccessScopeSpec struct {
	Global     bool        `json:"global"`
	Campaigns  []uuid.UUID `json:"campaigns"`
	Characters []uuid.UUID `json:"characters"`
}

type AccessPayload struct {
	Read  AccessScopeSpec `json:"read"`
	Write AccessScopeSpec `json:"write"`
}

// defaultAccessPayload is the grant set applied when a create request carries
// no explicit access block: campaign-scoped READ+WRITE when a campaign
// context was supplied, GLOBAL READ+WRITE otherwise. Without this default a
// newly created record would be invisible to everyone but its creator.
func defaultAccessPayload(campaignId *uuid.UUID) AccessPayload {
	if campaignId != nil {
		return AccessPayload{
			Read:  AccessScopeSpec{Campaigns: []uuid.UUID{*campaignId}},
			Write: AccessScopeSpec{Campaigns: []uuid.UUID{*campaignId}},
		}
	}
	return AccessPayload{
		Read:  AccessScopeSpec{Global: true},
		Write: AccessScopeSpec{Global: true},
	}
}

type grant struct {
	Permission string
	Scope      string
	ScopeId    *uuid.UUID
}

func (p AccessPayload) grants() []grant {
	var out []grant

	expand := func(permission string, spec AccessScopeSpec) {
		if spec.Global {
			out = append(out, grant{Permission: permission, Scope: schema.GlobalScope})
		}
		for _, id := range spec.Campaigns {
			scopeId := id
			out = append(out, grant{Permission: permission, Scope: schema.CampaignScope, ScopeId: &scopeId})
		}
		for _, id := range spec.Characters {
			scopeId := id
			out = append(out, grant{Permission: permission, Scope: schema.CharacterScope, ScopeId: &scopeId})
		}
	}

	expand(schema.ReadPerm, p.Read)
	expand(schema.WritePerm, p.Write)
	return out
}

// grantSignature is a canonical encoding of a grant set, used to detect
// whether an access update actually changed anything.
func grantSignature(grants []grant) string {
	parts := make([]string, 0, len(grants))
	for _, g := range grants {
		scopeId := ""
		if g.ScopeId != nil {
			scopeId = g.ScopeId.String()
		}
		parts = append(parts, g.Permission+"|"+g.Scope+"|"+scopeId)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func entityGrantRows(entityId uuid.UUID, grants []grant) []schema.EntityAccess {
	rows := make([]schema.EntityAccess, 0, len(grants))
	for _, g := range grants {
		rows = append(rows, schema.EntityAccess{
			Id:         uuid.New(),
			EntityId:   entityId,
			Permission: g.Permission,
			Scope:      g.Scope,
			ScopeId:    g.ScopeId,
		})
	}
	return rows
}

func locationGrantRows(locationId uuid.UUID, grants []grant) []schema.LocationAccess {
	rows := make([]schema.LocationAccess, 0, len(grants))
	for _, g := range grants {
		rows = append(rows, schema.LocationAccess{
			Id:         uuid.New(),
			LocationId: locationId,
			Permission: g.Permission,
			Scope:      g.Scope,
			ScopeId:    g.ScopeId,
		})
	}
	return rows
}

func entityGrantsToPayload(rows []schema.EntityAccess) AccessPayload {
	var payload AccessPayload
	for _, row := range rows {
		spec := &payload.Read
		if row.Permission == schema.WritePerm {
			spec = &payload.Write
		}
		switch row.Scope {
		case schema.GlobalScope:
			spec.Global = true
		case schema.CampaignScope:
			if row.ScopeId != nil {
				spec.Campaigns = append(spec.Campaigns, *row.ScopeId)
			}
		case schema.CharacterScope:
			if row.ScopeId != nil {
				spec.Characters = append(spec.Characters, *row.ScopeId)
			}
		}
	}
	return payload
}

func entityGrants(rows []schema.EntityAccess) []grant {
	out := make([]grant, 0, len(rows))
	for _, row := range rows {
		out = append(out, grant{Permission: row.Permission, Scope: row.Scope, ScopeId: row.ScopeId})
	}
	return out
}

func locationGrantsToPayload(rows []schema.LocationAccess) AccessPayload {
	var payload AccessPayload
	for _, row := range rows {
		spec := &payload.Read
		if row.Permission == schema.WritePerm {
			spec = &payload.Write
		}
		switch row.Scope {
		case schema.GlobalScope:
			spec.Global = true
		case schema.CampaignScope:
			if row.ScopeId != nil {
				spec.Campaigns = append(spec.Campaigns, *row.ScopeId)
			}
		case schema.CharacterScope:
			if row.ScopeId != nil {
				spec.Characters = append(spec.Characters, *row.ScopeId)
			}
		}
	}
	return payload
}

func locationGrants(rows []schema.LocationAccess) []grant {
	out := make([]grant, 0, len(rows))
	for _, row := range rows {
		out = append(out, grant{Permission: row.Permission, Scope: row.Scope, ScopeId: row.ScopeId})
	}
	return out
}

// FieldChange is one entry in an update's change log.
type FieldChange struct {
	FieldKey string      `json:"fieldKey"`
	Label    string      `json:"label"`
	From     interface{} `json:"from"`
	To       interface{} `json:"to"`
}

// normalizedValue flattens a mapped value for diffing, mirroring what a
// subsequent read would return.
func normalizedValue(v fields.Value, set bool) interface{} {
	if !set {
		return nil
	}
	switch v.Kind {
	case fields.StringKind, fields.TextKind, fields.JsonKind:
		return v.Str
	case fields.BoolKind:
		return v.Bool
	case fields.NumberKind:
		return v.Num
	}
	return nil
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

func writeAudit(tx *gorm.DB, entityKey string, recordId, actorId uuid.UUID, action string, details interface{}) error {
	blob, err := json.Marshal(details)
	if err != nil {
		slog.Error("error serializing audit details", "action", action, "error", err)
		return CodedError(errors.New("error recording audit entry"), http.StatusInternalServerError)
	}

	row := schema.SystemAudit{
		Id:        uuid.New(),
		EntityKey: entityKey,
		EntityId:  recordId,
		Action:    action,
		ActorId:   actorId,
		Details:   string(blob),
	}
	result := tx.Create(&row)
	if result.Error != nil {
		slog.Error("sql error writing audit entry", "action", action, "record_id", recordId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return nil
}
