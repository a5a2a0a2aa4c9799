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
	"worldkeeper/worldkeeper/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CharacterService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *CharacterService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)

		r.Route("/{character_id}", func(r chi.Router) {
			r.Get("/", s.Get)
			r.Put("/", s.Update)
			r.Delete("/", s.Delete)
		})
	})

	return r
}

type CharacterInfo struct {
	CharacterId uuid.UUID `json:"characterId"`
	WorldId     uuid.UUID `json:"worldId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PlayerId    uuid.UUID `json:"playerId"`
	CreatedById uuid.UUID `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
}

func characterInfo(character schema.Character) CharacterInfo {
	return CharacterInfo{
		CharacterId: character.Id,
		WorldId:     character.WorldId,
		Name:        character.Name,
		Description: character.Description,
		PlayerId:    character.PlayerId,
		CreatedById: character.CreatedById,
		CreatedAt:   character.CreatedAt,
	}
}

func (s *CharacterService) List(w http.ResponseWriter, r *http.Request) {
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

	query := s.db.Where("world_id = ?", world.Id)
	// Players only see their own characters; GMs and architects see all.
	if !roles.IsAdmin && !roles.Architect && !roles.AnyGm() {
		query = query.Where("player_id = ?", user.Id)
	}

	var characters []schema.Character
	result := query.Order("name").Find(&characters)
	if result.Error != nil {
		slog.Error("sql error listing characters", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing characters: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CharacterInfo, 0, len(characters))
	for _, character := range characters {
		infos = append(infos, characterInfo(character))
	}
	utils.WriteJsonResponse(w, infos)
}

type createCharacterRequest struct {
	WorldId     uuid.UUID `json:"worldId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`

	// Defaults to the caller if unset.
	PlayerId *uuid.UUID `json:"playerId"`
}

func (s *CharacterService) Create(w http.ResponseWriter, r *http.Request) {
	var params createCharacterRequest
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
	if !roles.CanAccessWorld() {
		http.Error(w, fmt.Sprintf("user %v cannot access world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	playerId := user.Id
	if params.PlayerId != nil && *params.PlayerId != user.Id {
		if !roles.IsAdmin && !roles.Architect && !roles.AnyGm() {
			http.Error(w, "only game masters may create characters for other players", http.StatusForbidden)
			return
		}
		if _, err := schema.GetUser(*params.PlayerId, s.db); err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		playerId = *params.PlayerId
	}

	character := schema.Character{
		Id:          uuid.New(),
		WorldId:     world.Id,
		Name:        params.Name,
		Description: params.Description,
		PlayerId:    playerId,
		CreatedById: user.Id,
	}

	if result := s.db.Create(&character); result.Error != nil {
		slog.Error("sql error creating character", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating character: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, characterInfo(character))
}

func (s *CharacterService) loadCharacterContext(r *http.Request) (schema.Character, auth.WorldRoles, schema.User, error) {
	characterId, err := utils.URLParamUUID(r, "character_id")
	if err != nil {
		return schema.Character{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.Character{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	character, err := schema.GetCharacter(characterId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCharacterNotFound) {
			return schema.Character{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Character{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	_, roles, err := loadWorldWithRoles(s.db, user, character.WorldId)
	if err != nil {
		return schema.Character{}, auth.WorldRoles{}, schema.User{}, err
	}

	return character, roles, user, nil
}

func canManageCharacter(roles auth.WorldRoles, character schema.Character, user schema.User) bool {
	return roles.IsAdmin || roles.Architect || roles.AnyGm() || character.PlayerId == user.Id
}

func (s *CharacterService) Get(w http.ResponseWriter, r *http.Request) {
	character, roles, user, err := s.loadCharacterContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !canManageCharacter(roles, character, user) {
		http.Error(w, fmt.Sprintf("user %v cannot access character %v", user.Id, character.Id), http.StatusForbidden)
		return
	}

	utils.WriteJsonResponse(w, characterInfo(character))
}

type updateCharacterRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	PlayerId    *uuid.UUID `json:"playerId"`
}

func (s *CharacterService) Update(w http.ResponseWriter, r *http.Request) {
	character, roles, user, err := s.loadCharacterContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !canManageCharacter(roles, character, user) {
		http.Error(w, fmt.Sprintf("user %v may not update character %v", user.Id, character.Id), http.StatusForbidden)
		return
	}

	var params updateCharacterRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name != nil {
		if strings.TrimSpace(*params.Name) == "" {
			http.Error(w, "name cannot be empty", http.StatusBadRequest)
			return
		}
		character.Name = *params.Name
	}
	if params.Description != nil {
		character.Description = *params.Description
	}
	if params.PlayerId != nil {
		// Reassigning a character to another player is a GM action.
		if !roles.IsAdmin && !roles.Architect && !roles.AnyGm() {
			http.Error(w, "only game masters may reassign characters", http.StatusForbidden)
			return
		}
		if _, err := schema.GetUser(*params.PlayerId, s.db); err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		character.PlayerId = *params.PlayerId
	}

	if result := s.db.Save(&character); result.Error != nil {
		slog.Error("sql error updating character", "character_id", character.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error updating character: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, characterInfo(character))
}

func (s *CharacterService) Delete(w http.ResponseWriter, r *http.Request) {
	character, roles, user, err := s.loadCharacterContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !canManageCharacter(roles, character, user) {
		http.Error(w, fmt.Sprintf("user %v may not delete character %v", user.Id, character.Id), http.StatusForbidden)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.CampaignCharacter{}, "character_id = ?", character.Id); result.Error != nil {
			slog.Error("sql error deleting campaign memberships", "character_id", character.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.EntityAccess{}, "scope = ? AND scope_id = ?", schema.CharacterScope, character.Id); result.Error != nil {
			slog.Error("sql error deleting character scoped entity grants", "character_id", character.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.LocationAccess{}, "scope = ? AND scope_id = ?", schema.CharacterScope, character.Id); result.Error != nil {
			slog.Error("sql error deleting character scoped location grants", "character_id", character.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Character{Id: character.Id}); result.Error != nil {
			slog.Error("sql error deleting character", "character_id", character.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting character: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
