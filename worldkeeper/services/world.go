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

type WorldService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *WorldService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)

		r.Route("/{world_id}", func(r chi.Router) {
			r.Get("/", s.Get)
			r.Put("/", s.Update)
			r.Delete("/", s.Delete)

			r.Post("/architects", s.AddArchitect)
			r.Delete("/architects/{user_id}", s.RemoveArchitect)

			r.Post("/game-masters", s.AddGameMaster)
			r.Delete("/game-masters/{user_id}", s.RemoveGameMaster)
		})
	})

	return r
}

type WorldInfo struct {
	WorldId               uuid.UUID `json:"worldId"`
	Name                  string    `json:"name"`
	Description           string    `json:"description"`
	EntityPermissionScope string    `json:"entityPermissionScope"`
	ArchitectId           uuid.UUID `json:"architectId"`
	CreatedAt             time.Time `json:"createdAt"`

	Architects  []uuid.UUID `json:"architects,omitempty"`
	GameMasters []uuid.UUID `json:"gameMasters,omitempty"`
}

func worldInfo(world schema.World) WorldInfo {
	info := WorldInfo{
		WorldId:               world.Id,
		Name:                  world.Name,
		Description:           world.Description,
		EntityPermissionScope: world.EntityPermissionScope,
		ArchitectId:           world.ArchitectId,
		CreatedAt:             world.CreatedAt,
	}
	for _, architect := range world.Architects {
		info.Architects = append(info.Architects, architect.UserId)
	}
	for _, gm := range world.GameMasters {
		info.GameMasters = append(info.GameMasters, gm.UserId)
	}
	return info
}

func validPermissionScope(scope string) bool {
	switch scope {
	case schema.ArchitectOnly, schema.ArchitectGm, schema.ArchitectGmPlayer:
		return true
	}
	return false
}

func (s *WorldService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Model(&schema.World{}).Preload("Architects").Preload("GameMasters")
	if !user.IsAdmin {
		accessible := `worlds.architect_id = ?
			OR EXISTS (SELECT 1 FROM world_architects wa WHERE wa.world_id = worlds.id AND wa.user_id = ?)
			OR EXISTS (SELECT 1 FROM world_game_masters wg WHERE wg.world_id = worlds.id AND wg.user_id = ?)
			OR EXISTS (SELECT 1 FROM campaigns c WHERE c.world_id = worlds.id AND c.game_master_id = ?)
			OR EXISTS (SELECT 1 FROM characters ch WHERE ch.world_id = worlds.id AND ch.player_id = ?)`
		query = query.Where(accessible, user.Id, user.Id, user.Id, user.Id, user.Id)
	}

	var worlds []schema.World
	result := query.Order("worlds.name").Find(&worlds)
	if result.Error != nil {
		slog.Error("sql error listing worlds", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing worlds: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]WorldInfo, 0, len(worlds))
	for _, world := range worlds {
		infos = append(infos, worldInfo(world))
	}
	utils.WriteJsonResponse(w, infos)
}

type createWorldRequest struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	EntityPermissionScope string `json:"entityPermissionScope"`
}

func (s *WorldService) Create(w http.ResponseWriter, r *http.Request) {
	var params createWorldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if params.EntityPermissionScope == "" {
		params.EntityPermissionScope = schema.ArchitectOnly
	}
	if !validPermissionScope(params.EntityPermissionScope) {
		http.Error(w, fmt.Sprintf("invalid entityPermissionScope '%v'", params.EntityPermissionScope), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	world := schema.World{
		Id:                    uuid.New(),
		Name:                  params.Name,
		Description:           params.Description,
		EntityPermissionScope: params.EntityPermissionScope,
		ArchitectId:           user.Id,
	}

	if result := s.db.Create(&world); result.Error != nil {
		slog.Error("sql error creating world", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating world: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, worldInfo(world))
}

func (s *WorldService) loadWorldContext(r *http.Request) (schema.World, auth.WorldRoles, schema.User, error) {
	worldId, err := utils.URLParamUUID(r, "world_id")
	if err != nil {
		return schema.World{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.World{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	world, roles, err := loadWorldWithRoles(s.db, user, worldId)
	if err != nil {
		return schema.World{}, auth.WorldRoles{}, schema.User{}, err
	}

	return world, roles, user, nil
}

func (s *WorldService) Get(w http.ResponseWriter, r *http.Request) {
	world, roles, user, err := s.loadWorldContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanAccessWorld() {
		http.Error(w, fmt.Sprintf("user %v cannot access world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	utils.WriteJsonResponse(w, worldInfo(world))
}

type updateWorldRequest struct {
	Name                  *string `json:"name"`
	Description           *string `json:"description"`
	EntityPermissionScope *string `json:"entityPermissionScope"`
}

func (s *WorldService) Update(w http.ResponseWriter, r *http.Request) {
	world, roles, user, err := s.loadWorldContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.IsAdmin && !roles.Architect {
		http.Error(w, fmt.Sprintf("user %v may not update world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	var params updateWorldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name != nil {
		if strings.TrimSpace(*params.Name) == "" {
			http.Error(w, "name cannot be empty", http.StatusBadRequest)
			return
		}
		world.Name = *params.Name
	}
	if params.Description != nil {
		world.Description = *params.Description
	}
	if params.EntityPermissionScope != nil {
		if !validPermissionScope(*params.EntityPermissionScope) {
			http.Error(w, fmt.Sprintf("invalid entityPermissionScope '%v'", *params.EntityPermissionScope), http.StatusBadRequest)
			return
		}
		world.EntityPermissionScope = *params.EntityPermissionScope
	}

	world.Architects = nil
	world.GameMasters = nil
	if result := s.db.Save(&world); result.Error != nil {
		slog.Error("sql error updating world", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error updating world: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, worldInfo(world))
}

func (s *WorldService) Delete(w http.ResponseWriter, r *http.Request) {
	world, roles, user, err := s.loadWorldContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.IsAdmin && world.ArchitectId != user.Id {
		http.Error(w, fmt.Sprintf("user %v may not delete world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		worldEntities := txn.Model(&schema.Entity{}).Select("id").Where("world_id = ?", world.Id)
		worldNotes := txn.Model(&schema.Note{}).Select("id").Where("entity_id IN (?)", worldEntities)

		steps := []*gorm.DB{
			txn.Where("note_id IN (?)", worldNotes).Delete(&schema.NoteTag{}),
			txn.Where("entity_id IN (?)", worldEntities).Delete(&schema.Note{}),
			txn.Where("entity_id IN (?)", worldEntities).Delete(&schema.EntityAccess{}),
			txn.Where("entity_id IN (?)", worldEntities).Delete(&schema.EntityFieldValue{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.Entity{}),
		}

		worldLocations := txn.Model(&schema.Location{}).Select("id").Where("world_id = ?", world.Id)
		worldLocationFields := txn.Model(&schema.LocationField{}).Select("id").Where("world_id = ?", world.Id)
		steps = append(steps,
			txn.Where("location_id IN (?)", worldLocations).Delete(&schema.LocationAccess{}),
			txn.Where("location_id IN (?)", worldLocations).Delete(&schema.LocationFieldValue{}),
			txn.Where("field_id IN (?)", worldLocationFields).Delete(&schema.LocationFieldChoice{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.LocationField{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.Location{}),
		)

		worldTypes := txn.Model(&schema.EntityType{}).Select("id").Where("world_id = ?", world.Id)
		worldFields := txn.Model(&schema.EntityField{}).Select("id").Where("entity_type_id IN (?)", worldTypes)
		steps = append(steps,
			txn.Where("field_id IN (?)", worldFields).Delete(&schema.EntityFieldChoice{}),
			txn.Where("entity_type_id IN (?)", worldTypes).Delete(&schema.EntityField{}),
			txn.Where("entity_type_id IN (?)", worldTypes).Delete(&schema.EntityFormSection{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.EntityType{}),
		)

		worldCampaigns := txn.Model(&schema.Campaign{}).Select("id").Where("world_id = ?", world.Id)
		steps = append(steps,
			txn.Where("campaign_id IN (?)", worldCampaigns).Delete(&schema.CampaignCharacter{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.Campaign{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.Character{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.WorldArchitect{}),
			txn.Where("world_id = ?", world.Id).Delete(&schema.WorldGameMaster{}),
			txn.Delete(&schema.World{Id: world.Id}),
		)

		for _, result := range steps {
			if result.Error != nil {
				slog.Error("sql error deleting world", "world_id", world.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting world: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type memberRequest struct {
	UserId uuid.UUID `json:"userId"`
}

func (s *WorldService) addMember(w http.ResponseWriter, r *http.Request, create func(worldId, userId uuid.UUID) error) {
	world, roles, user, err := s.loadWorldContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.IsAdmin && !roles.Architect {
		http.Error(w, fmt.Sprintf("user %v may not manage members of world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	var params memberRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := schema.GetUser(params.UserId, s.db); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := create(world.Id, params.UserId); err != nil {
		http.Error(w, fmt.Sprintf("error adding member to world: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *WorldService) removeMember(w http.ResponseWriter, r *http.Request, remove func(worldId, userId uuid.UUID) error) {
	world, roles, user, err := s.loadWorldContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.IsAdmin && !roles.Architect {
		http.Error(w, fmt.Sprintf("user %v may not manage members of world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	memberId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := remove(world.Id, memberId); err != nil {
		http.Error(w, fmt.Sprintf("error removing member from world: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *WorldService) AddArchitect(w http.ResponseWriter, r *http.Request) {
	s.addMember(w, r, func(worldId, userId uuid.UUID) error {
		row := schema.WorldArchitect{WorldId: worldId, UserId: userId}
		if result := s.db.Where(&row).FirstOrCreate(&row); result.Error != nil {
			slog.Error("sql error adding world architect", "world_id", worldId, "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
}

func (s *WorldService) RemoveArchitect(w http.ResponseWriter, r *http.Request) {
	s.removeMember(w, r, func(worldId, userId uuid.UUID) error {
		if result := s.db.Delete(&schema.WorldArchitect{}, "world_id = ? AND user_id = ?", worldId, userId); result.Error != nil {
			slog.Error("sql error removing world architect", "world_id", worldId, "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
}

func (s *WorldService) AddGameMaster(w http.ResponseWriter, r *http.Request) {
	s.addMember(w, r, func(worldId, userId uuid.UUID) error {
		row := schema.WorldGameMaster{WorldId: worldId, UserId: userId}
		if result := s.db.Where(&row).FirstOrCreate(&row); result.Error != nil {
			slog.Error("sql error adding world game master", "world_id", worldId, "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
}

func (s *WorldService) RemoveGameMaster(w http.ResponseWriter, r *http.Request) {
	s.removeMember(w, r, func(worldId, userId uuid.UUID) error {
		if result := s.db.Delete(&schema.WorldGameMaster{}, "world_id = ? AND user_id = ?", worldId, userId); result.Error != nil {
			slog.Error("sql error removing world game master", "world_id", worldId, "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
}
