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

type CampaignService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *CampaignService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)

		r.Route("/{campaign_id}", func(r chi.Router) {
			r.Get("/", s.Get)
			r.Put("/", s.Update)
			r.Delete("/", s.Delete)

			r.Post("/characters", s.JoinCharacter)
			r.Delete("/characters/{character_id}", s.LeaveCharacter)
		})
	})

	return r
}

type CampaignCharacterInfo struct {
	CharacterId uuid.UUID `json:"characterId"`
	Status      string    `json:"status"`
}

type CampaignInfo struct {
	CampaignId   uuid.UUID `json:"campaignId"`
	WorldId      uuid.UUID `json:"worldId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	GameMasterId uuid.UUID `json:"gameMasterId"`
	CreatedById  uuid.UUID `json:"createdById"`
	CreatedAt    time.Time `json:"createdAt"`

	Characters []CampaignCharacterInfo `json:"characters,omitempty"`
}

func campaignInfo(campaign schema.Campaign) CampaignInfo {
	info := CampaignInfo{
		CampaignId:   campaign.Id,
		WorldId:      campaign.WorldId,
		Name:         campaign.Name,
		Description:  campaign.Description,
		GameMasterId: campaign.GameMasterId,
		CreatedById:  campaign.CreatedById,
		CreatedAt:    campaign.CreatedAt,
	}
	for _, member := range campaign.Characters {
		info.Characters = append(info.Characters, CampaignCharacterInfo{CharacterId: member.CharacterId, Status: member.Status})
	}
	return info
}

func (s *CampaignService) List(w http.ResponseWriter, r *http.Request) {
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

	var campaigns []schema.Campaign
	result := s.db.Preload("Characters").Where("world_id = ?", world.Id).Order("name").Find(&campaigns)
	if result.Error != nil {
		slog.Error("sql error listing campaigns", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing campaigns: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CampaignInfo, 0, len(campaigns))
	for _, campaign := range campaigns {
		infos = append(infos, campaignInfo(campaign))
	}
	utils.WriteJsonResponse(w, infos)
}

type createCampaignRequest struct {
	WorldId     uuid.UUID `json:"worldId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`

	// Defaults to the caller if unset.
	GameMasterId *uuid.UUID `json:"gameMasterId"`
}

func (s *CampaignService) Create(w http.ResponseWriter, r *http.Request) {
	var params createCampaignRequest
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

	if !roles.IsAdmin && !roles.Architect && !roles.AnyGm() {
		http.Error(w, fmt.Sprintf("user %v may not create campaigns in world %v", user.Id, world.Id), http.StatusForbidden)
		return
	}

	gameMasterId := user.Id
	if params.GameMasterId != nil {
		if _, err := schema.GetUser(*params.GameMasterId, s.db); err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		gameMasterId = *params.GameMasterId
	}

	campaign := schema.Campaign{
		Id:           uuid.New(),
		WorldId:      world.Id,
		Name:         params.Name,
		Description:  params.Description,
		GameMasterId: gameMasterId,
		CreatedById:  user.Id,
	}

	if result := s.db.Create(&campaign); result.Error != nil {
		slog.Error("sql error creating campaign", "world_id", world.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating campaign: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, campaignInfo(campaign))
}

func (s *CampaignService) loadCampaignContext(r *http.Request) (schema.Campaign, auth.WorldRoles, schema.User, error) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		return schema.Campaign{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.Campaign{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	campaign, err := schema.GetCampaign(campaignId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCampaignNotFound) {
			return schema.Campaign{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Campaign{}, auth.WorldRoles{}, schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	_, roles, err := loadWorldWithRoles(s.db, user, campaign.WorldId)
	if err != nil {
		return schema.Campaign{}, auth.WorldRoles{}, schema.User{}, err
	}

	return campaign, roles, user, nil
}

// canManageCampaign: admins, architects, and the campaign's own GM.
func canManageCampaign(roles auth.WorldRoles, campaign schema.Campaign, user schema.User) bool {
	return roles.IsAdmin || roles.Architect || campaign.GameMasterId == user.Id
}

func (s *CampaignService) Get(w http.ResponseWriter, r *http.Request) {
	campaign, roles, user, err := s.loadCampaignContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !roles.CanAccessWorld() {
		http.Error(w, fmt.Sprintf("user %v cannot access campaign %v", user.Id, campaign.Id), http.StatusForbidden)
		return
	}

	var members []schema.CampaignCharacter
	if result := s.db.Where("campaign_id = ?", campaign.Id).Find(&members); result.Error != nil {
		slog.Error("sql error loading campaign characters", "campaign_id", campaign.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	campaign.Characters = members

	utils.WriteJsonResponse(w, campaignInfo(campaign))
}

type updateCampaignRequest struct {
	Name         *string    `json:"name"`
	Description  *string    `json:"description"`
	GameMasterId *uuid.UUID `json:"gameMasterId"`
}

func (s *CampaignService) Update(w http.ResponseWriter, r *http.Request) {
	campaign, roles, user, err := s.loadCampaignContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !canManageCampaign(roles, campaign, user) {
		http.Error(w, fmt.Sprintf("user %v may not update campaign %v", user.Id, campaign.Id), http.StatusForbidden)
		return
	}

	var params updateCampaignRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name != nil {
		if strings.TrimSpace(*params.Name) == "" {
			http.Error(w, "name cannot be empty", http.StatusBadRequest)
			return
		}
		campaign.Name = *params.Name
	}
	if params.Description != nil {
		campaign.Description = *params.Description
	}
	if params.GameMasterId != nil {
		if _, err := schema.GetUser(*params.GameMasterId, s.db); err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		campaign.GameMasterId = *params.GameMasterId
	}

	campaign.Characters = nil
	if result := s.db.Save(&campaign); result.Error != nil {
		slog.Error("sql error updating campaign", "campaign_id", campaign.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error updating campaign: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, campaignInfo(campaign))
}

func (s *CampaignService) Delete(w http.ResponseWriter, r *http.Request) {
	campaign, roles, user, err := s.loadCampaignContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !canManageCampaign(roles, campaign, user) {
		http.Error(w, fmt.Sprintf("user %v may not delete campaign %v", user.Id, campaign.Id), http.StatusForbidden)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.CampaignCharacter{}, "campaign_id = ?", campaign.Id); result.Error != nil {
			slog.Error("sql error deleting campaign characters", "campaign_id", campaign.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// Record grants scoped to this campaign go with it.
		if result := txn.Delete(&schema.EntityAccess{}, "scope = ? AND scope_id = ?", schema.CampaignScope, campaign.Id); result.Error != nil {
			slog.Error("sql error deleting campaign scoped entity grants", "campaign_id", campaign.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.LocationAccess{}, "scope = ? AND scope_id = ?", schema.CampaignScope, campaign.Id); result.Error != nil {
			slog.Error("sql error deleting campaign scoped location grants", "campaign_id", campaign.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Campaign{Id: campaign.Id}); result.Error != nil {
			slog.Error("sql error deleting campaign", "campaign_id", campaign.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type joinCharacterRequest struct {
	CharacterId uuid.UUID `json:"characterId"`
	Status      string    `json:"status"`
}

func (s *CampaignService) JoinCharacter(w http.ResponseWriter, r *http.Request) {
	campaign, roles, user, err := s.loadCampaignContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var params joinCharacterRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Status == "" {
		params.Status = schema.MembershipActive
	}
	if params.Status != schema.MembershipActive && params.Status != schema.MembershipInactive {
		http.Error(w, fmt.Sprintf("invalid status '%v'", params.Status), http.StatusBadRequest)
		return
	}

	character, err := schema.GetCharacter(params.CharacterId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCharacterNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if character.WorldId != campaign.WorldId {
		http.Error(w, "character does not belong to the campaign's world", http.StatusBadRequest)
		return
	}

	if !canManageCampaign(roles, campaign, user) && character.PlayerId != user.Id {
		http.Error(w, fmt.Sprintf("user %v may not add character %v to campaign %v", user.Id, character.Id, campaign.Id), http.StatusForbidden)
		return
	}

	member := schema.CampaignCharacter{CampaignId: campaign.Id, CharacterId: character.Id, Status: params.Status}
	err = s.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Where("campaign_id = ? AND character_id = ?", campaign.Id, character.Id).Delete(&schema.CampaignCharacter{})
		if result.Error != nil {
			slog.Error("sql error replacing campaign membership", "campaign_id", campaign.Id, "character_id", character.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Create(&member); result.Error != nil {
			slog.Error("sql error adding character to campaign", "campaign_id", campaign.Id, "character_id", character.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error adding character to campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CampaignService) LeaveCharacter(w http.ResponseWriter, r *http.Request) {
	campaign, roles, user, err := s.loadCampaignContext(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	characterId, err := utils.URLParamUUID(r, "character_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	character, err := schema.GetCharacter(characterId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCharacterNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !canManageCampaign(roles, campaign, user) && character.PlayerId != user.Id {
		http.Error(w, fmt.Sprintf("user %v may not remove character %v from campaign %v", user.Id, character.Id, campaign.Id), http.StatusForbidden)
		return
	}

	result := s.db.Delete(&schema.CampaignCharacter{}, "campaign_id = ? AND character_id = ?", campaign.Id, characterId)
	if result.Error != nil {
		slog.Error("sql error removing character from campaign", "campaign_id", campaign.Id, "character_id", characterId, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}
