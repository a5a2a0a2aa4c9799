package client

import (
	"fmt"
	"worldkeeper/worldkeeper/services"

	"github.com/google/uuid"
)

type WorldKeeperClient struct {
	BaseClient
	userId string
}

func New(baseUrl string) *WorldKeeperClient {
	return &WorldKeeperClient{BaseClient: BaseClient{baseUrl: baseUrl}}
}

func (c *WorldKeeperClient) Signup(username, email, password string) error {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	return c.Post("/api/user/signup").Json(body).Do(nil)
}

func (c *WorldKeeperClient) Login(email, password string) error {
	var data map[string]string
	err := c.Get("/api/user/login").Login(email, password).Do(&data)
	if err != nil {
		return err
	}

	c.authToken = data["accessToken"]
	c.userId = data["userId"]

	return nil
}

func (c *WorldKeeperClient) UserId() string {
	return c.userId
}

func (c *WorldKeeperClient) CreateWorld(name, description, permissionScope string) (services.WorldInfo, error) {
	body := map[string]string{
		"name": name, "description": description, "entityPermissionScope": permissionScope,
	}

	var info services.WorldInfo
	err := c.Post("/api/worlds").Json(body).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) ListWorlds() ([]services.WorldInfo, error) {
	var infos []services.WorldInfo
	err := c.Get("/api/worlds").Do(&infos)
	return infos, err
}

func (c *WorldKeeperClient) CreateCampaign(worldId uuid.UUID, name string) (services.CampaignInfo, error) {
	body := map[string]interface{}{"worldId": worldId, "name": name}

	var info services.CampaignInfo
	err := c.Post("/api/campaigns").Json(body).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) CreateCharacter(worldId uuid.UUID, name string) (services.CharacterInfo, error) {
	body := map[string]interface{}{"worldId": worldId, "name": name}

	var info services.CharacterInfo
	err := c.Post("/api/characters").Json(body).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) JoinCampaign(campaignId, characterId uuid.UUID, status string) error {
	body := map[string]interface{}{"characterId": characterId, "status": status}
	return c.Post(fmt.Sprintf("/api/campaigns/%v/characters", campaignId)).Json(body).Do(nil)
}

func (c *WorldKeeperClient) CreateEntityType(worldId *uuid.UUID, name string) (services.EntityTypeInfo, error) {
	body := map[string]interface{}{"worldId": worldId, "name": name}

	var info services.EntityTypeInfo
	err := c.Post("/api/entity-types").Json(body).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) AddField(entityTypeId uuid.UUID, field services.FieldInfo) (services.FieldInfo, error) {
	var info services.FieldInfo
	err := c.Post(fmt.Sprintf("/api/entity-types/%v/fields", entityTypeId)).Json(field).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) CloneTemplate(templateId, worldId uuid.UUID) (services.EntityTypeInfo, error) {
	body := map[string]interface{}{"worldId": worldId}

	var info services.EntityTypeInfo
	err := c.Post(fmt.Sprintf("/api/entity-types/%v/clone", templateId)).Json(body).Do(&info)
	return info, err
}

type CreateEntityArgs struct {
	WorldId      uuid.UUID              `json:"worldId"`
	EntityTypeId uuid.UUID              `json:"entityTypeId"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	FieldValues  map[string]interface{} `json:"fieldValues,omitempty"`

	ContextCampaignId  *uuid.UUID `json:"contextCampaignId,omitempty"`
	ContextCharacterId *uuid.UUID `json:"contextCharacterId,omitempty"`
}

func (c *WorldKeeperClient) CreateEntity(args CreateEntityArgs) (services.EntityInfo, error) {
	var info services.EntityInfo
	err := c.Post("/api/entities").Json(args).Do(&info)
	return info, err
}

type ListEntitiesArgs struct {
	WorldId      uuid.UUID
	EntityTypeId *uuid.UUID
	CampaignId   *uuid.UUID
	CharacterId  *uuid.UUID
	Filters      string
	FieldKeys    string
}

func (c *WorldKeeperClient) ListEntities(args ListEntitiesArgs) ([]services.EntityInfo, error) {
	req := c.Get("/api/entities").Param("worldId", args.WorldId.String())
	if args.EntityTypeId != nil {
		req = req.Param("entityTypeId", args.EntityTypeId.String())
	}
	if args.CampaignId != nil {
		req = req.Param("campaignId", args.CampaignId.String())
	}
	if args.CharacterId != nil {
		req = req.Param("characterId", args.CharacterId.String())
	}
	if args.Filters != "" {
		req = req.Param("filters", args.Filters)
	}
	if args.FieldKeys != "" {
		req = req.Param("fieldKeys", args.FieldKeys)
	}

	var infos []services.EntityInfo
	err := req.Do(&infos)
	return infos, err
}

func (c *WorldKeeperClient) GetEntity(entityId uuid.UUID) (services.EntityInfo, error) {
	var info services.EntityInfo
	err := c.Get(fmt.Sprintf("/api/entities/%v", entityId)).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) UpdateEntity(entityId uuid.UUID, updates map[string]interface{}) (services.EntityInfo, error) {
	var info services.EntityInfo
	err := c.Put(fmt.Sprintf("/api/entities/%v", entityId)).Json(updates).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) DeleteEntity(entityId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/entities/%v", entityId)).Do(nil)
}

func (c *WorldKeeperClient) GetEntityAccess(entityId uuid.UUID) (services.AccessPayload, error) {
	var payload services.AccessPayload
	err := c.Get(fmt.Sprintf("/api/entities/%v/access", entityId)).Do(&payload)
	return payload, err
}

func (c *WorldKeeperClient) UpdateEntityAccess(entityId uuid.UUID, payload services.AccessPayload) error {
	return c.Put(fmt.Sprintf("/api/entities/%v/access", entityId)).Json(payload).Do(nil)
}

func (c *WorldKeeperClient) EntityAudit(entityId uuid.UUID) ([]services.AuditEvent, error) {
	var response struct {
		Events []services.AuditEvent `json:"events"`
	}
	err := c.Get(fmt.Sprintf("/api/entities/%v/audit", entityId)).Do(&response)
	return response.Events, err
}

type CreateLocationArgs struct {
	WorldId     uuid.UUID              `json:"worldId"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	FieldValues map[string]interface{} `json:"fieldValues,omitempty"`
}

func (c *WorldKeeperClient) CreateLocation(args CreateLocationArgs) (services.LocationInfo, error) {
	var info services.LocationInfo
	err := c.Post("/api/locations").Json(args).Do(&info)
	return info, err
}

func (c *WorldKeeperClient) ListLocations(worldId uuid.UUID) ([]services.LocationInfo, error) {
	var infos []services.LocationInfo
	err := c.Get("/api/locations").Param("worldId", worldId.String()).Do(&infos)
	return infos, err
}

func (c *WorldKeeperClient) Health() error {
	return c.Get("/health").Do(nil)
}
