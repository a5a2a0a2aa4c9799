package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"worldkeeper/worldkeeper/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	query    url.Values
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Param(key, value string) *httpTestRequest {
	if r.query == nil {
		r.query = url.Values{}
	}
	r.query.Set(key, value)
	return r
}

var ErrUnauthorized = errors.New("unauthorized")

type requestError struct {
	method   string
	endpoint string
	Status   int
	body     string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.method, e.endpoint, e.Status, e.body)
}

// statusOf pulls the response code out of a request error, 0 for nil or
// non-request errors.
func statusOf(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	endpoint := r.endpoint
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req := httptest.NewRequest(r.method, endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return &requestError{method: r.method, endpoint: endpoint, Status: res.StatusCode, body: w.Body.String()}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Put(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "PUT", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/api/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/api/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["accessToken"]
	c.userId = res["userId"]

	return nil
}

func (c *client) addUser(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/api/user/create").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/api/user/%v", userId)).Do(nil)
}

func (c *client) promoteAdmin(userId string) error {
	return c.Post(fmt.Sprintf("/api/user/%v/admin", userId)).Do(nil)
}

func (c *client) demoteAdmin(userId string) error {
	return c.Delete(fmt.Sprintf("/api/user/%v/admin", userId)).Do(nil)
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/api/user/list").Do(&res)
	return res, err
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/api/user/info").Do(&res)
	return res, err
}

func (c *client) createWorld(name, permissionScope string) (services.WorldInfo, error) {
	body := map[string]string{"name": name}
	if permissionScope != "" {
		body["entityPermissionScope"] = permissionScope
	}

	var res services.WorldInfo
	err := c.Post("/api/worlds").Json(body).Do(&res)
	return res, err
}

func (c *client) listWorlds() ([]services.WorldInfo, error) {
	var res []services.WorldInfo
	err := c.Get("/api/worlds").Do(&res)
	return res, err
}

func (c *client) getWorld(worldId string) (services.WorldInfo, error) {
	var res services.WorldInfo
	err := c.Get(fmt.Sprintf("/api/worlds/%v", worldId)).Do(&res)
	return res, err
}

func (c *client) updateWorld(worldId string, updates map[string]interface{}) (services.WorldInfo, error) {
	var res services.WorldInfo
	err := c.Put(fmt.Sprintf("/api/worlds/%v", worldId)).Json(updates).Do(&res)
	return res, err
}

func (c *client) deleteWorld(worldId string) error {
	return c.Delete(fmt.Sprintf("/api/worlds/%v", worldId)).Do(nil)
}

func (c *client) addArchitect(worldId, userId string) error {
	return c.Post(fmt.Sprintf("/api/worlds/%v/architects", worldId)).Json(map[string]string{"userId": userId}).Do(nil)
}

func (c *client) removeArchitect(worldId, userId string) error {
	return c.Delete(fmt.Sprintf("/api/worlds/%v/architects/%v", worldId, userId)).Do(nil)
}

func (c *client) addGameMaster(worldId, userId string) error {
	return c.Post(fmt.Sprintf("/api/worlds/%v/game-masters", worldId)).Json(map[string]string{"userId": userId}).Do(nil)
}

func (c *client) removeGameMaster(worldId, userId string) error {
	return c.Delete(fmt.Sprintf("/api/worlds/%v/game-masters/%v", worldId, userId)).Do(nil)
}

func (c *client) createCampaign(worldId, name, gameMasterId string) (services.CampaignInfo, error) {
	body := map[string]string{"worldId": worldId, "name": name}
	if gameMasterId != "" {
		body["gameMasterId"] = gameMasterId
	}

	var res services.CampaignInfo
	err := c.Post("/api/campaigns").Json(body).Do(&res)
	return res, err
}

func (c *client) listCampaigns(worldId string) ([]services.CampaignInfo, error) {
	var res []services.CampaignInfo
	err := c.Get("/api/campaigns").Param("worldId", worldId).Do(&res)
	return res, err
}

func (c *client) getCampaign(campaignId string) (services.CampaignInfo, error) {
	var res services.CampaignInfo
	err := c.Get(fmt.Sprintf("/api/campaigns/%v", campaignId)).Do(&res)
	return res, err
}

func (c *client) deleteCampaign(campaignId string) error {
	return c.Delete(fmt.Sprintf("/api/campaigns/%v", campaignId)).Do(nil)
}

func (c *client) joinCampaign(campaignId, characterId string) error {
	return c.Post(fmt.Sprintf("/api/campaigns/%v/characters", campaignId)).Json(map[string]string{"characterId": characterId}).Do(nil)
}

func (c *client) leaveCampaign(campaignId, characterId string) error {
	return c.Delete(fmt.Sprintf("/api/campaigns/%v/characters/%v", campaignId, characterId)).Do(nil)
}

func (c *client) createCharacter(worldId, name, playerId string) (services.CharacterInfo, error) {
	body := map[string]string{"worldId": worldId, "name": name}
	if playerId != "" {
		body["playerId"] = playerId
	}

	var res services.CharacterInfo
	err := c.Post("/api/characters").Json(body).Do(&res)
	return res, err
}

func (c *client) listCharacters(worldId string) ([]services.CharacterInfo, error) {
	var res []services.CharacterInfo
	err := c.Get("/api/characters").Param("worldId", worldId).Do(&res)
	return res, err
}

func (c *client) deleteCharacter(characterId string) error {
	return c.Delete(fmt.Sprintf("/api/characters/%v", characterId)).Do(nil)
}

// createEntityType with an empty worldId creates a cross-world template.
func (c *client) createEntityType(worldId, name string) (services.EntityTypeInfo, error) {
	body := map[string]string{"name": name}
	if worldId != "" {
		body["worldId"] = worldId
	}

	var res services.EntityTypeInfo
	err := c.Post("/api/entity-types").Json(body).Do(&res)
	return res, err
}

func (c *client) listEntityTypes(worldId string) ([]services.EntityTypeInfo, error) {
	req := c.Get("/api/entity-types")
	if worldId != "" {
		req = req.Param("worldId", worldId)
	}
	var res []services.EntityTypeInfo
	err := req.Do(&res)
	return res, err
}

func (c *client) getEntityType(typeId string) (services.EntityTypeInfo, error) {
	var res services.EntityTypeInfo
	err := c.Get(fmt.Sprintf("/api/entity-types/%v", typeId)).Do(&res)
	return res, err
}

func (c *client) deleteEntityType(typeId string) error {
	return c.Delete(fmt.Sprintf("/api/entity-types/%v", typeId)).Do(nil)
}

func (c *client) cloneTemplate(templateId, worldId, name string) (services.EntityTypeInfo, error) {
	body := map[string]string{"worldId": worldId}
	if name != "" {
		body["name"] = name
	}

	var res services.EntityTypeInfo
	err := c.Post(fmt.Sprintf("/api/entity-types/%v/clone", templateId)).Json(body).Do(&res)
	return res, err
}

func (c *client) addField(typeId string, field map[string]interface{}) (services.FieldInfo, error) {
	var res services.FieldInfo
	err := c.Post(fmt.Sprintf("/api/entity-types/%v/fields", typeId)).Json(field).Do(&res)
	return res, err
}

func (c *client) updateField(typeId, fieldId string, updates map[string]interface{}) error {
	return c.Put(fmt.Sprintf("/api/entity-types/%v/fields/%v", typeId, fieldId)).Json(updates).Do(nil)
}

func (c *client) deleteField(typeId, fieldId string) error {
	return c.Delete(fmt.Sprintf("/api/entity-types/%v/fields/%v", typeId, fieldId)).Do(nil)
}

func (c *client) createEntity(body map[string]interface{}) (services.EntityInfo, error) {
	var res services.EntityInfo
	err := c.Post("/api/entities").Json(body).Do(&res)
	return res, err
}

func (c *client) listEntities(params map[string]string) ([]services.EntityInfo, error) {
	req := c.Get("/api/entities")
	for k, v := range params {
		req = req.Param(k, v)
	}
	var res []services.EntityInfo
	err := req.Do(&res)
	return res, err
}

func (c *client) getEntity(entityId string, params map[string]string) (services.EntityInfo, error) {
	req := c.Get(fmt.Sprintf("/api/entities/%v", entityId))
	for k, v := range params {
		req = req.Param(k, v)
	}
	var res services.EntityInfo
	err := req.Do(&res)
	return res, err
}

func (c *client) updateEntity(entityId string, updates map[string]interface{}) (services.EntityInfo, error) {
	var res services.EntityInfo
	err := c.Put(fmt.Sprintf("/api/entities/%v", entityId)).Json(updates).Do(&res)
	return res, err
}

func (c *client) deleteEntity(entityId string) error {
	return c.Delete(fmt.Sprintf("/api/entities/%v", entityId)).Do(nil)
}

func (c *client) getEntityAccess(entityId string) (services.AccessPayload, error) {
	var res services.AccessPayload
	err := c.Get(fmt.Sprintf("/api/entities/%v/access", entityId)).Do(&res)
	return res, err
}

func (c *client) updateEntityAccess(entityId string, access services.AccessPayload) error {
	return c.Put(fmt.Sprintf("/api/entities/%v/access", entityId)).Json(access).Do(nil)
}

type auditView struct {
	Access services.AccessPayload `json:"access"`
	Events []services.AuditEvent  `json:"events"`
}

func (c *client) entityAudit(entityId string) (auditView, error) {
	var res auditView
	err := c.Get(fmt.Sprintf("/api/entities/%v/audit", entityId)).Do(&res)
	return res, err
}

func (c *client) createLocation(body map[string]interface{}) (services.LocationInfo, error) {
	var res services.LocationInfo
	err := c.Post("/api/locations").Json(body).Do(&res)
	return res, err
}

func (c *client) listLocations(params map[string]string) ([]services.LocationInfo, error) {
	req := c.Get("/api/locations")
	for k, v := range params {
		req = req.Param(k, v)
	}
	var res []services.LocationInfo
	err := req.Do(&res)
	return res, err
}

func (c *client) getLocation(locationId string, params map[string]string) (services.LocationInfo, error) {
	req := c.Get(fmt.Sprintf("/api/locations/%v", locationId))
	for k, v := range params {
		req = req.Param(k, v)
	}
	var res services.LocationInfo
	err := req.Do(&res)
	return res, err
}

func (c *client) updateLocation(locationId string, updates map[string]interface{}) (services.LocationInfo, error) {
	var res services.LocationInfo
	err := c.Put(fmt.Sprintf("/api/locations/%v", locationId)).Json(updates).Do(&res)
	return res, err
}

func (c *client) deleteLocation(locationId string) error {
	return c.Delete(fmt.Sprintf("/api/locations/%v", locationId)).Do(nil)
}

func (c *client) locationAudit(locationId string) (auditView, error) {
	var res auditView
	err := c.Get(fmt.Sprintf("/api/locations/%v/audit", locationId)).Do(&res)
	return res, err
}

func (c *client) createLocationField(field map[string]interface{}) (services.FieldInfo, error) {
	var res services.FieldInfo
	err := c.Post("/api/locations/fields").Json(field).Do(&res)
	return res, err
}

func (c *client) listLocationFields(worldId string) ([]services.FieldInfo, error) {
	var res []services.FieldInfo
	err := c.Get("/api/locations/fields").Param("worldId", worldId).Do(&res)
	return res, err
}

func (c *client) health() error {
	return c.Get("/health").Do(nil)
}
