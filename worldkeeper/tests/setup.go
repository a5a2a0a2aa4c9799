package tests

import (
	"bytes"
	"testing"
	"worldkeeper/worldkeeper/auth"
	"worldkeeper/worldkeeper/schema"
	"worldkeeper/worldkeeper/services"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	worldKeeper services.WorldKeeper
	api         chi.Router
	db          *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(schema.AllModels()...)
	if err != nil {
		t.Fatal(err)
	}

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	worldKeeper := services.NewWorldKeeper(db, userAuth)

	return &testEnv{worldKeeper: worldKeeper, api: worldKeeper.Routes(), db: db}
}

func (t *testEnv) newClient() *client {
	return &client{api: t.api}
}

func (t *testEnv) newUser(username string) (*client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password")
	if err != nil {
		return nil, err
	}

	err = c.login(login)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (*client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}
