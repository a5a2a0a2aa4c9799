package services

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"
	"worldkeeper/utils"
	"worldkeeper/worldkeeper/auth"
	"worldkeeper/worldkeeper/schema"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type WorldKeeper struct {
	user       UserService
	world      WorldService
	campaign   CampaignService
	character  CharacterService
	entityType EntityTypeService
	entity     EntityService
	location   LocationService
	telemetry  TelemetryService

	db   *gorm.DB
	stop chan bool
}

func NewWorldKeeper(db *gorm.DB, userAuth auth.IdentityProvider) WorldKeeper {
	return WorldKeeper{
		user:       UserService{db: db, userAuth: userAuth},
		world:      WorldService{db: db, userAuth: userAuth},
		campaign:   CampaignService{db: db, userAuth: userAuth},
		character:  CharacterService{db: db, userAuth: userAuth},
		entityType: EntityTypeService{db: db, userAuth: userAuth},
		entity:     EntityService{db: db, userAuth: userAuth},
		location:   LocationService{db: db, userAuth: userAuth},
		telemetry:  TelemetryService{},
		db:         db,
		stop:       make(chan bool, 1),
	}
}

func (k *WorldKeeper) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/api/user", k.user.Routes())
	r.Mount("/api/worlds", k.world.Routes())
	r.Mount("/api/campaigns", k.campaign.Routes())
	r.Mount("/api/characters", k.character.Routes())
	r.Mount("/api/entity-types", k.entityType.Routes())
	r.Mount("/api/entities", k.entity.Routes())
	r.Mount("/api/locations", k.location.Routes())
	r.Mount("/telemetry", k.telemetry.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

// sweepOrphanGrants prunes access grants whose campaign or character scope no
// longer exists. Scopes are cleaned inline on delete, but a crash between
// deletes can leave strays behind.
func (k *WorldKeeper) sweepOrphanGrants() {
	sweeps := []*gorm.DB{
		k.db.Where("scope = ? AND scope_id NOT IN (?)", schema.CampaignScope,
			k.db.Model(&schema.Campaign{}).Select("id")).Delete(&schema.EntityAccess{}),
		k.db.Where("scope = ? AND scope_id NOT IN (?)", schema.CharacterScope,
			k.db.Model(&schema.Character{}).Select("id")).Delete(&schema.EntityAccess{}),
		k.db.Where("scope = ? AND scope_id NOT IN (?)", schema.CampaignScope,
			k.db.Model(&schema.Campaign{}).Select("id")).Delete(&schema.LocationAccess{}),
		k.db.Where("scope = ? AND scope_id NOT IN (?)", schema.CharacterScope,
			k.db.Model(&schema.Character{}).Select("id")).Delete(&schema.LocationAccess{}),
	}

	for _, result := range sweeps {
		if result.Error != nil {
			slog.Error("grant sweep: sql error pruning orphaned grants", "error", result.Error)
			return
		}
		if result.RowsAffected > 0 {
			slog.Info("grant sweep: pruned orphaned grants", "rows", result.RowsAffected)
		}
	}
}

func (k *WorldKeeper) GrantSweep(interval time.Duration) {
	slog.Info("grant sweep: starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.sweepOrphanGrants()
		case <-k.stop:
			slog.Info("grant sweep: process stopped")
			return
		}
	}
}

func (k *WorldKeeper) StopGrantSweep() {
	close(k.stop)
}
