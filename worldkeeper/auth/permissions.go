package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"worldkeeper/worldkeeper/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func AdminOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// WorldRoles is the caller's relationship to a single world, computed once
// per request and passed by value. All permission decisions below are pure
// functions over this snapshot.
type WorldRoles struct {
	IsAdmin bool

	// Primary architect or member of the delegated architects set.
	Architect bool

	// Member of the explicit world-level GM list.
	WorldGameMaster bool

	// Runs at least one campaign inside the world. Distinct from
	// WorldGameMaster; call sites that care about "effectively running
	// something in this world" must consult both, see AnyGm.
	CampaignGm bool

	CampaignCreator  bool
	CharacterCreator bool

	// Plays at least one character in the world.
	Player bool
}

func existsQuery(db *gorm.DB, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	result := db.Model(model).Where(query, args...).Limit(1).Count(&count)
	if result.Error != nil {
		slog.Error("sql error in role membership query", "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	return count > 0, nil
}

func LoadWorldRoles(db *gorm.DB, user schema.User, world schema.World) (WorldRoles, error) {
	roles := WorldRoles{IsAdmin: user.IsAdmin}

	roles.Architect = world.ArchitectId == user.Id
	if !roles.Architect {
		delegated, err := existsQuery(db, &schema.WorldArchitect{}, "world_id = ? AND user_id = ?", world.Id, user.Id)
		if err != nil {
			return WorldRoles{}, err
		}
		roles.Architect = delegated
	}

	var err error
	roles.WorldGameMaster, err = existsQuery(db, &schema.WorldGameMaster{}, "world_id = ? AND user_id = ?", world.Id, user.Id)
	if err != nil {
		return WorldRoles{}, err
	}

	roles.CampaignGm, err = existsQuery(db, &schema.Campaign{}, "world_id = ? AND game_master_id = ?", world.Id, user.Id)
	if err != nil {
		return WorldRoles{}, err
	}

	roles.CampaignCreator, err = existsQuery(db, &schema.Campaign{}, "world_id = ? AND created_by_id = ?", world.Id, user.Id)
	if err != nil {
		return WorldRoles{}, err
	}

	roles.Player, err = existsQuery(db, &schema.Character{}, "world_id = ? AND player_id = ?", world.Id, user.Id)
	if err != nil {
		return WorldRoles{}, err
	}

	roles.CharacterCreator, err = existsQuery(db, &schema.Character{}, "world_id = ? AND created_by_id = ?", world.Id, user.Id)
	if err != nil {
		return WorldRoles{}, err
	}

	return roles, nil
}

// AnyGm reports GM standing in either sense: the explicit world-level list or
// running some campaign in the world.
func (r WorldRoles) AnyGm() bool {
	return r.WorldGameMaster || r.CampaignGm
}

// CanAccessWorld is true for any non-trivial relationship to the world.
func (r WorldRoles) CanAccessWorld() bool {
	return r.IsAdmin || r.Architect || r.AnyGm() || r.CampaignCreator || r.CharacterCreator || r.Player
}

// CanManageRecords gates the record management surfaces (delete, access
// grants, audit view).
func (r WorldRoles) CanManageRecords() bool {
	return r.IsAdmin || r.Architect || r.AnyGm()
}

// CanCreateRecords evaluates a world's entityPermissionScope for this caller.
func (r WorldRoles) CanCreateRecords(permissionScope string) bool {
	if r.IsAdmin || r.Architect {
		return true
	}
	switch permissionScope {
	case schema.ArchitectGm:
		return r.AnyGm()
	case schema.ArchitectGmPlayer:
		return r.AnyGm() || r.Player
	default:
		return false
	}
}

// RecordTables names the storage of one grant-controlled record family so the
// same access predicates serve entities and locations.
type RecordTables struct {
	Table       string
	AccessTable string
	OwnerColumn string
}

var (
	EntityTables   = RecordTables{Table: "entities", AccessTable: "entity_accesses", OwnerColumn: "entity_id"}
	LocationTables = RecordTables{Table: "locations", AccessTable: "location_accesses", OwnerColumn: "location_id"}
)

func grantExistsSql(tbl RecordTables) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %v a WHERE a.%v = %v.id AND a.permission = ? AND a.scope = ?%%v)",
		tbl.AccessTable, tbl.OwnerColumn, tbl.Table,
	)
}

// RecordAccessFilter builds the read predicate for listing or loading records
// under the caller's scope context. Architects see the whole world unless a
// character context narrows the request deliberately. For everyone else
// readability is the union of the matching grants: supplying both a campaign
// and a character context widens access, never narrows it. Admin bypass is
// the caller's responsibility; this filter is only applied for non-admins.
func RecordAccessFilter(roles WorldRoles, worldId uuid.UUID, campaignId, characterId *uuid.UUID, tbl RecordTables) func(*gorm.DB) *gorm.DB {
	if roles.Architect && characterId == nil {
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(fmt.Sprintf("%v.world_id = ?", tbl.Table), worldId)
		}
	}

	exists := grantExistsSql(tbl)

	conds := fmt.Sprintf(exists, "")
	args := []interface{}{schema.ReadPerm, schema.GlobalScope}

	if campaignId != nil {
		conds += " OR " + fmt.Sprintf(exists, " AND a.scope_id = ?")
		args = append(args, schema.ReadPerm, schema.CampaignScope, *campaignId)
	}
	if characterId != nil {
		conds += " OR " + fmt.Sprintf(exists, " AND a.scope_id = ?")
		args = append(args, schema.ReadPerm, schema.CharacterScope, *characterId)
	}

	where := fmt.Sprintf("%v.world_id = ? AND (%v)", tbl.Table, conds)
	allArgs := append([]interface{}{worldId}, args...)

	return func(db *gorm.DB) *gorm.DB {
		return db.Where(where, allArgs...)
	}
}

func EntityAccessFilter(roles WorldRoles, worldId uuid.UUID, campaignId, characterId *uuid.UUID) func(*gorm.DB) *gorm.DB {
	return RecordAccessFilter(roles, worldId, campaignId, characterId, EntityTables)
}

func LocationAccessFilter(roles WorldRoles, worldId uuid.UUID, campaignId, characterId *uuid.UUID) func(*gorm.DB) *gorm.DB {
	return RecordAccessFilter(roles, worldId, campaignId, characterId, LocationTables)
}

// CanWriteRecord checks write permission on one record: architects (and
// admins) always may write, otherwise a WRITE grant must match GLOBAL or one
// of the supplied contexts.
func CanWriteRecord(db *gorm.DB, roles WorldRoles, recordId uuid.UUID, campaignId, characterId *uuid.UUID, tbl RecordTables) (bool, error) {
	if roles.IsAdmin || roles.Architect {
		return true, nil
	}

	query := db.Table(tbl.AccessTable).
		Where(fmt.Sprintf("%v = ?", tbl.OwnerColumn), recordId).
		Where("permission = ?", schema.WritePerm)

	grantMatch := db.Session(&gorm.Session{NewDB: true}).Where("scope = ?", schema.GlobalScope)
	if campaignId != nil {
		grantMatch = grantMatch.Or("scope = ? AND scope_id = ?", schema.CampaignScope, *campaignId)
	}
	if characterId != nil {
		grantMatch = grantMatch.Or("scope = ? AND scope_id = ?", schema.CharacterScope, *characterId)
	}

	var count int64
	result := query.Where(grantMatch).Limit(1).Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking write grants", "record_id", recordId, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}

	return count > 0, nil
}
