package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrWorldNotFound      = errors.New("world not found")
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrCharacterNotFound  = errors.New("character not found")
	ErrEntityTypeNotFound = errors.New("entity type not found")
	ErrFieldNotFound      = errors.New("field not found")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrLocationNotFound   = errors.New("location not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetWorld(worldId uuid.UUID, db *gorm.DB, loadRoles bool) (World, error) {
	var world World

	var result *gorm.DB = db
	if loadRoles {
		result = result.Preload("Architects").Preload("GameMasters")
	}
	result = result.First(&world, "id = ?", worldId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return world, ErrWorldNotFound
		}
		slog.Error("sql error in get world", "world_id", worldId, "error", result.Error)
		return world, ErrDbAccessFailed
	}

	return world, nil
}

func GetCampaign(campaignId uuid.UUID, db *gorm.DB) (Campaign, error) {
	var campaign Campaign

	result := db.First(&campaign, "id = ?", campaignId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return campaign, ErrCampaignNotFound
		}
		slog.Error("sql error in get campaign", "campaign_id", campaignId, "error", result.Error)
		return campaign, ErrDbAccessFailed
	}

	return campaign, nil
}

func GetCharacter(characterId uuid.UUID, db *gorm.DB) (Character, error) {
	var character Character

	result := db.First(&character, "id = ?", characterId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return character, ErrCharacterNotFound
		}
		slog.Error("sql error in get character", "character_id", characterId, "error", result.Error)
		return character, ErrDbAccessFailed
	}

	return character, nil
}

func GetEntityType(entityTypeId uuid.UUID, db *gorm.DB, loadFields bool) (EntityType, error) {
	var entityType EntityType

	var result *gorm.DB = db
	if loadFields {
		result = result.Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order")
		}).Preload("Fields.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order")
		}).Preload("FormSections", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order")
		})
	}
	result = result.First(&entityType, "id = ?", entityTypeId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return entityType, ErrEntityTypeNotFound
		}
		slog.Error("sql error in get entity type", "entity_type_id", entityTypeId, "error", result.Error)
		return entityType, ErrDbAccessFailed
	}

	return entityType, nil
}

func GetEntity(entityId uuid.UUID, db *gorm.DB, loadValues, loadAccess bool) (Entity, error) {
	var entity Entity

	var result *gorm.DB = db
	if loadValues {
		result = result.Preload("Values")
	}
	if loadAccess {
		result = result.Preload("Access")
	}
	result = result.First(&entity, "id = ?", entityId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return entity, ErrEntityNotFound
		}
		slog.Error("sql error in get entity", "entity_id", entityId, "error", result.Error)
		return entity, ErrDbAccessFailed
	}

	return entity, nil
}

func GetLocation(locationId uuid.UUID, db *gorm.DB, loadValues, loadAccess bool) (Location, error) {
	var location Location

	var result *gorm.DB = db
	if loadValues {
		result = result.Preload("Values")
	}
	if loadAccess {
		result = result.Preload("Access")
	}
	result = result.First(&location, "id = ?", locationId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return location, ErrLocationNotFound
		}
		slog.Error("sql error in get location", "location_id", locationId, "error", result.Error)
		return location, ErrDbAccessFailed
	}

	return location, nil
}
