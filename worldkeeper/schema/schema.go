package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	// Field types for administrator defined fields.
	TextField              = "TEXT"
	TextareaField          = "TEXTAREA"
	BooleanField           = "BOOLEAN"
	NumberField            = "NUMBER"
	ChoiceField            = "CHOICE"
	EntityReferenceField   = "ENTITY_REFERENCE"
	LocationReferenceField = "LOCATION_REFERENCE"
)

const (
	ReadPerm  = "READ"
	WritePerm = "WRITE"
)

const (
	GlobalScope    = "GLOBAL"
	CampaignScope  = "CAMPAIGN"
	CharacterScope = "CHARACTER"
)

// Values for World.EntityPermissionScope, controlling who may create
// records inside the world.
const (
	ArchitectOnly     = "ARCHITECT"
	ArchitectGm       = "ARCHITECT_GM"
	ArchitectGmPlayer = "ARCHITECT_GM_PLAYER"
)

const (
	MembershipActive   = "ACTIVE"
	MembershipInactive = "INACTIVE"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin bool `gorm:"not null;default:false"`
}

type World struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"size:200;not null"`
	Description string

	// Who may create entities/locations in this world, see ArchitectOnly etc.
	EntityPermissionScope string `gorm:"size:100;not null;default:'ARCHITECT'"`

	ArchitectId uuid.UUID `gorm:"type:uuid;not null"`
	Architect   *User     `gorm:"foreignKey:ArchitectId"`

	Architects  []WorldArchitect  `gorm:"constraint:OnDelete:CASCADE"`
	GameMasters []WorldGameMaster `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorldArchitect is the set of delegated architects for a world. The primary
// architect (World.ArchitectId) is not required to appear here.
type WorldArchitect struct {
	WorldId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId  uuid.UUID `gorm:"type:uuid;primaryKey"`

	World *World `gorm:"constraint:OnDelete:CASCADE"`
	User  *User  `gorm:"constraint:OnDelete:CASCADE"`
}

// WorldGameMaster is the explicit world-level GM list. This is distinct from
// the campaign-derived notion of "runs some campaign in this world"; both are
// consulted wherever GM standing matters.
type WorldGameMaster struct {
	WorldId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId  uuid.UUID `gorm:"type:uuid;primaryKey"`

	World *World `gorm:"constraint:OnDelete:CASCADE"`
	User  *User  `gorm:"constraint:OnDelete:CASCADE"`
}

type Campaign struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorldId uuid.UUID `gorm:"type:uuid;not null;index"`
	World   *World    `gorm:"constraint:OnDelete:CASCADE"`

	Name        string `gorm:"size:200;not null"`
	Description string

	GameMasterId uuid.UUID `gorm:"type:uuid;not null"`
	CreatedById  uuid.UUID `gorm:"type:uuid;not null"`

	Characters []CampaignCharacter `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Character struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorldId uuid.UUID `gorm:"type:uuid;not null;index"`
	World   *World    `gorm:"constraint:OnDelete:CASCADE"`

	Name        string `gorm:"size:200;not null"`
	Description string

	PlayerId    uuid.UUID `gorm:"type:uuid;not null"`
	CreatedById uuid.UUID `gorm:"type:uuid;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type CampaignCharacter struct {
	CampaignId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	CharacterId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Status string `gorm:"size:50;not null;default:'ACTIVE'"`

	Campaign  *Campaign  `gorm:"constraint:OnDelete:CASCADE"`
	Character *Character `gorm:"constraint:OnDelete:CASCADE"`
}

// EntityType is an administrator defined record schema. A nil WorldId marks a
// cross-world template that can be cloned into worlds.
type EntityType struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorldId *uuid.UUID `gorm:"type:uuid;index"`
	World   *World     `gorm:"constraint:OnDelete:CASCADE"`

	Name        string `gorm:"size:200;not null"`
	Description string

	Fields       []EntityField       `gorm:"constraint:OnDelete:CASCADE"`
	FormSections []EntityFormSection `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityFormSection groups fields for form rendering. Carried through clones.
type EntityFormSection struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityTypeId uuid.UUID `gorm:"type:uuid;not null;index"`

	Title     string `gorm:"size:200;not null"`
	SortOrder int    `gorm:"not null;default:0"`
}

type EntityField struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	EntityTypeId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_entity_field_key"`

	// FieldKey is the immutable identity of the field within its type.
	FieldKey  string `gorm:"size:100;not null;uniqueIndex:idx_entity_field_key"`
	Label     string `gorm:"size:200;not null"`
	FieldType string `gorm:"size:50;not null"`
	Required  bool   `gorm:"not null;default:false"`
	SortOrder int    `gorm:"not null;default:0"`

	// Type constraint for ENTITY_REFERENCE fields.
	ReferenceEntityTypeId *uuid.UUID `gorm:"type:uuid"`

	SectionId *uuid.UUID `gorm:"type:uuid"`

	// Conditions is a JSON expression tree controlling runtime visibility of
	// the field in forms. Opaque to the server.
	Conditions string

	Choices []EntityFieldChoice `gorm:"foreignKey:FieldId;constraint:OnDelete:CASCADE"`
}

type EntityFieldChoice struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	FieldId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_field_choice_value"`

	Value     string `gorm:"size:200;not null;uniqueIndex:idx_field_choice_value"`
	Label     string `gorm:"size:200;not null"`
	SortOrder int    `gorm:"not null;default:0"`
}

type Entity struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorldId      uuid.UUID `gorm:"type:uuid;not null;index"`
	EntityTypeId uuid.UUID `gorm:"type:uuid;not null;index"`

	Name        string `gorm:"size:200;not null"`
	Description string

	CurrentLocationId *uuid.UUID `gorm:"type:uuid"`

	CreatedById uuid.UUID `gorm:"type:uuid;not null"`

	Values []EntityFieldValue `gorm:"constraint:OnDelete:CASCADE"`
	Access []EntityAccess     `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityFieldValue holds one typed value per (entity, field) pair. Exactly one
// of the value columns is non-null; a row with no value is deleted instead of
// written.
type EntityFieldValue struct {
	EntityId uuid.UUID `gorm:"type:uuid;primaryKey"`
	FieldId  uuid.UUID `gorm:"type:uuid;primaryKey"`

	ValueString  *string `gorm:"size:500"`
	ValueText    *string
	ValueBoolean *bool
	ValueNumber  *float64
	ValueJson    *string
}

type EntityAccess struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityId uuid.UUID `gorm:"type:uuid;not null;index"`

	Permission string     `gorm:"size:50;not null"`
	Scope      string     `gorm:"size:50;not null"`
	ScopeId    *uuid.UUID `gorm:"type:uuid"`
}

type Location struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorldId uuid.UUID `gorm:"type:uuid;not null;index"`

	Name        string `gorm:"size:200;not null"`
	Description string

	CreatedById uuid.UUID `gorm:"type:uuid;not null"`

	Values []LocationFieldValue `gorm:"constraint:OnDelete:CASCADE"`
	Access []LocationAccess     `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LocationField is the world-scoped schema for locations, mirroring
// EntityField minus the per-type grouping.
type LocationField struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorldId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_location_field_key"`

	FieldKey  string `gorm:"size:100;not null;uniqueIndex:idx_location_field_key"`
	Label     string `gorm:"size:200;not null"`
	FieldType string `gorm:"size:50;not null"`
	Required  bool   `gorm:"not null;default:false"`
	SortOrder int    `gorm:"not null;default:0"`

	ReferenceEntityTypeId *uuid.UUID `gorm:"type:uuid"`

	Conditions string

	Choices []LocationFieldChoice `gorm:"foreignKey:FieldId;constraint:OnDelete:CASCADE"`
}

type LocationFieldChoice struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	FieldId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_location_choice_value"`

	Value     string `gorm:"size:200;not null;uniqueIndex:idx_location_choice_value"`
	Label     string `gorm:"size:200;not null"`
	SortOrder int    `gorm:"not null;default:0"`
}

type LocationFieldValue struct {
	LocationId uuid.UUID `gorm:"type:uuid;primaryKey"`
	FieldId    uuid.UUID `gorm:"type:uuid;primaryKey"`

	ValueString  *string `gorm:"size:500"`
	ValueText    *string
	ValueBoolean *bool
	ValueNumber  *float64
	ValueJson    *string
}

type LocationAccess struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	LocationId uuid.UUID `gorm:"type:uuid;not null;index"`

	Permission string     `gorm:"size:50;not null"`
	Scope      string     `gorm:"size:50;not null"`
	ScopeId    *uuid.UUID `gorm:"type:uuid"`
}

// Note and NoteTag are session note glue. The note-taking surface itself lives
// outside this service, but entity deletion must cascade through these rows.
type Note struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	EntityId   uuid.UUID  `gorm:"type:uuid;not null;index"`
	CampaignId *uuid.UUID `gorm:"type:uuid"`
	AuthorId   uuid.UUID  `gorm:"type:uuid;not null"`

	Content string

	CreatedAt time.Time
}

type NoteTag struct {
	NoteId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityId uuid.UUID `gorm:"type:uuid;primaryKey;index"`
}

// SystemAudit rows are append-only. They are never updated or deleted, so the
// trail outlives the records it describes.
type SystemAudit struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	EntityKey string    `gorm:"size:100;not null;index:idx_audit_entity"`
	EntityId  uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_entity"`

	Action  string    `gorm:"size:100;not null"`
	ActorId uuid.UUID `gorm:"type:uuid;not null"`
	Details string

	CreatedAt time.Time
}

// AllModels is the full migration set, shared by server startup and tests.
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &World{}, &WorldArchitect{}, &WorldGameMaster{},
		&Campaign{}, &Character{}, &CampaignCharacter{},
		&EntityType{}, &EntityFormSection{}, &EntityField{}, &EntityFieldChoice{},
		&Entity{}, &EntityFieldValue{}, &EntityAccess{},
		&Location{}, &LocationField{}, &LocationFieldChoice{}, &LocationFieldValue{}, &LocationAccess{},
		&Note{}, &NoteTag{}, &SystemAudit{},
	}
}
