package models

// Restriction modes for one entity type for one user.
const (
	RestrictionModeNone    = "none"
	RestrictionModeExclude = "exclude" // listed ids are hidden, everything else visible
	RestrictionModeInclude = "include" // only listed ids are visible, everything else hidden
)

// Entity types a restriction rule may target.
var RestrictableTypes = []EntityType{EntityTag, EntityStudio, EntityGroup, EntityGallery}

// IsRestrictableType checks if an entity type can carry restriction rules
func IsRestrictableType(t EntityType) bool {
	for _, rt := range RestrictableTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// IsValidRestrictionMode checks if a string is a valid restriction mode
func IsValidRestrictionMode(mode string) bool {
	switch mode {
	case RestrictionModeNone, RestrictionModeExclude, RestrictionModeInclude:
		return true
	default:
		return false
	}
}

// RestrictionRule is one per-user visibility policy for one restrictable
// entity type. A user holds at most one rule per (target type, mode) pair, so
// an include list and an exclude list can be active on the same type at once.
// EntityIDs holds (external_id, instance_id) pairs; RestrictEmpty additionally
// hides entities with no value at all for the relation (e.g. scenes with zero
// tags when the rule targets tags).
type RestrictionRule struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint   `gorm:"not null;index:idx_rule_user_type_mode,unique" json:"user_id"`
	TargetType string `gorm:"not null;index:idx_rule_user_type_mode,unique" json:"target_type"`

	Mode          string      `gorm:"not null;default:none;index:idx_rule_user_type_mode,unique" json:"mode"`
	EntityIDs     []EntityKey `gorm:"serializer:json" json:"entity_ids"`
	RestrictEmpty bool        `gorm:"not null;default:false" json:"restrict_empty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (RestrictionRule) TableName() string {
	return "restriction_rules"
}

// HiddenEntity is one explicit per-user hide marker. Unlike restriction rules
// these reference a single entity directly and survive reconciliation by being
// transferred to the merge target.
type HiddenEntity struct {
	UserID     uint   `gorm:"primaryKey" json:"user_id"`
	EntityType string `gorm:"primaryKey" json:"entity_type"`
	EntityID   string `gorm:"primaryKey" json:"entity_id"`
	InstanceID string `gorm:"primaryKey" json:"instance_id"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (HiddenEntity) TableName() string {
	return "hidden_entities"
}
