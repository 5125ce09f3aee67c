package models

// Exclusion reasons recorded on computed rows.
const (
	ExclusionReasonHidden     = "hidden"     // explicit per-user hide
	ExclusionReasonRestricted = "restricted" // matched a restriction rule or its cascade
	ExclusionReasonEmpty      = "empty"      // restrict-empty rule: no value for the relation
)

// UserExclusion is one precomputed "this entity is hidden from this user" row.
// The set for a (user, entity type) pair is always dropped and rebuilt as a
// whole by the exclusion computer; rows are never patched in place.
type UserExclusion struct {
	UserID     uint   `gorm:"primaryKey;index:idx_excl_user_type" json:"user_id"`
	EntityType string `gorm:"primaryKey;index:idx_excl_user_type" json:"entity_type"`
	EntityID   string `gorm:"primaryKey" json:"entity_id"`
	InstanceID string `gorm:"primaryKey" json:"instance_id"`

	Reason     string `gorm:"not null" json:"reason"`
	ComputedAt int64  `gorm:"not null" json:"computed_at"`
}

// TableName explicitly sets the table name for GORM.
func (UserExclusion) TableName() string {
	return "user_exclusions"
}

// UserVisibleCount caches the number of active, non-excluded entities of one
// type per source instance for a user, so paginated totals don't need a count
// query per request. Recomputed alongside the exclusion rows.
type UserVisibleCount struct {
	UserID     uint   `gorm:"primaryKey" json:"user_id"`
	EntityType string `gorm:"primaryKey" json:"entity_type"`
	InstanceID string `gorm:"primaryKey" json:"instance_id"`

	VisibleCount int64 `gorm:"not null" json:"visible_count"`
	ComputedAt   int64 `gorm:"not null" json:"computed_at"`
}

// TableName explicitly sets the table name for GORM.
func (UserVisibleCount) TableName() string {
	return "user_visible_counts"
}

// ExclusionStat is a read-only aggregation row for the admin stats endpoint.
type ExclusionStat struct {
	UserID     uint   `json:"user_id"`
	EntityType string `json:"entity_type"`
	Reason     string `json:"reason"`
	Count      int64  `json:"count"`
}
