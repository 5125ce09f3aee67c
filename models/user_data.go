package models

// User-generated activity rows. These reference mirrored entities by their
// composite identity and are exactly what identity reconciliation transfers
// from an orphan to its merge target.

// Rating is one user's rating of one entity (0-100 scale).
type Rating struct {
	UserID     uint   `gorm:"primaryKey" json:"user_id"`
	EntityType string `gorm:"primaryKey" json:"entity_type"`
	EntityID   string `gorm:"primaryKey;index:idx_rating_entity" json:"entity_id"`
	InstanceID string `gorm:"primaryKey;index:idx_rating_entity" json:"instance_id"`

	Rating    int   `gorm:"not null" json:"rating"`
	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Rating) TableName() string {
	return "ratings"
}

// WatchHistory is one playback event for one entity.
type WatchHistory struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint   `gorm:"not null;index" json:"user_id"`
	EntityType string `gorm:"not null" json:"entity_type"`
	EntityID   string `gorm:"not null;index:idx_watch_entity" json:"entity_id"`
	InstanceID string `gorm:"not null;index:idx_watch_entity" json:"instance_id"`

	WatchedAt      int64 `gorm:"not null" json:"watched_at"`
	ResumePosition *int  `gorm:"" json:"resume_position,omitempty"` // Nullable, seconds
}

// TableName explicitly sets the table name for GORM.
func (WatchHistory) TableName() string {
	return "watch_history"
}

// Favorite marks one entity as a favorite of one user.
type Favorite struct {
	UserID     uint   `gorm:"primaryKey" json:"user_id"`
	EntityType string `gorm:"primaryKey" json:"entity_type"`
	EntityID   string `gorm:"primaryKey;index:idx_fav_entity" json:"entity_id"`
	InstanceID string `gorm:"primaryKey;index:idx_fav_entity" json:"instance_id"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (Favorite) TableName() string {
	return "favorites"
}
