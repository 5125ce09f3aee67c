package models

// Clip represents a short-form clip record mirrored from an upstream catalog.
// It corresponds to the 'clips' table.
type Clip struct {
	CatalogRow

	Title    string  `gorm:"not null" json:"title"`
	Duration *int    `gorm:"" json:"duration,omitempty"` // Nullable, seconds
	Phash    *string `gorm:"index" json:"phash,omitempty"`

	// a clip is cut from a scene when the source says so
	SceneID         *string `gorm:"index:idx_clips_scene" json:"scene_id,omitempty"`
	SceneInstanceID *string `gorm:"index:idx_clips_scene" json:"scene_instance_id,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Clip) TableName() string {
	return "clips"
}
