package models

// Scene represents a scene record mirrored from an upstream catalog.
// It corresponds to the 'scenes' table.
type Scene struct {
	CatalogRow

	Title    string  `gorm:"not null" json:"title"`
	Details  *string `gorm:"" json:"details,omitempty"`  // Nullable
	URL      *string `gorm:"" json:"url,omitempty"`      // Nullable
	Date     *string `gorm:"" json:"date,omitempty"`     // Nullable, YYYY-MM-DD as given by the source
	Duration *int    `gorm:"" json:"duration,omitempty"` // Nullable, seconds
	Phash    *string `gorm:"index" json:"phash,omitempty"`

	// studio is a direct column rather than a junction; a scene has at most one
	StudioID         *string `gorm:"index:idx_scenes_studio" json:"studio_id,omitempty"`
	StudioInstanceID *string `gorm:"index:idx_scenes_studio" json:"studio_instance_id,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Scene) TableName() string {
	return "scenes"
}
