package models

// Gallery represents a gallery record mirrored from an upstream catalog.
// It corresponds to the 'galleries' table.
type Gallery struct {
	CatalogRow

	Title   string  `gorm:"not null" json:"title"`
	Details *string `gorm:"" json:"details,omitempty"` // Nullable
	Date    *string `gorm:"" json:"date,omitempty"`    // Nullable

	StudioID         *string `gorm:"index:idx_galleries_studio" json:"studio_id,omitempty"`
	StudioInstanceID *string `gorm:"index:idx_galleries_studio" json:"studio_instance_id,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Gallery) TableName() string {
	return "galleries"
}
