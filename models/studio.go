package models

// Studio represents a studio record mirrored from an upstream catalog.
// It corresponds to the 'studios' table.
type Studio struct {
	CatalogRow

	Name    string  `gorm:"not null;index" json:"name"`
	URL     *string `gorm:"" json:"url,omitempty"`     // Nullable
	Details *string `gorm:"" json:"details,omitempty"` // Nullable
}

// TableName explicitly sets the table name for GORM.
func (Studio) TableName() string {
	return "studios"
}
