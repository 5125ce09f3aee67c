package models

// Tag represents a tag record mirrored from an upstream catalog.
// It corresponds to the 'tags' table.
type Tag struct {
	CatalogRow

	Name        string  `gorm:"not null;index" json:"name"`
	Description *string `gorm:"" json:"description,omitempty"` // Nullable
}

// TableName explicitly sets the table name for GORM.
func (Tag) TableName() string {
	return "tags"
}
