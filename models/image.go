package models

// Image represents an image record mirrored from an upstream catalog.
// It corresponds to the 'images' table.
type Image struct {
	CatalogRow

	Title  *string `gorm:"" json:"title,omitempty"`  // Nullable
	Width  *int    `gorm:"" json:"width,omitempty"`  // Nullable
	Height *int    `gorm:"" json:"height,omitempty"` // Nullable
	Phash  *string `gorm:"index" json:"phash,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}
