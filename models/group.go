package models

// Group represents a group (collection/series) record mirrored from an
// upstream catalog. It corresponds to the 'groups' table.
type Group struct {
	CatalogRow

	Name     string  `gorm:"not null;index" json:"name"`
	Synopsis *string `gorm:"" json:"synopsis,omitempty"` // Nullable
	Date     *string `gorm:"" json:"date,omitempty"`     // Nullable

	StudioID         *string `gorm:"" json:"studio_id,omitempty"`
	StudioInstanceID *string `gorm:"" json:"studio_instance_id,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Group) TableName() string {
	return "groups"
}
