package models

// Performer represents a performer record mirrored from an upstream catalog.
// It corresponds to the 'performers' table.
type Performer struct {
	CatalogRow

	Name           string  `gorm:"not null;index" json:"name"`
	Disambiguation *string `gorm:"" json:"disambiguation,omitempty"` // Nullable
	Gender         *string `gorm:"" json:"gender,omitempty"`         // Nullable
	Birthdate      *string `gorm:"" json:"birthdate,omitempty"`      // Nullable
	Country        *string `gorm:"" json:"country,omitempty"`        // Nullable
	Favorite       bool    `gorm:"not null;default:false" json:"favorite"`
}

// TableName explicitly sets the table name for GORM.
func (Performer) TableName() string {
	return "performers"
}
