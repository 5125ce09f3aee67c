package models

// SourceInstance is one configured upstream catalog connection. Every mirrored
// row's source_instance_id must reference one of these; a row pointing at an
// unknown instance is a data-repair bug, not a valid state.
type SourceInstance struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"not null;unique" json:"name"`
	Endpoint string `gorm:"not null" json:"endpoint"`
	APIKey   string `gorm:"not null" json:"-"`
	Enabled  bool   `gorm:"not null;default:true" json:"enabled"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (SourceInstance) TableName() string {
	return "source_instances"
}
