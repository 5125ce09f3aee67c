package models

// AppState is a single-row table carrying process-level markers the startup
// policy reads: the schema version the database was last migrated to and
// whether any run has ever completed.
type AppState struct {
	ID            uint  `gorm:"primaryKey" json:"id"` // always 1
	SchemaVersion int   `gorm:"not null" json:"schema_version"`
	FirstRunDone  bool  `gorm:"not null;default:false" json:"first_run_done"`
	UpdatedAt     int64 `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (AppState) TableName() string {
	return "app_state"
}
