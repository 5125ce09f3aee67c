package models

// MergeRecord is one immutable audit entry for a reconciliation transfer:
// user-generated data that referenced (SourceInstanceID, SourceEntityID) was
// moved to (TargetInstanceID, TargetEntityID). Rows are append-only.
type MergeRecord struct {
	ID string `gorm:"primaryKey" json:"id"` // UUID

	EntityType string `gorm:"not null;index" json:"entity_type"`

	SourceEntityID   string `gorm:"not null" json:"source_entity_id"`
	SourceInstanceID string `gorm:"not null" json:"source_instance_id"`
	TargetEntityID   string `gorm:"not null;index:idx_merge_target" json:"target_entity_id"`
	TargetInstanceID string `gorm:"not null;index:idx_merge_target" json:"target_instance_id"`

	// ActorID is the admin user that initiated the transfer, or 0 for the
	// automatic exact-match batch.
	ActorID   uint  `gorm:"not null" json:"actor_id"`
	CreatedAt int64 `gorm:"not null" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (MergeRecord) TableName() string {
	return "merge_records"
}
