package models

// SyncCursor tracks sync progress for one entity type. The source-clock
// columns (LastFullSync / LastIncrementalSync) are the values used as query
// cursors against the upstream; the *Actual columns are local wall clock kept
// for observability only. Cursors advance only after every page of a pass has
// committed; a failed or aborted pass leaves them untouched so the next
// attempt re-covers the same window.
type SyncCursor struct {
	EntityType string `gorm:"primaryKey" json:"entity_type"`

	LastFullSync        *int64 `gorm:"" json:"last_full_sync,omitempty"`        // Nullable, source clock unix
	LastIncrementalSync *int64 `gorm:"" json:"last_incremental_sync,omitempty"` // Nullable, source clock unix

	LastFullSyncActual        *int64 `gorm:"" json:"last_full_sync_actual,omitempty"`        // Nullable, local clock unix
	LastIncrementalSyncActual *int64 `gorm:"" json:"last_incremental_sync_actual,omitempty"` // Nullable, local clock unix

	LastSyncCount int64 `gorm:"not null;default:0" json:"last_sync_count"`

	// Aborted marks a pass that was cancelled mid-flight; the startup policy
	// forces a full sync when any cursor carries this flag.
	Aborted bool `gorm:"not null;default:false" json:"aborted"`
}

// TableName explicitly sets the table name for GORM.
func (SyncCursor) TableName() string {
	return "sync_cursors"
}
