package models

// EntityType identifies one mirrored catalog table.
type EntityType string

const (
	EntityScene     EntityType = "scene"
	EntityPerformer EntityType = "performer"
	EntityStudio    EntityType = "studio"
	EntityTag       EntityType = "tag"
	EntityGroup     EntityType = "group"
	EntityGallery   EntityType = "gallery"
	EntityImage     EntityType = "image"
	EntityClip      EntityType = "clip"
)

// AllEntityTypes lists every mirrored entity type in sync order. Studios, tags
// and performers come before the types that reference them so junction rows
// written during a pass point at rows that already exist.
var AllEntityTypes = []EntityType{
	EntityTag,
	EntityStudio,
	EntityPerformer,
	EntityGroup,
	EntityGallery,
	EntityScene,
	EntityImage,
	EntityClip,
}

// IsValidEntityType checks if a value names a mirrored entity type
func IsValidEntityType(t EntityType) bool {
	switch t {
	case EntityScene, EntityPerformer, EntityStudio, EntityTag,
		EntityGroup, EntityGallery, EntityImage, EntityClip:
		return true
	default:
		return false
	}
}

// Lifecycle states for entity rows. Rows are never hard-deleted by sync; a
// full sweep moves absent rows to StateSoftDeleted and only reconciliation may
// remove a row outright.
const (
	StateActive      = "active"
	StateSoftDeleted = "soft_deleted"
)

// EntityKey is the composite identity of one mirrored row.
type EntityKey struct {
	ExternalID       string `json:"external_id"`
	SourceInstanceID string `json:"source_instance_id"`
}

// CatalogRow holds the columns shared by every mirrored entity table. The
// created_at/updated_at timestamps are mirrored from the source (UTC unix
// seconds); synced_at is the local wall clock of the pass that last wrote the
// row.
type CatalogRow struct {
	ExternalID       string `gorm:"primaryKey" json:"external_id"`
	SourceInstanceID string `gorm:"primaryKey" json:"source_instance_id"`
	State            string `gorm:"not null;default:active;index" json:"state"`
	DeletedAt        *int64 `gorm:"" json:"deleted_at,omitempty"` // Nullable, unix timestamp
	CreatedAt        int64  `gorm:"not null" json:"created_at"`
	UpdatedAt        int64  `gorm:"not null;index" json:"updated_at"`
	SyncedAt         int64  `gorm:"not null" json:"synced_at"`
}
