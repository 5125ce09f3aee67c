package repository

import (
	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// EntityRepositoryInterface defines the methods for mirrored entity operations
type EntityRepositoryInterface interface {
	ApplyBatch(batch EntityBatch) error
	ListActiveIDs(t models.EntityType, instanceID string) ([]string, error)
	SoftDeleteByIDs(t models.EntityType, instanceID string, ids []string, now int64) error
	SoftDeleteOne(t models.EntityType, key models.EntityKey, now int64) error
	Get(t models.EntityType, key models.EntityKey) (*EntityInfo, error)
	HardDelete(tx *gorm.DB, t models.EntityType, key models.EntityKey) error
	PurgeDanglingJunctions() (int64, error)
	CountActiveByInstance(t models.EntityType) (map[string]int64, error)
	ListActiveKeys(t models.EntityType) ([]models.EntityKey, error)
	ListFingerprinted(t models.EntityType, excludeKey models.EntityKey, limit int) ([]EntityInfo, error)
}

// CursorRepositoryInterface defines the methods for sync cursor operations
type CursorRepositoryInterface interface {
	GetOrInit(entityType models.EntityType) (*models.SyncCursor, error)
	ListAll() ([]models.SyncCursor, error)
	AdvanceFull(entityType models.EntityType, sourceCursor int64, count int64) error
	AdvanceIncremental(entityType models.EntityType, sourceCursor int64, count int64) error
	MarkAborted(entityType models.EntityType) error
	AnyAborted() (bool, error)
	HasAnyFullSync() (bool, error)
}

// SourceRepositoryInterface defines the methods for source instance operations
type SourceRepositoryInterface interface {
	Create(src *models.SourceInstance) error
	GetByID(id string) (*models.SourceInstance, error)
	ListAll() ([]models.SourceInstance, error)
	ListEnabled() ([]models.SourceInstance, error)
	Update(id string, name, endpoint, apiKey *string, enabled *bool) error
	Delete(id string) error
}

// ActivityRepositoryInterface defines the methods for user activity operations
type ActivityRepositoryInterface interface {
	Summarize(entityType models.EntityType, key models.EntityKey) (*ActivitySummary, error)
	ListEntityKeysWithActivity(entityType models.EntityType) ([]models.EntityKey, error)
	TransferAll(tx *gorm.DB, entityType models.EntityType, from, to models.EntityKey) error
	DeleteAllFor(tx *gorm.DB, entityType models.EntityType, key models.EntityKey) error
	UpsertRating(rating *models.Rating) error
	AddWatchHistory(entry *models.WatchHistory) error
}

// MergeRepositoryInterface defines the methods for merge record operations
type MergeRepositoryInterface interface {
	Create(tx *gorm.DB, record *models.MergeRecord) error
	ListRecent(limit int) ([]models.MergeRecord, error)
	ListByTarget(entityType models.EntityType, key models.EntityKey) ([]models.MergeRecord, error)
}

// ExclusionRepositoryInterface defines the methods for exclusion table operations
type ExclusionRepositoryInterface interface {
	ReplaceForUserAndType(userID uint, entityType models.EntityType, rows []models.UserExclusion, counts []models.UserVisibleCount) error
	IsExcluded(userID uint, entityType models.EntityType, key models.EntityKey) (bool, error)
	ListForUserAndType(userID uint, entityType models.EntityType) ([]models.UserExclusion, error)
	VisibleCount(userID uint, entityType models.EntityType) (int64, error)
	Stats() ([]models.ExclusionStat, error)
	PurgeForEntity(tx *gorm.DB, entityType models.EntityType, key models.EntityKey) error
}

// UserRepositoryInterface defines the methods for user and visibility policy operations
type UserRepositoryInterface interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	ListAllIDs() ([]uint, error)
	ListIDsWithVisibilityPolicies() ([]uint, error)
	GetRestrictionRules(userID uint) ([]models.RestrictionRule, error)
	SetRestrictionRule(rule *models.RestrictionRule) error
	GetHiddenEntities(userID uint, entityType models.EntityType) ([]models.HiddenEntity, error)
	HideEntity(h *models.HiddenEntity) error
}
