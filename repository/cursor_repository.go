package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// CursorRepository handles database operations for sync cursors
type CursorRepository struct {
	DB *gorm.DB
}

// NewCursorRepository creates a new instance of CursorRepository
func NewCursorRepository(db *gorm.DB) *CursorRepository {
	return &CursorRepository{DB: db}
}

// GetOrInit returns the cursor row for an entity type, creating an empty one
// on first use.
func (r *CursorRepository) GetOrInit(entityType models.EntityType) (*models.SyncCursor, error) {
	var cursor models.SyncCursor
	err := r.DB.Where("entity_type = ?", string(entityType)).First(&cursor).Error
	if err == gorm.ErrRecordNotFound {
		cursor = models.SyncCursor{EntityType: string(entityType)}
		if createErr := r.DB.Create(&cursor).Error; createErr != nil {
			return nil, fmt.Errorf("failed to init sync cursor for %s: %w", entityType, createErr)
		}
		return &cursor, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cursor for %s: %w", entityType, err)
	}
	return &cursor, nil
}

// ListAll returns every cursor row for the status surface.
func (r *CursorRepository) ListAll() ([]models.SyncCursor, error) {
	var cursors []models.SyncCursor
	if err := r.DB.Order("entity_type ASC").Find(&cursors).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync cursors: %w", err)
	}
	return cursors, nil
}

// AdvanceFull commits a completed full pass: both cursors move to the max
// source timestamp seen (a full sweep subsumes the incremental window), the
// aborted flag clears and the count is recorded. Called only after every page
// and the tombstone sweep have committed.
func (r *CursorRepository) AdvanceFull(entityType models.EntityType, sourceCursor int64, count int64) error {
	now := time.Now().Unix()
	err := r.DB.Model(&models.SyncCursor{}).
		Where("entity_type = ?", string(entityType)).
		Updates(map[string]interface{}{
			"last_full_sync":               sourceCursor,
			"last_incremental_sync":        sourceCursor,
			"last_full_sync_actual":        now,
			"last_incremental_sync_actual": now,
			"last_sync_count":              count,
			"aborted":                      false,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to advance full-sync cursor for %s: %w", entityType, err)
	}
	return nil
}

// AdvanceIncremental commits a completed incremental pass. The cursor moves to
// the max updated_at observed in the pass, never to "now", so clock skew and
// late writes with equal timestamps are re-covered next time.
func (r *CursorRepository) AdvanceIncremental(entityType models.EntityType, sourceCursor int64, count int64) error {
	now := time.Now().Unix()
	err := r.DB.Model(&models.SyncCursor{}).
		Where("entity_type = ?", string(entityType)).
		Updates(map[string]interface{}{
			"last_incremental_sync":        sourceCursor,
			"last_incremental_sync_actual": now,
			"last_sync_count":              count,
			"aborted":                      false,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to advance incremental cursor for %s: %w", entityType, err)
	}
	return nil
}

// MarkAborted flags a cursor whose pass was cancelled mid-flight. The cursor
// values themselves are left untouched.
func (r *CursorRepository) MarkAborted(entityType models.EntityType) error {
	err := r.DB.Model(&models.SyncCursor{}).
		Where("entity_type = ?", string(entityType)).
		Update("aborted", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark cursor aborted for %s: %w", entityType, err)
	}
	return nil
}

// AnyAborted reports whether any entity type's last pass was cancelled, which
// forces the next startup sync to be full.
func (r *CursorRepository) AnyAborted() (bool, error) {
	var count int64
	if err := r.DB.Model(&models.SyncCursor{}).Where("aborted = ?", true).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check for aborted cursors: %w", err)
	}
	return count > 0, nil
}

// HasAnyFullSync reports whether any entity type has ever completed a full
// pass; false means this is the first run ever.
func (r *CursorRepository) HasAnyFullSync() (bool, error) {
	var count int64
	if err := r.DB.Model(&models.SyncCursor{}).Where("last_full_sync IS NOT NULL").Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check for completed full syncs: %w", err)
	}
	return count > 0, nil
}
