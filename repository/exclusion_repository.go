package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// ExclusionRepository handles database operations for the precomputed
// per-user exclusion table and the visible-count cache
type ExclusionRepository struct {
	DB *gorm.DB
}

// NewExclusionRepository creates a new instance of ExclusionRepository
func NewExclusionRepository(db *gorm.DB) *ExclusionRepository {
	return &ExclusionRepository{DB: db}
}

// ReplaceForUserAndType atomically swaps the exclusion rows and visible
// counts for one (user, entity type) pair. The table is a materialized view:
// recompute always replaces wholesale, never patches.
func (r *ExclusionRepository) ReplaceForUserAndType(userID uint, entityType models.EntityType, rows []models.UserExclusion, counts []models.UserVisibleCount) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND entity_type = ?", userID, string(entityType)).
			Delete(&models.UserExclusion{}).Error; err != nil {
			return fmt.Errorf("failed to clear exclusion rows: %w", err)
		}
		if err := tx.Where("user_id = ? AND entity_type = ?", userID, string(entityType)).
			Delete(&models.UserVisibleCount{}).Error; err != nil {
			return fmt.Errorf("failed to clear visible counts: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("failed to write exclusion rows: %w", err)
			}
		}
		if len(counts) > 0 {
			if err := tx.Create(counts).Error; err != nil {
				return fmt.Errorf("failed to write visible counts: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace exclusions for user %d type %s: %w", userID, entityType, err)
	}
	return nil
}

// IsExcluded reports whether one entity is hidden from one user.
func (r *ExclusionRepository) IsExcluded(userID uint, entityType models.EntityType, key models.EntityKey) (bool, error) {
	var count int64
	err := r.DB.Model(&models.UserExclusion{}).
		Where("user_id = ? AND entity_type = ? AND entity_id = ? AND instance_id = ?",
			userID, string(entityType), key.ExternalID, key.SourceInstanceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check exclusion: %w", err)
	}
	return count > 0, nil
}

// ListForUserAndType returns the computed exclusion rows for one pair.
func (r *ExclusionRepository) ListForUserAndType(userID uint, entityType models.EntityType) ([]models.UserExclusion, error) {
	var rows []models.UserExclusion
	err := r.DB.Where("user_id = ? AND entity_type = ?", userID, string(entityType)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusions for user %d type %s: %w", userID, entityType, err)
	}
	return rows, nil
}

// VisibleCount reads the cached visible total for pagination. Falls back to
// zero rows (not an error) when no cache row exists yet.
func (r *ExclusionRepository) VisibleCount(userID uint, entityType models.EntityType) (int64, error) {
	var total int64
	err := r.DB.Model(&models.UserVisibleCount{}).
		Select("COALESCE(SUM(visible_count), 0)").
		Where("user_id = ? AND entity_type = ?", userID, string(entityType)).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read visible count for user %d type %s: %w", userID, entityType, err)
	}
	return total, nil
}

// Stats aggregates the exclusion table by user, entity type and reason for
// the admin stats endpoint.
func (r *ExclusionRepository) Stats() ([]models.ExclusionStat, error) {
	var stats []models.ExclusionStat
	err := r.DB.Model(&models.UserExclusion{}).
		Select("user_id, entity_type, reason, COUNT(*) AS count").
		Group("user_id").Group("entity_type").Group("reason").
		Order("user_id ASC, entity_type ASC, reason ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate exclusion stats: %w", err)
	}
	return stats, nil
}

// PurgeForEntity removes exclusion rows referencing one entity, used when
// reconciliation hard-deletes an orphan.
func (r *ExclusionRepository) PurgeForEntity(tx *gorm.DB, entityType models.EntityType, key models.EntityKey) error {
	err := tx.Where("entity_type = ? AND entity_id = ? AND instance_id = ?",
		string(entityType), key.ExternalID, key.SourceInstanceID).
		Delete(&models.UserExclusion{}).Error
	if err != nil {
		return fmt.Errorf("failed to purge exclusion rows for %s %s/%s: %w",
			entityType, key.SourceInstanceID, key.ExternalID, err)
	}
	return nil
}
