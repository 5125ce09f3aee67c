package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// MergeRepository handles database operations for reconciliation audit records
type MergeRepository struct {
	DB *gorm.DB
}

// NewMergeRepository creates a new instance of MergeRepository
func NewMergeRepository(db *gorm.DB) *MergeRepository {
	return &MergeRepository{DB: db}
}

// Create appends one merge record inside the given transaction. Records are
// immutable after creation; there is deliberately no update or delete method.
func (r *MergeRepository) Create(tx *gorm.DB, record *models.MergeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create merge record: %w", err)
	}
	return nil
}

// ListRecent returns the newest merge records for the admin surface.
func (r *MergeRepository) ListRecent(limit int) ([]models.MergeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []models.MergeRecord
	err := r.DB.Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list merge records: %w", err)
	}
	return records, nil
}

// ListByTarget returns the merge records whose transfers landed on one entity.
func (r *MergeRepository) ListByTarget(entityType models.EntityType, key models.EntityKey) ([]models.MergeRecord, error) {
	var records []models.MergeRecord
	err := r.DB.
		Where("entity_type = ? AND target_entity_id = ? AND target_instance_id = ?",
			string(entityType), key.ExternalID, key.SourceInstanceID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list merge records by target: %w", err)
	}
	return records, nil
}
