package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// SourceRepository handles database operations for configured source instances
type SourceRepository struct {
	DB *gorm.DB
}

// NewSourceRepository creates a new instance of SourceRepository
func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{DB: db}
}

// Create creates a new source instance record
func (r *SourceRepository) Create(src *models.SourceInstance) error {
	now := time.Now().Unix()
	if src.CreatedAt == 0 {
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	if err := r.DB.Create(src).Error; err != nil {
		return fmt.Errorf("failed to create source instance %s: %w", src.Name, err)
	}
	return nil
}

// GetByID retrieves a source instance by its ID
func (r *SourceRepository) GetByID(id string) (*models.SourceInstance, error) {
	var src models.SourceInstance
	err := r.DB.Where("id = ?", id).First(&src).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get source instance %s: %w", id, err)
	}
	return &src, nil
}

// ListAll retrieves all configured source instances, ordered by name
func (r *SourceRepository) ListAll() ([]models.SourceInstance, error) {
	var sources []models.SourceInstance
	if err := r.DB.Order("name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to list source instances: %w", err)
	}
	return sources, nil
}

// ListEnabled retrieves the source instances sync passes run against
func (r *SourceRepository) ListEnabled() ([]models.SourceInstance, error) {
	var sources []models.SourceInstance
	if err := r.DB.Where("enabled = ?", true).Order("name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled source instances: %w", err)
	}
	return sources, nil
}

// Update updates a source instance's mutable fields
func (r *SourceRepository) Update(id string, name, endpoint, apiKey *string, enabled *bool) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if name != nil {
		updates["name"] = *name
	}
	if endpoint != nil {
		updates["endpoint"] = *endpoint
	}
	if apiKey != nil {
		updates["api_key"] = *apiKey
	}
	if enabled != nil {
		updates["enabled"] = *enabled
	}

	result := r.DB.Model(&models.SourceInstance{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update source instance %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a source instance configuration. Mirrored rows for the
// instance stay behind as orphan candidates for reconciliation.
func (r *SourceRepository) Delete(id string) error {
	result := r.DB.Where("id = ?", id).Delete(&models.SourceInstance{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete source instance %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
