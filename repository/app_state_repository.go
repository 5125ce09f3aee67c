package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// AppStateRepository handles the single-row app_state table
type AppStateRepository struct {
	DB *gorm.DB
}

// NewAppStateRepository creates a new instance of AppStateRepository
func NewAppStateRepository(db *gorm.DB) *AppStateRepository {
	return &AppStateRepository{DB: db}
}

// Get returns the app state row, creating it with a zero schema version on
// first use so a fresh database always reads as "migration pending".
func (r *AppStateRepository) Get() (*models.AppState, error) {
	var state models.AppState
	err := r.DB.First(&state, 1).Error
	if err == gorm.ErrRecordNotFound {
		state = models.AppState{ID: 1, SchemaVersion: 0, UpdatedAt: time.Now().Unix()}
		if createErr := r.DB.Create(&state).Error; createErr != nil {
			return nil, fmt.Errorf("failed to init app state: %w", createErr)
		}
		return &state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app state: %w", err)
	}
	return &state, nil
}

// SetSchemaVersion records the schema version the database now matches.
func (r *AppStateRepository) SetSchemaVersion(version int) error {
	if _, err := r.Get(); err != nil {
		return err
	}
	err := r.DB.Model(&models.AppState{}).Where("id = ?", 1).
		Updates(map[string]interface{}{
			"schema_version": version,
			"updated_at":     time.Now().Unix(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// MarkFirstRunDone records that at least one startup sync has completed.
func (r *AppStateRepository) MarkFirstRunDone() error {
	if _, err := r.Get(); err != nil {
		return err
	}
	err := r.DB.Model(&models.AppState{}).Where("id = ?", 1).
		Updates(map[string]interface{}{
			"first_run_done": true,
			"updated_at":     time.Now().Unix(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark first run done: %w", err)
	}
	return nil
}
