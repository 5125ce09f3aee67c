package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/catalogmirror/models"
)

// ActivityRepository handles database operations for user-generated activity
// (ratings, watch history, favorites, explicit hides). These are the rows
// reconciliation transfers between entity identities, so the repository is
// built to run over a caller-supplied transaction.
type ActivityRepository struct {
	DB *gorm.DB
}

// NewActivityRepository creates a new instance of ActivityRepository
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

// ActivitySummary counts the user data attached to one entity.
type ActivitySummary struct {
	Ratings      int64 `json:"ratings"`
	WatchHistory int64 `json:"watch_history"`
	Favorites    int64 `json:"favorites"`
	Hidden       int64 `json:"hidden"`
}

// Total returns the combined number of attached activity rows.
func (s ActivitySummary) Total() int64 {
	return s.Ratings + s.WatchHistory + s.Favorites + s.Hidden
}

func entityScope(db *gorm.DB, entityType string, key models.EntityKey) *gorm.DB {
	return db.Where("entity_type = ? AND entity_id = ? AND instance_id = ?",
		entityType, key.ExternalID, key.SourceInstanceID)
}

// Summarize counts the activity rows referencing one entity.
func (r *ActivityRepository) Summarize(entityType models.EntityType, key models.EntityKey) (*ActivitySummary, error) {
	var sum ActivitySummary
	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&models.Rating{}, &sum.Ratings},
		{&models.WatchHistory{}, &sum.WatchHistory},
		{&models.Favorite{}, &sum.Favorites},
		{&models.HiddenEntity{}, &sum.Hidden},
	}
	for _, c := range counts {
		if err := entityScope(r.DB.Model(c.model), string(entityType), key).Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count activity for %s %s/%s: %w",
				entityType, key.SourceInstanceID, key.ExternalID, err)
		}
	}
	return &sum, nil
}

// ListEntityKeysWithActivity returns the distinct entity keys of one type that
// any activity row references, regardless of whether the entity still exists.
func (r *ActivityRepository) ListEntityKeysWithActivity(entityType models.EntityType) ([]models.EntityKey, error) {
	seen := make(map[models.EntityKey]struct{})
	var out []models.EntityKey

	for _, table := range []string{"ratings", "watch_history", "favorites", "hidden_entities"} {
		var keys []models.EntityKey
		err := r.DB.Table(table).
			Select("DISTINCT entity_id AS external_id, instance_id AS source_instance_id").
			Where("entity_type = ?", string(entityType)).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to list %s activity keys from %s: %w", entityType, table, err)
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// TransferAll moves every activity row from one entity identity to another
// inside the given transaction. Rows whose user already has an equivalent row
// on the target (same composite key) are dropped rather than duplicated; the
// target's own data wins.
func (r *ActivityRepository) TransferAll(tx *gorm.DB, entityType models.EntityType, from, to models.EntityKey) error {
	type keyedTable struct {
		table string
	}
	// composite-keyed tables: move what doesn't collide, then drop leftovers
	for _, t := range []keyedTable{{"ratings"}, {"favorites"}, {"hidden_entities"}} {
		err := tx.Exec(fmt.Sprintf(
			`UPDATE %s SET entity_id = ?, instance_id = ?
			 WHERE entity_type = ? AND entity_id = ? AND instance_id = ?
			   AND NOT EXISTS (
				SELECT 1 FROM %s t2
				WHERE t2.user_id = %s.user_id AND t2.entity_type = ?
				  AND t2.entity_id = ? AND t2.instance_id = ?)`,
			t.table, t.table, t.table),
			to.ExternalID, to.SourceInstanceID,
			string(entityType), from.ExternalID, from.SourceInstanceID,
			string(entityType), to.ExternalID, to.SourceInstanceID).Error
		if err != nil {
			return fmt.Errorf("failed to transfer %s rows: %w", t.table, err)
		}
		err = tx.Exec(fmt.Sprintf(
			`DELETE FROM %s WHERE entity_type = ? AND entity_id = ? AND instance_id = ?`, t.table),
			string(entityType), from.ExternalID, from.SourceInstanceID).Error
		if err != nil {
			return fmt.Errorf("failed to drop colliding %s rows: %w", t.table, err)
		}
	}

	// watch history has a surrogate key; every row moves
	err := tx.Model(&models.WatchHistory{}).
		Where("entity_type = ? AND entity_id = ? AND instance_id = ?",
			string(entityType), from.ExternalID, from.SourceInstanceID).
		Updates(map[string]interface{}{
			"entity_id":   to.ExternalID,
			"instance_id": to.SourceInstanceID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to transfer watch history rows: %w", err)
	}
	return nil
}

// DeleteAllFor removes every activity row referencing one entity, inside the
// given transaction. Used by discard when an orphan has no plausible target.
func (r *ActivityRepository) DeleteAllFor(tx *gorm.DB, entityType models.EntityType, key models.EntityKey) error {
	for _, model := range []interface{}{
		&models.Rating{}, &models.WatchHistory{}, &models.Favorite{}, &models.HiddenEntity{},
	} {
		if err := entityScope(tx, string(entityType), key).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to delete activity rows for %s %s/%s: %w",
				entityType, key.SourceInstanceID, key.ExternalID, err)
		}
	}
	return nil
}

// UpsertRating writes or replaces one user's rating of one entity.
func (r *ActivityRepository) UpsertRating(rating *models.Rating) error {
	err := r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "entity_type"}, {Name: "entity_id"}, {Name: "instance_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "updated_at"}),
	}).Create(rating).Error
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// AddWatchHistory appends one playback event.
func (r *ActivityRepository) AddWatchHistory(entry *models.WatchHistory) error {
	if err := r.DB.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add watch history entry: %w", err)
	}
	return nil
}
