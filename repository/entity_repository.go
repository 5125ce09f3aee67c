package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/catalogmirror/models"
)

// keyChunkSize bounds composite-key IN lists so a query never exceeds
// SQLite's bind-variable limit.
const keyChunkSize = 400

// entityTableInfo describes the per-type details the generic entity methods
// need: the table, which column carries the display name, and whether the
// table has a fingerprint column.
type entityTableInfo struct {
	table      string
	displayCol string
	hasPhash   bool
}

var entityTables = map[models.EntityType]entityTableInfo{
	models.EntityScene:     {table: "scenes", displayCol: "title", hasPhash: true},
	models.EntityPerformer: {table: "performers", displayCol: "name"},
	models.EntityStudio:    {table: "studios", displayCol: "name"},
	models.EntityTag:       {table: "tags", displayCol: "name"},
	models.EntityGroup:     {table: "groups", displayCol: "name"},
	models.EntityGallery:   {table: "galleries", displayCol: "title"},
	models.EntityImage:     {table: "images", displayCol: "title", hasPhash: true},
	models.EntityClip:      {table: "clips", displayCol: "title", hasPhash: true},
}

// TableForEntityType returns the table name backing an entity type.
func TableForEntityType(t models.EntityType) string {
	return entityTables[t].table
}

// HasFingerprint reports whether an entity type carries a phash column.
func HasFingerprint(t models.EntityType) bool {
	return entityTables[t].hasPhash
}

// EntityInfo is a type-agnostic view of one mirrored row, used by
// reconciliation and the admin surface.
type EntityInfo struct {
	ExternalID       string  `json:"external_id"`
	SourceInstanceID string  `json:"source_instance_id"`
	State            string  `json:"state"`
	DisplayName      string  `json:"display_name"`
	Phash            *string `json:"phash,omitempty"`
	UpdatedAt        int64   `json:"updated_at"`
}

// JunctionReplace describes junction rows owned by a set of entities: all
// existing rows for the owners are deleted and the given rows written in
// their place, inside the batch transaction.
type JunctionReplace struct {
	Model        interface{} // e.g. &models.SceneTag{}
	OwnerIDCol   string      // e.g. "scene_id"
	OwnerInstCol string      // e.g. "scene_instance_id"
	Owners       []models.EntityKey
	Rows         interface{} // typed slice, may be empty
	RowCount     int
}

// EntityBatch is one transactional unit of upsert work produced by the sync
// engine: a typed slice of entity rows plus the junction rows they own.
type EntityBatch struct {
	Type      models.EntityType
	Rows      interface{} // typed slice, e.g. []models.Scene
	RowCount  int
	BatchSize int // rows per INSERT statement, defaults to 250
	Junctions []JunctionReplace
}

// EntityRepository handles database operations for mirrored catalog entities
type EntityRepository struct {
	DB *gorm.DB
}

// NewEntityRepository creates a new instance of EntityRepository
func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{DB: db}
}

// ApplyBatch bulk-upserts one batch of entity rows and replaces their owned
// junction rows in a single transaction. Conflicts on the composite primary
// key update every column, so replayed pages are idempotent.
func (r *EntityRepository) ApplyBatch(batch EntityBatch) error {
	if batch.RowCount == 0 {
		return nil
	}
	batchSize := batch.BatchSize
	if batchSize <= 0 {
		batchSize = 250
	}
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}, {Name: "source_instance_id"}},
			UpdateAll: true,
		}).CreateInBatches(batch.Rows, batchSize).Error; err != nil {
			return fmt.Errorf("failed to upsert %s batch: %w", batch.Type, err)
		}

		for _, jr := range batch.Junctions {
			for _, owner := range jr.Owners {
				if err := tx.Where(jr.OwnerIDCol+" = ? AND "+jr.OwnerInstCol+" = ?",
					owner.ExternalID, owner.SourceInstanceID).Delete(jr.Model).Error; err != nil {
					return fmt.Errorf("failed to clear junction rows for %s batch: %w", batch.Type, err)
				}
			}
			if jr.RowCount > 0 {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(jr.Rows, batchSize).Error; err != nil {
					return fmt.Errorf("failed to write junction rows for %s batch: %w", batch.Type, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// ListActiveIDs returns the external ids of all active rows of one type for
// one source instance. Full sweeps diff this set against the fetched ids to
// find rows to tombstone.
func (r *EntityRepository) ListActiveIDs(t models.EntityType, instanceID string) ([]string, error) {
	info := entityTables[t]
	var ids []string
	err := r.DB.Table(info.table).
		Where("source_instance_id = ? AND state = ?", instanceID, models.StateActive).
		Pluck("external_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active %s ids for instance %s: %w", t, instanceID, err)
	}
	return ids, nil
}

// SoftDeleteByIDs tombstones the given rows of one instance. Rows from other
// instances are untouched regardless of id overlap.
func (r *EntityRepository) SoftDeleteByIDs(t models.EntityType, instanceID string, ids []string, now int64) error {
	info := entityTables[t]
	for start := 0; start < len(ids); start += keyChunkSize {
		end := start + keyChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		err := r.DB.Table(info.table).
			Where("source_instance_id = ? AND external_id IN ? AND state = ?",
				instanceID, ids[start:end], models.StateActive).
			Updates(map[string]interface{}{
				"state":      models.StateSoftDeleted,
				"deleted_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to soft-delete %s rows for instance %s: %w", t, instanceID, err)
		}
	}
	return nil
}

// SoftDeleteOne tombstones a single row and purges the junction rows
// referencing it, in one transaction. Used by the webhook delete action and
// incremental delete signals.
func (r *EntityRepository) SoftDeleteOne(t models.EntityType, key models.EntityKey, now int64) error {
	info := entityTables[t]
	return r.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Table(info.table).
			Where("source_instance_id = ? AND external_id = ? AND state = ?",
				key.SourceInstanceID, key.ExternalID, models.StateActive).
			Updates(map[string]interface{}{
				"state":      models.StateSoftDeleted,
				"deleted_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to soft-delete %s %s/%s: %w", t, key.SourceInstanceID, key.ExternalID, err)
		}
		return r.purgeJunctionsFor(tx, t, key)
	})
}

// Get returns a type-agnostic view of one row, including tombstoned ones.
func (r *EntityRepository) Get(t models.EntityType, key models.EntityKey) (*EntityInfo, error) {
	info := entityTables[t]
	sel := "external_id, source_instance_id, state, " + info.displayCol + " AS display_name, updated_at"
	if info.hasPhash {
		sel += ", phash"
	}
	var row EntityInfo
	err := r.DB.Table(info.table).Select(sel).
		Where("external_id = ? AND source_instance_id = ?", key.ExternalID, key.SourceInstanceID).
		Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %s %s/%s: %w", t, key.SourceInstanceID, key.ExternalID, err)
	}
	return &row, nil
}

// HardDelete removes an entity row outright together with every junction row
// referencing it. Only reconciliation calls this; sync never hard-deletes.
func (r *EntityRepository) HardDelete(tx *gorm.DB, t models.EntityType, key models.EntityKey) error {
	info := entityTables[t]
	if err := tx.Exec(
		"DELETE FROM "+info.table+" WHERE external_id = ? AND source_instance_id = ?",
		key.ExternalID, key.SourceInstanceID).Error; err != nil {
		return fmt.Errorf("failed to hard-delete %s %s/%s: %w", t, key.SourceInstanceID, key.ExternalID, err)
	}
	return r.purgeJunctionsFor(tx, t, key)
}

// junctionSides maps each entity type to the junction/adjacency columns that
// reference it, so dangling rows can be purged from both directions.
var junctionSides = map[models.EntityType][]struct {
	model   interface{}
	idCol   string
	instCol string
}{
	models.EntityScene: {
		{&models.ScenePerformer{}, "scene_id", "scene_instance_id"},
		{&models.SceneTag{}, "scene_id", "scene_instance_id"},
		{&models.SceneGroup{}, "scene_id", "scene_instance_id"},
		{&models.SceneGallery{}, "scene_id", "scene_instance_id"},
	},
	models.EntityPerformer: {
		{&models.ScenePerformer{}, "performer_id", "performer_instance_id"},
		{&models.PerformerTag{}, "performer_id", "performer_instance_id"},
	},
	models.EntityStudio: {
		{&models.StudioRelation{}, "parent_id", "parent_instance_id"},
		{&models.StudioRelation{}, "child_id", "child_instance_id"},
	},
	models.EntityTag: {
		{&models.SceneTag{}, "tag_id", "tag_instance_id"},
		{&models.PerformerTag{}, "tag_id", "tag_instance_id"},
		{&models.TagRelation{}, "parent_id", "parent_instance_id"},
		{&models.TagRelation{}, "child_id", "child_instance_id"},
	},
	models.EntityGroup: {
		{&models.SceneGroup{}, "group_id", "group_instance_id"},
		{&models.GroupRelation{}, "parent_id", "parent_instance_id"},
		{&models.GroupRelation{}, "child_id", "child_instance_id"},
	},
	models.EntityGallery: {
		{&models.SceneGallery{}, "gallery_id", "gallery_instance_id"},
		{&models.GalleryImage{}, "gallery_id", "gallery_instance_id"},
	},
	models.EntityImage: {
		{&models.GalleryImage{}, "image_id", "image_instance_id"},
	},
}

func (r *EntityRepository) purgeJunctionsFor(tx *gorm.DB, t models.EntityType, key models.EntityKey) error {
	for _, side := range junctionSides[t] {
		if err := tx.Where(side.idCol+" = ? AND "+side.instCol+" = ?",
			key.ExternalID, key.SourceInstanceID).Delete(side.model).Error; err != nil {
			return fmt.Errorf("failed to purge junction rows for %s %s/%s: %w", t, key.SourceInstanceID, key.ExternalID, err)
		}
	}
	return nil
}

// PurgeDanglingJunctions repairs junction rows whose entity side no longer
// exists or is tombstoned. Run after sweeps; a dangling reference is repaired
// by removal rather than failing the pass.
func (r *EntityRepository) PurgeDanglingJunctions() (int64, error) {
	type purge struct {
		junction    string
		idCol       string
		instCol     string
		entityTable string
	}
	purges := []purge{
		{"scene_performers", "scene_id", "scene_instance_id", "scenes"},
		{"scene_performers", "performer_id", "performer_instance_id", "performers"},
		{"scene_tags", "scene_id", "scene_instance_id", "scenes"},
		{"scene_tags", "tag_id", "tag_instance_id", "tags"},
		{"scene_groups", "scene_id", "scene_instance_id", "scenes"},
		{"scene_groups", "group_id", "group_instance_id", "groups"},
		{"scene_galleries", "scene_id", "scene_instance_id", "scenes"},
		{"scene_galleries", "gallery_id", "gallery_instance_id", "galleries"},
		{"gallery_images", "gallery_id", "gallery_instance_id", "galleries"},
		{"gallery_images", "image_id", "image_instance_id", "images"},
		{"performer_tags", "performer_id", "performer_instance_id", "performers"},
		{"performer_tags", "tag_id", "tag_instance_id", "tags"},
		{"tag_relations", "parent_id", "parent_instance_id", "tags"},
		{"tag_relations", "child_id", "child_instance_id", "tags"},
		{"studio_relations", "parent_id", "parent_instance_id", "studios"},
		{"studio_relations", "child_id", "child_instance_id", "studios"},
		{"group_relations", "parent_id", "parent_instance_id", "groups"},
		{"group_relations", "child_id", "child_instance_id", "groups"},
	}

	var total int64
	for _, p := range purges {
		res := r.DB.Exec(fmt.Sprintf(
			`DELETE FROM %s WHERE NOT EXISTS (
				SELECT 1 FROM %s e
				WHERE e.external_id = %s.%s
				  AND e.source_instance_id = %s.%s
				  AND e.state = ?)`,
			p.junction, p.entityTable, p.junction, p.idCol, p.junction, p.instCol),
			models.StateActive)
		if res.Error != nil {
			return total, fmt.Errorf("failed to purge dangling %s rows: %w", p.junction, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// CountActiveByInstance returns the number of active rows of one type grouped
// by source instance.
func (r *EntityRepository) CountActiveByInstance(t models.EntityType) (map[string]int64, error) {
	info := entityTables[t]
	var rows []struct {
		SourceInstanceID string
		N                int64
	}
	err := r.DB.Table(info.table).
		Select("source_instance_id, COUNT(*) AS n").
		Where("state = ?", models.StateActive).
		Group("source_instance_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count active %s rows: %w", t, err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.SourceInstanceID] = row.N
	}
	return counts, nil
}

// ListActiveKeys returns the composite keys of every active row of one type
// across all instances.
func (r *EntityRepository) ListActiveKeys(t models.EntityType) ([]models.EntityKey, error) {
	info := entityTables[t]
	var keys []models.EntityKey
	err := r.DB.Table(info.table).
		Select("external_id, source_instance_id").
		Where("state = ?", models.StateActive).
		Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active %s keys: %w", t, err)
	}
	return keys, nil
}

// ListFingerprinted returns active rows of one type that carry a fingerprint,
// for reconciliation candidate lookup. The limit bounds the candidate set so
// matching never goes quadratic on large libraries.
func (r *EntityRepository) ListFingerprinted(t models.EntityType, excludeKey models.EntityKey, limit int) ([]EntityInfo, error) {
	info := entityTables[t]
	if !info.hasPhash {
		return nil, fmt.Errorf("%s entities carry no fingerprint", t)
	}
	var rows []EntityInfo
	err := r.DB.Table(info.table).
		Select("external_id, source_instance_id, state, "+info.displayCol+" AS display_name, phash, updated_at").
		Where("state = ? AND phash IS NOT NULL AND phash != ''", models.StateActive).
		Where("NOT (external_id = ? AND source_instance_id = ?)", excludeKey.ExternalID, excludeKey.SourceInstanceID).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprinted %s rows: %w", t, err)
	}
	return rows, nil
}
