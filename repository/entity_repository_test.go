package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/catalogmirror/database"
	"github.com/camden-git/catalogmirror/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	return db
}

func strPtr(s string) *string { return &s }

func sceneRow(id, instanceID, title string, updatedAt int64) models.Scene {
	return models.Scene{
		CatalogRow: models.CatalogRow{
			ExternalID:       id,
			SourceInstanceID: instanceID,
			State:            models.StateActive,
			CreatedAt:        updatedAt,
			UpdatedAt:        updatedAt,
			SyncedAt:         updatedAt,
		},
		Title: title,
	}
}

func sceneBatch(rows []models.Scene, tags []models.SceneTag) EntityBatch {
	owners := make([]models.EntityKey, len(rows))
	for i, s := range rows {
		owners[i] = models.EntityKey{ExternalID: s.ExternalID, SourceInstanceID: s.SourceInstanceID}
	}
	return EntityBatch{
		Type:     models.EntityScene,
		Rows:     rows,
		RowCount: len(rows),
		Junctions: []JunctionReplace{
			{Model: &models.SceneTag{}, OwnerIDCol: "scene_id", OwnerInstCol: "scene_instance_id",
				Owners: owners, Rows: tags, RowCount: len(tags)},
		},
	}
}

func TestApplyBatchIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	rows := []models.Scene{
		sceneRow("s1", "inst-a", "first", 100),
		sceneRow("s2", "inst-a", "second", 100),
	}
	tags := []models.SceneTag{
		{SceneID: "s1", SceneInstanceID: "inst-a", TagID: "t1", TagInstanceID: "inst-a"},
	}

	require.NoError(t, repo.ApplyBatch(sceneBatch(rows, tags)))
	require.NoError(t, repo.ApplyBatch(sceneBatch(rows, tags)))

	var sceneCount, tagCount int64
	require.NoError(t, db.Model(&models.Scene{}).Count(&sceneCount).Error)
	require.NoError(t, db.Model(&models.SceneTag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(2), sceneCount)
	assert.Equal(t, int64(1), tagCount)
}

func TestApplyBatchUpdatesChangedColumns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{sceneRow("s1", "inst-a", "old title", 100)}, nil)))

	updated := sceneRow("s1", "inst-a", "new title", 200)
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{updated}, nil)))

	var got models.Scene
	require.NoError(t, db.Where("external_id = ? AND source_instance_id = ?", "s1", "inst-a").Take(&got).Error)
	assert.Equal(t, "new title", got.Title)
	assert.Equal(t, int64(200), got.UpdatedAt)
}

func TestApplyBatchReplacesJunctionRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	first := []models.SceneTag{
		{SceneID: "s1", SceneInstanceID: "inst-a", TagID: "t1", TagInstanceID: "inst-a"},
		{SceneID: "s1", SceneInstanceID: "inst-a", TagID: "t2", TagInstanceID: "inst-a"},
	}
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{sceneRow("s1", "inst-a", "x", 100)}, first)))

	// the second sweep sees a different tag set; the old edges must be gone
	second := []models.SceneTag{
		{SceneID: "s1", SceneInstanceID: "inst-a", TagID: "t3", TagInstanceID: "inst-a"},
	}
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{sceneRow("s1", "inst-a", "x", 200)}, second)))

	var tagIDs []string
	require.NoError(t, db.Model(&models.SceneTag{}).Pluck("tag_id", &tagIDs).Error)
	assert.Equal(t, []string{"t3"}, tagIDs)
}

func TestSoftDeleteScopedToInstance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{
		sceneRow("shared-id", "inst-a", "from a", 100),
		sceneRow("shared-id2", "inst-a", "also a", 100),
	}, nil)))
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{
		sceneRow("shared-id", "inst-b", "from b", 100),
	}, nil)))

	require.NoError(t, repo.SoftDeleteByIDs(models.EntityScene, "inst-a", []string{"shared-id"}, 500))

	infoA, err := repo.Get(models.EntityScene, models.EntityKey{ExternalID: "shared-id", SourceInstanceID: "inst-a"})
	require.NoError(t, err)
	assert.Equal(t, models.StateSoftDeleted, infoA.State)

	// the identical external id from the other instance is untouched
	infoB, err := repo.Get(models.EntityScene, models.EntityKey{ExternalID: "shared-id", SourceInstanceID: "inst-b"})
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, infoB.State)

	active, err := repo.ListActiveIDs(models.EntityScene, "inst-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-id2"}, active)
}

func TestSoftDeleteIsSticky(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{sceneRow("s1", "inst-a", "x", 100)}, nil)))
	require.NoError(t, repo.SoftDeleteByIDs(models.EntityScene, "inst-a", []string{"s1"}, 500))
	// a later sweep must not move the tombstone timestamp
	require.NoError(t, repo.SoftDeleteByIDs(models.EntityScene, "inst-a", []string{"s1"}, 900))

	var got models.Scene
	require.NoError(t, db.Where("external_id = ?", "s1").Take(&got).Error)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, int64(500), *got.DeletedAt)
}

func TestHardDeletePurgesJunctions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	tags := []models.SceneTag{
		{SceneID: "s1", SceneInstanceID: "inst-a", TagID: "t1", TagInstanceID: "inst-a"},
	}
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{sceneRow("s1", "inst-a", "x", 100)}, tags)))

	key := models.EntityKey{ExternalID: "s1", SourceInstanceID: "inst-a"}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.HardDelete(tx, models.EntityScene, key)
	}))

	_, err := repo.Get(models.EntityScene, key)
	assert.Equal(t, gorm.ErrRecordNotFound, err)

	var tagCount int64
	require.NoError(t, db.Model(&models.SceneTag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(0), tagCount)
}

func TestListFingerprintedExcludesSelfAndTombstones(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	orphan := sceneRow("orphan", "inst-a", "orphan", 100)
	orphan.Phash = strPtr("aaaaaaaaaaaaaaaa")
	survivor := sceneRow("survivor", "inst-a", "survivor", 100)
	survivor.Phash = strPtr("aaaaaaaaaaaaaaab")
	unfingerprinted := sceneRow("plain", "inst-a", "plain", 100)
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{orphan, survivor, unfingerprinted}, nil)))
	require.NoError(t, repo.SoftDeleteByIDs(models.EntityScene, "inst-a", []string{"orphan"}, 500))

	rows, err := repo.ListFingerprinted(models.EntityScene,
		models.EntityKey{ExternalID: "orphan", SourceInstanceID: "inst-a"}, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "survivor", rows[0].ExternalID)
}

func TestSoftDeleteOnePurgesJunctionsInline(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	tags := []models.SceneTag{
		{SceneID: "s1", SceneInstanceID: "inst-a", TagID: "t1", TagInstanceID: "inst-a"},
		{SceneID: "s2", SceneInstanceID: "inst-a", TagID: "t1", TagInstanceID: "inst-a"},
	}
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{
		sceneRow("s1", "inst-a", "doomed", 100),
		sceneRow("s2", "inst-a", "kept", 100),
	}, tags)))

	require.NoError(t, repo.SoftDeleteOne(models.EntityScene,
		models.EntityKey{ExternalID: "s1", SourceInstanceID: "inst-a"}, 500))

	info, err := repo.Get(models.EntityScene, models.EntityKey{ExternalID: "s1", SourceInstanceID: "inst-a"})
	require.NoError(t, err)
	assert.Equal(t, models.StateSoftDeleted, info.State)

	// s1's edge is gone in the same step; s2's is untouched
	var remaining []models.SceneTag
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].SceneID)
}

func TestPurgeDanglingJunctionsSweepsTombstonedSides(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	tags := []models.SceneTag{
		{SceneID: "s1", SceneInstanceID: "inst-a", TagID: "t1", TagInstanceID: "inst-a"},
		{SceneID: "s2", SceneInstanceID: "inst-a", TagID: "t1", TagInstanceID: "inst-a"},
	}
	require.NoError(t, repo.ApplyBatch(sceneBatch([]models.Scene{
		sceneRow("s1", "inst-a", "doomed", 100),
		sceneRow("s2", "inst-a", "kept", 100),
	}, tags)))
	require.NoError(t, db.Create(&models.Tag{
		CatalogRow: models.CatalogRow{
			ExternalID: "t1", SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 100, UpdatedAt: 100, SyncedAt: 100,
		},
		Name: "tag",
	}).Error)

	// set-based tombstoning leaves the junction rows in place
	require.NoError(t, repo.SoftDeleteByIDs(models.EntityScene, "inst-a", []string{"s1"}, 500))
	var before int64
	require.NoError(t, db.Model(&models.SceneTag{}).Count(&before).Error)
	require.Equal(t, int64(2), before)

	purged, err := repo.PurgeDanglingJunctions()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	var remaining []models.SceneTag
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].SceneID)
}
