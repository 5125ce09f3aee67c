package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/catalogmirror/database"
	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
)

type serviceFixture struct {
	db       *gorm.DB
	entities *repository.EntityRepository
	activity *repository.ActivityRepository
	merges   *repository.MergeRepository
	service  *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	entities := repository.NewEntityRepository(db)
	activity := repository.NewActivityRepository(db)
	merges := repository.NewMergeRepository(db)
	exclusions := repository.NewExclusionRepository(db)
	return &serviceFixture{
		db:       db,
		entities: entities,
		activity: activity,
		merges:   merges,
		service:  NewService(db, entities, activity, merges, exclusions, 100, 8),
	}
}

func (f *serviceFixture) addScene(t *testing.T, id, state string, phash *string) {
	t.Helper()
	var deletedAt *int64
	if state == models.StateSoftDeleted {
		ts := int64(900)
		deletedAt = &ts
	}
	require.NoError(t, f.db.Create(&models.Scene{
		CatalogRow: models.CatalogRow{
			ExternalID: id, SourceInstanceID: "inst-a", State: state, DeletedAt: deletedAt,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "scene " + id,
		Phash: phash,
	}).Error)
}

func (f *serviceFixture) addRating(t *testing.T, userID uint, sceneID string, rating int) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Rating{
		UserID: userID, EntityType: string(models.EntityScene),
		EntityID: sceneID, InstanceID: "inst-a",
		Rating: rating, CreatedAt: 1, UpdatedAt: 1,
	}).Error)
}

func (f *serviceFixture) addWatch(t *testing.T, userID uint, sceneID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.WatchHistory{
		UserID: userID, EntityType: string(models.EntityScene),
		EntityID: sceneID, InstanceID: "inst-a", WatchedAt: 1,
	}).Error)
}

func (f *serviceFixture) addFavorite(t *testing.T, userID uint, sceneID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Favorite{
		UserID: userID, EntityType: string(models.EntityScene),
		EntityID: sceneID, InstanceID: "inst-a", CreatedAt: 1,
	}).Error)
}

func key(id string) models.EntityKey {
	return models.EntityKey{ExternalID: id, SourceInstanceID: "inst-a"}
}

func strPtr(s string) *string { return &s }

func TestFindOrphanedEntitiesWithActivity(t *testing.T) {
	f := newServiceFixture(t)
	f.addScene(t, "orphan", models.StateSoftDeleted, nil)
	f.addScene(t, "quiet-tombstone", models.StateSoftDeleted, nil)
	f.addScene(t, "alive", models.StateActive, nil)
	f.addRating(t, 1, "orphan", 80)
	f.addRating(t, 1, "alive", 60)
	// activity left behind by a hard-deleted row still surfaces
	f.addWatch(t, 1, "long-gone")

	orphans, err := f.service.FindOrphanedEntitiesWithActivity(models.EntityScene)
	require.NoError(t, err)

	byID := map[string]Orphan{}
	for _, o := range orphans {
		byID[o.Entity.ExternalID] = o
	}
	require.Len(t, byID, 2)
	assert.Equal(t, int64(1), byID["orphan"].Activity.Ratings)
	assert.Equal(t, int64(1), byID["long-gone"].Activity.WatchHistory)
	assert.NotContains(t, byID, "quiet-tombstone")
	assert.NotContains(t, byID, "alive")
}

func TestFindMatchesRanksByDistance(t *testing.T) {
	f := newServiceFixture(t)
	// fingerprint 0x00ff: the near candidate differs in one bit, the far
	// candidate in far more than the near threshold
	f.addScene(t, "orphan", models.StateSoftDeleted, strPtr("00ff"))
	f.addScene(t, "twin", models.StateActive, strPtr("00ff"))
	f.addScene(t, "close", models.StateActive, strPtr("00fe"))
	f.addScene(t, "far", models.StateActive, strPtr("ff00"))
	f.addScene(t, "dead-twin", models.StateSoftDeleted, strPtr("00ff"))
	f.addScene(t, "blank", models.StateActive, nil)

	matches, err := f.service.FindMatches(models.EntityScene, key("orphan"))
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "twin", matches[0].Candidate.ExternalID)
	assert.Equal(t, MatchExact, matches[0].Kind)
	assert.Equal(t, 0, matches[0].Distance)
	assert.Equal(t, "close", matches[1].Candidate.ExternalID)
	assert.Equal(t, MatchNear, matches[1].Kind)
	assert.Equal(t, 1, matches[1].Distance)
}

func TestFindMatchesWithoutFingerprint(t *testing.T) {
	f := newServiceFixture(t)
	f.addScene(t, "orphan", models.StateSoftDeleted, nil)
	f.addScene(t, "candidate", models.StateActive, strPtr("00ff"))

	matches, err := f.service.FindMatches(models.EntityScene, key("orphan"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	// tags carry no fingerprint column at all
	matches, err = f.service.FindMatches(models.EntityTag, key("orphan"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestReconcileTransfersAllActivity(t *testing.T) {
	f := newServiceFixture(t)
	f.addScene(t, "orphan", models.StateSoftDeleted, strPtr("00ff"))
	f.addScene(t, "target", models.StateActive, strPtr("00ff"))

	f.addRating(t, 1, "orphan", 80)
	f.addWatch(t, 1, "orphan")
	f.addWatch(t, 1, "orphan")
	f.addFavorite(t, 1, "orphan")
	// user 2 rated both: the target's rating wins the collision
	f.addRating(t, 2, "orphan", 20)
	f.addRating(t, 2, "target", 95)

	require.NoError(t, f.service.Reconcile(models.EntityScene, key("orphan"), key("target"), 7))

	summary, err := f.activity.Summarize(models.EntityScene, key("target"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Ratings)
	assert.Equal(t, int64(2), summary.WatchHistory)
	assert.Equal(t, int64(1), summary.Favorites)

	orphanSummary, err := f.activity.Summarize(models.EntityScene, key("orphan"))
	require.NoError(t, err)
	assert.Zero(t, orphanSummary.Total())

	var kept models.Rating
	require.NoError(t, f.db.Where("user_id = ? AND entity_id = ?", 2, "target").First(&kept).Error)
	assert.Equal(t, 95, kept.Rating)

	_, err = f.entities.Get(models.EntityScene, key("orphan"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	records, err := f.merges.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "orphan", records[0].SourceEntityID)
	assert.Equal(t, "target", records[0].TargetEntityID)
	assert.Equal(t, uint(7), records[0].ActorID)
}

func TestReconcileRejectsBadTargets(t *testing.T) {
	f := newServiceFixture(t)
	f.addScene(t, "orphan", models.StateSoftDeleted, nil)
	f.addScene(t, "tombstone", models.StateSoftDeleted, nil)

	err := f.service.Reconcile(models.EntityScene, key("orphan"), key("orphan"), 1)
	assert.Error(t, err)

	err = f.service.Reconcile(models.EntityScene, key("orphan"), key("tombstone"), 1)
	assert.ErrorContains(t, err, "not active")

	err = f.service.Reconcile(models.EntityScene, key("orphan"), key("missing"), 1)
	assert.Error(t, err)
}

func TestDiscardLeavesNoActivity(t *testing.T) {
	f := newServiceFixture(t)
	f.addScene(t, "orphan", models.StateSoftDeleted, nil)
	f.addRating(t, 1, "orphan", 50)
	f.addWatch(t, 1, "orphan")
	f.addFavorite(t, 1, "orphan")

	require.NoError(t, f.service.Discard(models.EntityScene, key("orphan")))

	summary, err := f.activity.Summarize(models.EntityScene, key("orphan"))
	require.NoError(t, err)
	assert.Zero(t, summary.Total())

	_, err = f.entities.Get(models.EntityScene, key("orphan"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	records, err := f.merges.ListRecent(10)
	require.NoError(t, err)
	assert.Empty(t, records, "discard writes no merge record")
}

func TestReconcileAllMergesOnlyUnambiguousExactMatches(t *testing.T) {
	f := newServiceFixture(t)

	// one exact survivor: merged automatically
	f.addScene(t, "clean-orphan", models.StateSoftDeleted, strPtr("1111"))
	f.addScene(t, "clean-target", models.StateActive, strPtr("1111"))
	f.addRating(t, 1, "clean-orphan", 70)

	// only a near match: left for review
	f.addScene(t, "near-orphan", models.StateSoftDeleted, strPtr("2222"))
	f.addScene(t, "near-candidate", models.StateActive, strPtr("2223"))
	f.addRating(t, 1, "near-orphan", 70)

	// two exact survivors: ambiguous, left for review
	f.addScene(t, "dup-orphan", models.StateSoftDeleted, strPtr("4444"))
	f.addScene(t, "dup-a", models.StateActive, strPtr("4444"))
	f.addScene(t, "dup-b", models.StateActive, strPtr("4444"))
	f.addRating(t, 1, "dup-orphan", 70)

	result, err := f.service.ReconcileAll(models.EntityScene)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, 2, result.Skipped)

	_, err = f.entities.Get(models.EntityScene, key("clean-orphan"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	summary, err := f.activity.Summarize(models.EntityScene, key("clean-target"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Ratings)

	stillThere, err := f.entities.Get(models.EntityScene, key("near-orphan"))
	require.NoError(t, err)
	assert.Equal(t, models.StateSoftDeleted, stillThere.State)
}
