package exclusion

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

type computerFixture struct {
	db         *gorm.DB
	users      *repository.UserRepository
	exclusions *repository.ExclusionRepository
	userID     uint
}

func newComputerFixture(t *testing.T) *computerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	users := repository.NewUserRepository(db)
	user := models.User{Username: "viewer"}
	require.NoError(t, user.SetPassword("pw"))
	require.NoError(t, users.Create(&user))

	return &computerFixture{
		db:         db,
		users:      users,
		exclusions: repository.NewExclusionRepository(db),
		userID:     user.ID,
	}
}

func (f *computerFixture) computer(t *testing.T, cascadeDepth int) *Computer {
	t.Helper()
	return NewComputer(
		repository.NewEntityRepository(f.db),
		repository.NewGraphRepository(f.db),
		f.users,
		f.exclusions,
		cascadeDepth,
	)
}

func (f *computerFixture) addScene(t *testing.T, id string, tags ...string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Scene{
		CatalogRow: models.CatalogRow{
			ExternalID: id, SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "scene " + id,
	}).Error)
	for _, tag := range tags {
		require.NoError(t, f.db.Create(&models.SceneTag{
			SceneID: id, SceneInstanceID: "inst-a",
			TagID: tag, TagInstanceID: "inst-a",
		}).Error)
	}
}

func (f *computerFixture) addTag(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Tag{
		CatalogRow: models.CatalogRow{
			ExternalID: id, SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Name: "tag " + id,
	}).Error)
}

func (f *computerFixture) addTagChild(t *testing.T, parent, child string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.TagRelation{
		ParentID: parent, ParentInstanceID: "inst-a",
		ChildID: child, ChildInstanceID: "inst-a",
	}).Error)
}

func (f *computerFixture) setTagRule(t *testing.T, mode string, restrictEmpty bool, tagIDs ...string) {
	t.Helper()
	keys := make([]models.EntityKey, len(tagIDs))
	for i, id := range tagIDs {
		keys[i] = models.EntityKey{ExternalID: id, SourceInstanceID: "inst-a"}
	}
	require.NoError(t, f.users.SetRestrictionRule(&models.RestrictionRule{
		UserID:        f.userID,
		TargetType:    string(models.EntityTag),
		Mode:          mode,
		EntityIDs:     keys,
		RestrictEmpty: restrictEmpty,
	}))
}

func (f *computerFixture) sceneExcluded(t *testing.T, id string) bool {
	t.Helper()
	excluded, err := f.exclusions.IsExcluded(f.userID, models.EntityScene,
		models.EntityKey{ExternalID: id, SourceInstanceID: "inst-a"})
	require.NoError(t, err)
	return excluded
}

func TestIncludeAndExcludeRulesCombine(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t-wanted")
	f.addTag(t, "t-banned")
	f.addScene(t, "only-wanted", "t-wanted")
	f.addScene(t, "both", "t-wanted", "t-banned")
	f.addScene(t, "neither")

	// an include rule and an exclude rule are active on tags at the same
	// time: visibility requires passing both
	f.setTagRule(t, models.RestrictionModeInclude, false, "t-wanted")
	f.setTagRule(t, models.RestrictionModeExclude, false, "t-banned")

	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))

	assert.False(t, f.sceneExcluded(t, "only-wanted"))
	assert.True(t, f.sceneExcluded(t, "both"), "matches the exclude list")
	assert.True(t, f.sceneExcluded(t, "neither"), "fails the include intersection")
}

func TestModeNoneClearsBothRules(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")
	f.addScene(t, "s1", "t1")
	f.addScene(t, "s2")

	f.setTagRule(t, models.RestrictionModeInclude, false, "t1")
	f.setTagRule(t, models.RestrictionModeExclude, false, "t1")
	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))
	assert.True(t, f.sceneExcluded(t, "s1"))
	assert.True(t, f.sceneExcluded(t, "s2"))

	f.setTagRule(t, models.RestrictionModeNone, false)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))
	assert.False(t, f.sceneExcluded(t, "s1"))
	assert.False(t, f.sceneExcluded(t, "s2"))

	rules, err := f.users.GetRestrictionRules(f.userID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.RestrictionModeNone, rules[0].Mode)
}

func TestExcludeUnionAcrossRules(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")
	f.addTag(t, "t2")
	f.addScene(t, "has-t1", "t1")
	f.addScene(t, "has-both", "t1", "t2")
	f.addScene(t, "clean")

	f.setTagRule(t, models.RestrictionModeExclude, false, "t1", "t2")
	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))

	assert.True(t, f.sceneExcluded(t, "has-t1"))
	assert.True(t, f.sceneExcluded(t, "has-both"))
	assert.False(t, f.sceneExcluded(t, "clean"))
}

func TestRestrictEmptyFlag(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")
	f.addScene(t, "tagged", "t1")
	f.addScene(t, "untagged")

	// restrict-empty off: a scene with no tags at all stays visible
	f.setTagRule(t, models.RestrictionModeExclude, false, "t1")
	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))
	assert.False(t, f.sceneExcluded(t, "untagged"))

	// restrict-empty on: it is hidden with reason "empty"
	f.setTagRule(t, models.RestrictionModeExclude, true, "t1")
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))
	assert.True(t, f.sceneExcluded(t, "untagged"))

	rows, err := f.exclusions.ListForUserAndType(f.userID, models.EntityScene)
	require.NoError(t, err)
	reasons := map[string]string{}
	for _, row := range rows {
		reasons[row.EntityID] = row.Reason
	}
	assert.Equal(t, models.ExclusionReasonEmpty, reasons["untagged"])
	assert.Equal(t, models.ExclusionReasonRestricted, reasons["tagged"])
}

func TestRestrictEmptyAppliesAcrossContentTypes(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")

	require.NoError(t, f.db.Create(&models.Performer{
		CatalogRow: models.CatalogRow{
			ExternalID: "p-tagged", SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Name: "tagged performer",
	}).Error)
	require.NoError(t, f.db.Create(&models.PerformerTag{
		PerformerID: "p-tagged", PerformerInstanceID: "inst-a",
		TagID: "t1", TagInstanceID: "inst-a",
	}).Error)
	require.NoError(t, f.db.Create(&models.Performer{
		CatalogRow: models.CatalogRow{
			ExternalID: "p-bare", SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Name: "bare performer",
	}).Error)

	f.setTagRule(t, models.RestrictionModeExclude, true, "t1")
	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityPerformer))

	rows, err := f.exclusions.ListForUserAndType(f.userID, models.EntityPerformer)
	require.NoError(t, err)
	reasons := map[string]string{}
	for _, row := range rows {
		reasons[row.EntityID] = row.Reason
	}
	assert.Equal(t, models.ExclusionReasonRestricted, reasons["p-tagged"])
	assert.Equal(t, models.ExclusionReasonEmpty, reasons["p-bare"],
		"a performer with no tags at all is hidden when restrict-empty is on")
}

func TestRestrictEmptyHidesImagesOutsideAnyGallery(t *testing.T) {
	f := newComputerFixture(t)
	require.NoError(t, f.db.Create(&models.Gallery{
		CatalogRow: models.CatalogRow{
			ExternalID: "g-banned", SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "banned gallery",
	}).Error)
	for _, id := range []string{"i-in-gallery", "i-loose"} {
		require.NoError(t, f.db.Create(&models.Image{
			CatalogRow: models.CatalogRow{
				ExternalID: id, SourceInstanceID: "inst-a", State: models.StateActive,
				CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
			},
		}).Error)
	}
	require.NoError(t, f.db.Create(&models.GalleryImage{
		GalleryID: "g-banned", GalleryInstanceID: "inst-a",
		ImageID: "i-in-gallery", ImageInstanceID: "inst-a",
	}).Error)

	require.NoError(t, f.users.SetRestrictionRule(&models.RestrictionRule{
		UserID:     f.userID,
		TargetType: string(models.EntityGallery),
		Mode:       models.RestrictionModeExclude,
		EntityIDs: []models.EntityKey{
			{ExternalID: "g-banned", SourceInstanceID: "inst-a"},
		},
		RestrictEmpty: true,
	}))

	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityImage))

	inGallery, err := f.exclusions.IsExcluded(f.userID, models.EntityImage,
		models.EntityKey{ExternalID: "i-in-gallery", SourceInstanceID: "inst-a"})
	require.NoError(t, err)
	assert.True(t, inGallery)

	loose, err := f.exclusions.IsExcluded(f.userID, models.EntityImage,
		models.EntityKey{ExternalID: "i-loose", SourceInstanceID: "inst-a"})
	require.NoError(t, err)
	assert.True(t, loose, "an image belonging to no gallery at all is hidden by restrict-empty")
}

func TestCascadeDepthControlsHierarchyWalk(t *testing.T) {
	tests := []struct {
		name        string
		depth       int
		childHidden bool
		grandHidden bool
	}{
		{name: "depth 0 stops at the listed tag", depth: 0, childHidden: false, grandHidden: false},
		{name: "depth 1 descends one hop", depth: 1, childHidden: true, grandHidden: false},
		{name: "depth 2 descends two hops", depth: 2, childHidden: true, grandHidden: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newComputerFixture(t)
			f.addTag(t, "root")
			f.addTag(t, "child")
			f.addTag(t, "grandchild")
			f.addTagChild(t, "root", "child")
			f.addTagChild(t, "child", "grandchild")

			f.addScene(t, "on-root", "root")
			f.addScene(t, "on-child", "child")
			f.addScene(t, "on-grandchild", "grandchild")

			f.setTagRule(t, models.RestrictionModeExclude, false, "root")
			computer := f.computer(t, tt.depth)
			require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))

			assert.True(t, f.sceneExcluded(t, "on-root"))
			assert.Equal(t, tt.childHidden, f.sceneExcluded(t, "on-child"))
			assert.Equal(t, tt.grandHidden, f.sceneExcluded(t, "on-grandchild"))
		})
	}
}

func TestCyclicHierarchyTerminates(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "a")
	f.addTag(t, "b")
	f.addTagChild(t, "a", "b")
	f.addTagChild(t, "b", "a")
	f.addScene(t, "s-a", "a")
	f.addScene(t, "s-b", "b")

	f.setTagRule(t, models.RestrictionModeExclude, false, "a")
	computer := f.computer(t, 5)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))

	assert.True(t, f.sceneExcluded(t, "s-a"))
	assert.True(t, f.sceneExcluded(t, "s-b"))
}

func TestRecomputeReplacesPreviousRows(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")
	f.addScene(t, "s1", "t1")
	f.addScene(t, "s2")

	f.setTagRule(t, models.RestrictionModeExclude, false, "t1")
	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))
	assert.True(t, f.sceneExcluded(t, "s1"))

	// clearing the rule leaves no stale exclusion rows behind
	f.setTagRule(t, models.RestrictionModeNone, false)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))
	assert.False(t, f.sceneExcluded(t, "s1"))

	rows, err := f.exclusions.ListForUserAndType(f.userID, models.EntityScene)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHiddenEntityWinsReasonPrecedence(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")
	f.addScene(t, "s1", "t1")

	require.NoError(t, f.users.HideEntity(&models.HiddenEntity{
		UserID: f.userID, EntityType: string(models.EntityScene),
		EntityID: "s1", InstanceID: "inst-a", CreatedAt: 1,
	}))
	f.setTagRule(t, models.RestrictionModeExclude, false, "t1")

	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))

	rows, err := f.exclusions.ListForUserAndType(f.userID, models.EntityScene)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ExclusionReasonHidden, rows[0].Reason)
}

func TestVisibleCountsPerInstance(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")
	f.addScene(t, "s1", "t1")
	f.addScene(t, "s2")
	require.NoError(t, f.db.Create(&models.Scene{
		CatalogRow: models.CatalogRow{
			ExternalID: "other", SourceInstanceID: "inst-b", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "other instance",
	}).Error)

	f.setTagRule(t, models.RestrictionModeExclude, false, "t1")
	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUser(f.userID, models.EntityScene))

	count, err := f.exclusions.VisibleCount(f.userID, models.EntityScene)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "one of inst-a's two scenes plus inst-b's one")
}

func TestClipsInheritSceneExclusion(t *testing.T) {
	f := newComputerFixture(t)
	f.addTag(t, "t1")
	f.addScene(t, "restricted-scene", "t1")
	f.addScene(t, "open-scene")

	sceneID := "restricted-scene"
	instID := "inst-a"
	require.NoError(t, f.db.Create(&models.Clip{
		CatalogRow: models.CatalogRow{
			ExternalID: "c1", SourceInstanceID: instID, State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "clip of restricted", SceneID: &sceneID, SceneInstanceID: &instID,
	}).Error)
	openID := "open-scene"
	require.NoError(t, f.db.Create(&models.Clip{
		CatalogRow: models.CatalogRow{
			ExternalID: "c2", SourceInstanceID: instID, State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "clip of open", SceneID: &openID, SceneInstanceID: &instID,
	}).Error)

	f.setTagRule(t, models.RestrictionModeExclude, false, "t1")
	computer := f.computer(t, 1)
	require.NoError(t, computer.RecomputeUserAll(f.userID))

	c1Excluded, err := f.exclusions.IsExcluded(f.userID, models.EntityClip,
		models.EntityKey{ExternalID: "c1", SourceInstanceID: instID})
	require.NoError(t, err)
	assert.True(t, c1Excluded)

	c2Excluded, err := f.exclusions.IsExcluded(f.userID, models.EntityClip,
		models.EntityKey{ExternalID: "c2", SourceInstanceID: instID})
	require.NoError(t, err)
	assert.False(t, c2Excluded)
}
