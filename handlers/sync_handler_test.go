package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/catalogmirror/config"
	"github.com/camden-git/catalogmirror/database"
	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/sync"
	"github.com/camden-git/catalogmirror/upstream"
)

func newHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	return db
}

func newSyncHandlerFixture(t *testing.T) (*SyncHandler, *repository.CursorRepository) {
	t.Helper()
	db := newHandlerTestDB(t)

	cursors := repository.NewCursorRepository(db)
	engine := sync.NewEngine(repository.NewEntityRepository(db), 10, 5)
	scheduler := sync.NewScheduler(engine, cursors, repository.NewSourceRepository(db),
		repository.NewAppStateRepository(db),
		func(src models.SourceInstance) upstream.Client { return nil },
		nil, nil, &config.Config{SyncIntervalMinutes: 60, PeriodicSyncEnabled: true})

	return &SyncHandler{Scheduler: scheduler, Cursors: cursors}, cursors
}

func TestSyncStatusIncludesCursorTable(t *testing.T) {
	sh, cursors := newSyncHandlerFixture(t)
	require.NoError(t, cursors.AdvanceFull(models.EntityScene, 1700000000, 42))

	rec := httptest.NewRecorder()
	sh.Status(rec, httptest.NewRequest(http.MethodGet, "/api/admin/sync/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		State           string              `json:"state"`
		IntervalMinutes int                 `json:"interval_minutes"`
		Cursors         []models.SyncCursor `json:"cursors"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, sync.StateIdle, resp.State)
	assert.Equal(t, 60, resp.IntervalMinutes)

	require.Len(t, resp.Cursors, 1)
	assert.Equal(t, string(models.EntityScene), resp.Cursors[0].EntityType)
	require.NotNil(t, resp.Cursors[0].LastFullSync)
	assert.Equal(t, int64(1700000000), *resp.Cursors[0].LastFullSync)
	assert.Equal(t, int64(42), resp.Cursors[0].LastSyncCount)
}

func putSyncSettings(t *testing.T, sh *SyncHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/admin/sync/settings", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	sh.UpdateSettings(rec, req)
	return rec
}

func TestSyncSettingsUpdatesAllFields(t *testing.T) {
	sh, _ := newSyncHandlerFixture(t)

	rec := putSyncSettings(t, sh, `{"interval_minutes":30,"webhook_enabled":true,"periodic_enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	status := sh.Scheduler.Status()
	assert.Equal(t, 30, status.IntervalMinutes)
	assert.True(t, status.WebhookEnabled)
	assert.False(t, status.PeriodicEnabled)

	// a partial patch leaves the other settings alone
	rec = putSyncSettings(t, sh, `{"webhook_enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	status = sh.Scheduler.Status()
	assert.Equal(t, 30, status.IntervalMinutes)
	assert.False(t, status.WebhookEnabled)
	assert.False(t, status.PeriodicEnabled)
}

func TestSyncSettingsRejectsOutOfBoundsInterval(t *testing.T) {
	sh, _ := newSyncHandlerFixture(t)

	rec := putSyncSettings(t, sh, `{"interval_minutes":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "invalid_settings", resp.Errors[0].Code)

	// the stored interval is untouched
	assert.Equal(t, 60, sh.Scheduler.Status().IntervalMinutes)
}
