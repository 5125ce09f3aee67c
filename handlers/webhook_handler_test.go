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

func newWebhookFixture(t *testing.T) (*WebhookHandler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	sources := repository.NewSourceRepository(db)
	require.NoError(t, sources.Create(&models.SourceInstance{
		ID: "inst-a", Name: "primary", Endpoint: "http://upstream", Enabled: true,
	}))
	require.NoError(t, sources.Create(&models.SourceInstance{
		ID: "inst-off", Name: "paused", Endpoint: "http://other", Enabled: false,
	}))

	entities := repository.NewEntityRepository(db)
	engine := sync.NewEngine(entities, 10, 5)
	scheduler := sync.NewScheduler(engine, repository.NewCursorRepository(db), sources,
		repository.NewAppStateRepository(db),
		func(src models.SourceInstance) upstream.Client { return nil },
		nil, nil, &config.Config{SyncIntervalMinutes: 60, WebhookEnabled: true})

	return &WebhookHandler{
		Scheduler: scheduler,
		Sources:   sources,
		Entities:  entities,
	}, db
}

func postWebhook(t *testing.T, wh *WebhookHandler, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/sync", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	wh.HandleSync(rec, req)
	return rec
}

func TestWebhookGateFollowsRuntimeSetting(t *testing.T) {
	wh, db := newWebhookFixture(t)
	off := false
	require.NoError(t, wh.Scheduler.UpdateSettings(sync.SettingsPatch{WebhookEnabled: &off}))

	rec := postWebhook(t, wh, webhookRequest{
		EntityType: "scene", ExternalID: "s1", SourceInstanceID: "inst-a", Action: "update",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// re-enabling at runtime opens the gate without a restart
	require.NoError(t, db.Create(&models.Scene{
		CatalogRow: models.CatalogRow{
			ExternalID: "s1", SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "gated",
	}).Error)
	on := true
	require.NoError(t, wh.Scheduler.UpdateSettings(sync.SettingsPatch{WebhookEnabled: &on}))
	rec = postWebhook(t, wh, webhookRequest{
		EntityType: "scene", ExternalID: "s1", SourceInstanceID: "inst-a", Action: "delete",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload webhookRequest
	}{
		{name: "unknown entity type", payload: webhookRequest{
			EntityType: "movie", ExternalID: "s1", SourceInstanceID: "inst-a", Action: "update"}},
		{name: "missing external id", payload: webhookRequest{
			EntityType: "scene", SourceInstanceID: "inst-a", Action: "update"}},
		{name: "unknown action", payload: webhookRequest{
			EntityType: "scene", ExternalID: "s1", SourceInstanceID: "inst-a", Action: "purge"}},
		{name: "unknown source", payload: webhookRequest{
			EntityType: "scene", ExternalID: "s1", SourceInstanceID: "inst-nope", Action: "delete"}},
		{name: "disabled source", payload: webhookRequest{
			EntityType: "scene", ExternalID: "s1", SourceInstanceID: "inst-off", Action: "delete"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh, _ := newWebhookFixture(t)
			rec := postWebhook(t, wh, tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp APIErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Len(t, resp.Errors, 1)
			assert.NotEmpty(t, resp.Errors[0].Code)
		})
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	wh, _ := newWebhookFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/sync", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	wh.HandleSync(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookDeleteTombstonesEntity(t *testing.T) {
	wh, db := newWebhookFixture(t)
	require.NoError(t, db.Create(&models.Scene{
		CatalogRow: models.CatalogRow{
			ExternalID: "s1", SourceInstanceID: "inst-a", State: models.StateActive,
			CreatedAt: 1, UpdatedAt: 1, SyncedAt: 1,
		},
		Title: "doomed",
	}).Error)
	require.NoError(t, db.Create(&models.SceneTag{
		SceneID: "s1", SceneInstanceID: "inst-a",
		TagID: "t1", TagInstanceID: "inst-a",
	}).Error)

	rec := postWebhook(t, wh, webhookRequest{
		EntityType: "scene", ExternalID: "s1", SourceInstanceID: "inst-a", Action: "delete",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	info, err := wh.Entities.Get(models.EntityScene,
		models.EntityKey{ExternalID: "s1", SourceInstanceID: "inst-a"})
	require.NoError(t, err)
	assert.Equal(t, models.StateSoftDeleted, info.State)

	var junctions int64
	require.NoError(t, db.Model(&models.SceneTag{}).Count(&junctions).Error)
	assert.Zero(t, junctions, "the tombstoned scene keeps no junction rows")
}
