package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
)

func TestSourceDetailReportsActiveCounts(t *testing.T) {
	db := newHandlerTestDB(t)
	sh := &SourceHandler{
		Sources:  repository.NewSourceRepository(db),
		Entities: repository.NewEntityRepository(db),
	}

	src := models.SourceInstance{ID: "inst-a", Name: "primary", Endpoint: "http://a.local", Enabled: true}
	require.NoError(t, db.Create(&src).Error)

	rows := []models.Scene{
		{CatalogRow: models.CatalogRow{ExternalID: "s1", SourceInstanceID: "inst-a", State: models.StateActive}, Title: "one"},
		{CatalogRow: models.CatalogRow{ExternalID: "s2", SourceInstanceID: "inst-a", State: models.StateActive}, Title: "two"},
		{CatalogRow: models.CatalogRow{ExternalID: "s3", SourceInstanceID: "inst-a", State: models.StateSoftDeleted}, Title: "gone"},
		{CatalogRow: models.CatalogRow{ExternalID: "s1", SourceInstanceID: "inst-b", State: models.StateActive}, Title: "elsewhere"},
	}
	require.NoError(t, db.Create(&rows).Error)

	r := chi.NewRouter()
	r.Get("/sources/{source_id}", sh.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sources/inst-a", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ID           string           `json:"id"`
		ActiveCounts map[string]int64 `json:"active_counts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "inst-a", resp.ID)

	// soft-deleted rows and rows of other instances are not counted
	assert.Equal(t, int64(2), resp.ActiveCounts["scene"])
	assert.Equal(t, int64(0), resp.ActiveCounts["performer"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sources/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
