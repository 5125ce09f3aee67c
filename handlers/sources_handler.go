package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
)

type SourceHandler struct {
	Sources  repository.SourceRepositoryInterface
	Entities repository.EntityRepositoryInterface
}

// sourceDetailResponse is one source instance plus the number of active
// mirrored rows it holds per entity type.
type sourceDetailResponse struct {
	models.SourceInstance
	ActiveCounts map[string]int64 `json:"active_counts"`
}

type sourceRequest struct {
	Name     *string `json:"name"`
	Endpoint *string `json:"endpoint"`
	APIKey   *string `json:"api_key"`
	Enabled  *bool   `json:"enabled"`
}

// Create registers a new upstream source instance.
func (sh *SourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_name", "name is required")
		return
	}
	if req.Endpoint == nil || strings.TrimSpace(*req.Endpoint) == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_endpoint", "endpoint is required")
		return
	}

	src := models.SourceInstance{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(*req.Name),
		Endpoint: strings.TrimRight(strings.TrimSpace(*req.Endpoint), "/"),
		Enabled:  true,
	}
	if req.APIKey != nil {
		src.APIKey = *req.APIKey
	}
	if req.Enabled != nil {
		src.Enabled = *req.Enabled
	}

	if err := sh.Sources.Create(&src); err != nil {
		log.Printf("Error creating source instance '%s': %v", src.Name, err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "failed to create source instance")
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

// List returns all registered source instances.
func (sh *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := sh.Sources.ListAll()
	if err != nil {
		log.Printf("Error listing source instances: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "failed to list source instances")
		return
	}
	if sources == nil {
		sources = []models.SourceInstance{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// Get returns one source instance with its active mirrored row counts.
func (sh *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "source_id")
	src, err := sh.Sources.GetByID(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteAPIError(w, http.StatusNotFound, "source_not_found", "no such source instance")
			return
		}
		log.Printf("Error loading source instance %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "get_failed", "failed to load source instance")
		return
	}

	counts := make(map[string]int64, len(models.AllEntityTypes))
	for _, t := range models.AllEntityTypes {
		byInstance, err := sh.Entities.CountActiveByInstance(t)
		if err != nil {
			log.Printf("Error counting %s rows for source %s: %v", t, id, err)
			WriteAPIError(w, http.StatusInternalServerError, "get_failed", "failed to count mirrored rows")
			return
		}
		counts[string(t)] = byInstance[id]
	}
	writeJSON(w, http.StatusOK, sourceDetailResponse{SourceInstance: *src, ActiveCounts: counts})
}

// Update patches name, endpoint, API key or enabled flag.
func (sh *SourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "source_id")
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.Endpoint != nil {
		trimmed := strings.TrimRight(strings.TrimSpace(*req.Endpoint), "/")
		req.Endpoint = &trimmed
	}

	if err := sh.Sources.Update(id, req.Name, req.Endpoint, req.APIKey, req.Enabled); err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteAPIError(w, http.StatusNotFound, "source_not_found", "no such source instance")
			return
		}
		log.Printf("Error updating source instance %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "update_failed", "failed to update source instance")
		return
	}

	src, err := sh.Sources.GetByID(id)
	if err != nil {
		log.Printf("Error reloading source instance %s: %v", id, err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// Delete removes a source instance registration. Mirrored rows keep their
// instance id and are cleaned up by reconciliation or later resync.
func (sh *SourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "source_id")
	if err := sh.Sources.Delete(id); err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteAPIError(w, http.StatusNotFound, "source_not_found", "no such source instance")
			return
		}
		log.Printf("Error deleting source instance %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "delete_failed", "failed to delete source instance")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
