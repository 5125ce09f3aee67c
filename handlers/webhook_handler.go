package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/sync"
)

// Webhook actions a source may announce. Create and update both refresh the
// record from the source.
const (
	webhookActionCreate = "create"
	webhookActionUpdate = "update"
	webhookActionDelete = "delete"
)

type WebhookHandler struct {
	Scheduler *sync.Scheduler
	Sources   repository.SourceRepositoryInterface
	Entities  repository.EntityRepositoryInterface
}

type webhookRequest struct {
	EntityType       string `json:"entityType"`
	ExternalID       string `json:"externalId"`
	SourceInstanceID string `json:"sourceInstanceId"`
	Action           string `json:"action"`
}

// HandleSync applies a single-entity change announced by a source. The
// payload is validated synchronously; the refresh itself is one record and
// runs inline.
func (wh *WebhookHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if !wh.Scheduler.WebhookEnabled() {
		WriteAPIError(w, http.StatusForbidden, "webhooks_disabled", "webhook sync is disabled")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	t := models.EntityType(req.EntityType)
	if !models.IsValidEntityType(t) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_entity_type", "unknown entity type: "+req.EntityType)
		return
	}
	if req.ExternalID == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_external_id", "externalId is required")
		return
	}
	switch req.Action {
	case webhookActionCreate, webhookActionUpdate, webhookActionDelete:
	default:
		WriteAPIError(w, http.StatusBadRequest, "invalid_action", "action must be create, update or delete")
		return
	}

	src, err := wh.Sources.GetByID(req.SourceInstanceID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteAPIError(w, http.StatusBadRequest, "unknown_source", "no source instance with id "+req.SourceInstanceID)
			return
		}
		log.Printf("Error loading source instance %s: %v", req.SourceInstanceID, err)
		WriteAPIError(w, http.StatusInternalServerError, "source_lookup_failed", "failed to load source instance")
		return
	}
	if !src.Enabled {
		WriteAPIError(w, http.StatusBadRequest, "source_disabled", "source instance is disabled")
		return
	}

	key := models.EntityKey{ExternalID: req.ExternalID, SourceInstanceID: src.ID}
	if req.Action == webhookActionDelete {
		if err := wh.Entities.SoftDeleteOne(t, key, time.Now().UTC().Unix()); err != nil {
			log.Printf("Error tombstoning %s %s/%s from webhook: %v", t, src.ID, req.ExternalID, err)
			WriteAPIError(w, http.StatusInternalServerError, "delete_failed", "failed to tombstone entity")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	}

	if err := wh.Scheduler.SyncEntity(r.Context(), *src, t, req.ExternalID); err != nil {
		log.Printf("Error syncing %s %s/%s from webhook: %v", t, src.ID, req.ExternalID, err)
		WriteAPIError(w, http.StatusBadGateway, "entity_sync_failed", "failed to refresh entity from source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
